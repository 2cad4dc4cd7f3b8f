package render

import (
	"os"
	"strings"
	"time"
)

const (
	StrategyLocal  = "local"
	StrategyRemote = "remote"

	// DefaultLogLimit caps captured stdout/stderr in characters.
	DefaultLogLimit = 4000
	TruncatedMarker = "\n...[truncated]"
)

// Result is the uniform record of one render attempt, regardless of strategy.
type Result struct {
	ArtifactPath     string
	ArtifactInline   []byte
	RemoteURL        string
	Stdout           string
	Stderr           string
	ExitCode         int
	ExpectedFilename string
	OutputFolder     string
	DocumentPath     string
	Strategy         string
	PageCount        int
	Duration         time.Duration
}

// HasArtifact reports whether the result carries a usable artifact: a file
// that exists on disk, inline bytes, or a remote URL.
func (r Result) HasArtifact() bool {
	if len(r.ArtifactInline) > 0 || r.RemoteURL != "" {
		return true
	}
	if r.ArtifactPath == "" {
		return false
	}
	fi, err := os.Stat(r.ArtifactPath)
	return err == nil && fi.Mode().IsRegular()
}

func (r Result) Succeeded() bool {
	return r.ExitCode == 0 && r.HasArtifact()
}

// Normalize enforces ExitCode == 0 exactly when an artifact is present. A
// failed run drops any artifact reference; a zero exit without an artifact is
// turned into a failure.
func (r *Result) Normalize() {
	if r.ExitCode != 0 {
		r.ArtifactPath = ""
		r.ArtifactInline = nil
		r.RemoteURL = ""
		return
	}
	if !r.HasArtifact() {
		r.ExitCode = 1
		r.ArtifactPath = ""
		r.Stderr = appendLine(r.Stderr, "engine exited successfully but produced no PDF")
	}
}

// Failure builds a synthetic failed result carrying msg as stderr.
func Failure(strategy, msg string) Result {
	return Result{ExitCode: 1, Stderr: msg, Strategy: strategy}
}

// Truncate caps s at limit characters, appending TruncatedMarker when cut.
// A limit <= 0 disables truncation.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + TruncatedMarker
		}
		n++
	}
	return s
}

func appendLine(s, line string) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return line
	}
	return s + "\n" + line
}
