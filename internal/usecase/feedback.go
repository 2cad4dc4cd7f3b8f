package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"resume-renderer/internal/render"
)

const (
	// DefaultElideThreshold is the shortest base64-looking run that is elided.
	DefaultElideThreshold = 200
	// MaxFeedbackPart caps each of stderr and stdout in a feedback message.
	MaxFeedbackPart = 2000
)

var dataURLRe = regexp.MustCompile(`data:[\w.+/-]*;base64,[A-Za-z0-9+/=]+`)

// Eliding replaces base64 payloads with a short placeholder so that encoded
// artifacts never re-enter the generator's context.
type Eliding struct {
	run *regexp.Regexp
}

func NewEliding(threshold int) Eliding {
	if threshold <= 0 {
		threshold = DefaultElideThreshold
	}
	return Eliding{run: regexp.MustCompile(fmt.Sprintf(`[A-Za-z0-9+/=]{%d,}`, threshold))}
}

func (e Eliding) Apply(s string) string {
	s = dataURLRe.ReplaceAllStringFunc(s, func(m string) string {
		i := strings.Index(m, ",")
		return m[:i+1] + fmt.Sprintf("<base64 elided, %d chars>", len(m)-i-1)
	})
	return e.run.ReplaceAllStringFunc(s, func(m string) string {
		return fmt.Sprintf("<base64 elided, %d chars>", len(m))
	})
}

// Feedback turns a failed result into the message given to the generator on
// the next attempt.
func (e Eliding) Feedback(res render.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rendering failed with exit code %d.", res.ExitCode)
	if s := clip(e.Apply(strings.TrimSpace(res.Stderr)), MaxFeedbackPart); s != "" {
		b.WriteString("\nstderr:\n")
		b.WriteString(s)
	}
	if s := clip(e.Apply(strings.TrimSpace(res.Stdout)), MaxFeedbackPart); s != "" {
		b.WriteString("\nstdout:\n")
		b.WriteString(s)
	}
	b.WriteString("\nFix the document so that it renders and return the complete corrected YAML.")
	return b.String()
}

// clip cuts s so that the result, marker included, has at most max characters.
func clip(s string, max int) string {
	if len([]rune(s)) <= max {
		return s
	}
	keep := max - len([]rune(render.TruncatedMarker))
	if keep < 0 {
		keep = 0
	}
	return string([]rune(s)[:keep]) + render.TruncatedMarker
}
