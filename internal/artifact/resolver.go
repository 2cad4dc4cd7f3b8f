package artifact

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"resume-renderer/internal/document"
	"resume-renderer/internal/logging"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// SkipReason explains why an artifact was not encoded inline.
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipNotRequested SkipReason = "NotRequested"
	SkipConstrained  SkipReason = "Constrained"
	PayloadTooLarge  SkipReason = "PayloadTooLarge"
)

// DefaultMaxBytes bounds inline artifacts when a policy sets no limit.
const DefaultMaxBytes int64 = 8 << 20

var ErrNotFound = errors.New("artifact not found")

// Policy decides whether a located artifact is returned inline.
type Policy struct {
	Requested   bool
	Constrained bool
	MaxBytes    int64
}

// Encoded is the outcome of an inline encoding decision. Data is empty when
// Skipped is set.
type Encoded struct {
	Data    []byte
	Size    int64
	Skipped SkipReason
}

// Base64 returns the standard base64 form of Data.
func (e Encoded) Base64() string {
	if len(e.Data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(e.Data)
}

type Resolver struct {
	verify bool
	logger *slog.Logger
}

func NewResolver(verify bool, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Resolver{verify: verify, logger: logger}
}

// Locate finds the produced PDF under dir. The expected filename is tried at
// the top of dir first, then the whole tree is searched for any file with a
// .pdf extension, case-insensitively.
func (r *Resolver) Locate(dir, expected string) (string, error) {
	if expected != "" {
		p := filepath.Join(dir, expected)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p, nil
		}
	}
	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".pdf") {
			return nil
		}
		if expected != "" && strings.EqualFold(d.Name(), expected) {
			found = path
			return fs.SkipAll
		}
		if found == "" {
			found = path
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search %s: %w", dir, err)
	}
	if found == "" {
		return "", fmt.Errorf("%w in %s", ErrNotFound, dir)
	}
	return found, nil
}

// Encode reads the artifact for inline transfer when the policy permits.
// A file over the size limit is reported as skipped, not as an error.
func (r *Resolver) Encode(path string, p Policy) (Encoded, error) {
	switch {
	case p.Constrained:
		return Encoded{Skipped: SkipConstrained}, nil
	case !p.Requested:
		return Encoded{Skipped: SkipNotRequested}, nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return Encoded{}, fmt.Errorf("stat artifact: %w", err)
	}
	limit := p.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if fi.Size() > limit {
		r.logger.Info("artifact.inline_skipped", "path", path, "size", fi.Size(), "limit", limit)
		return Encoded{Size: fi.Size(), Skipped: PayloadTooLarge}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Encoded{}, fmt.Errorf("read artifact: %w", err)
	}
	return Encoded{Data: data, Size: int64(len(data))}, nil
}

// Verify checks that path holds a readable PDF and returns its page count.
// It returns 0 without opening the file when verification is disabled.
func (r *Resolver) Verify(path string) (int, error) {
	if !r.verify {
		return 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	if ctx.PageCount < 1 {
		return 0, errors.New("pdf has no pages")
	}
	return ctx.PageCount, nil
}

// IsPDF reports whether data starts with the PDF magic bytes.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// Slug reduces a display name to ASCII letters, digits and underscores.
func Slug(name string) string { return document.Slug(name) }

// ExpectedFilename is the artifact name for the person called name.
func ExpectedFilename(name string) string { return document.ExpectedFilename(name) }
