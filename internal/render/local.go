package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"resume-renderer/internal/artifact"
	"resume-renderer/internal/logging"

	"github.com/google/uuid"
)

const DocumentFilename = "resume.yaml"

// EngineOutput is what the typesetting engine reported for one invocation.
type EngineOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Engine typesets the document at docPath into outDir. A non-nil error means
// the engine could not be started; a failed render is a non-zero ExitCode.
type Engine interface {
	Render(ctx context.Context, docPath, outDir string) (EngineOutput, error)
}

// CommandEngine runs an external binary as `<bin> [args] render <doc> --output <dir>`.
type CommandEngine struct {
	Bin  string
	Args []string
}

func (e CommandEngine) Render(ctx context.Context, docPath, outDir string) (EngineOutput, error) {
	args := append(append([]string{}, e.Args...), "render", docPath, "--output", outDir)
	cmd := exec.CommandContext(ctx, e.Bin, args...)
	cmd.Dir = outDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := EngineOutput{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		if out.ExitCode == 0 {
			out.ExitCode = -1
		}
		return out, nil
	}
	return out, fmt.Errorf("start %s: %w", e.Bin, err)
}

// LocalStrategy renders in-process or through a local subprocess, inside a
// fresh run directory under the job's output root.
type LocalStrategy struct {
	engine      Engine
	resolver    *artifact.Resolver
	maxInline   int64
	constrained bool
	logger      *slog.Logger
	now         func() time.Time
}

func NewLocalStrategy(engine Engine, resolver *artifact.Resolver, maxInline int64, logger *slog.Logger) *LocalStrategy {
	if logger == nil {
		logger = logging.Nop()
	}
	if resolver == nil {
		resolver = artifact.NewResolver(false, logger)
	}
	return &LocalStrategy{engine: engine, resolver: resolver, maxInline: maxInline, logger: logger, now: time.Now}
}

func (s *LocalStrategy) Name() string { return StrategyLocal }

func (s *LocalStrategy) Execute(ctx context.Context, job Job) (Result, error) {
	runDir := filepath.Join(job.OutputRoot, RunDirName(job.Name, s.now()))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return Result{}, &InfrastructureError{Op: "create run directory", Err: err}
	}

	docPath, cleanup, err := s.writeDocument(runDir, job)
	if err != nil {
		return Result{}, &InfrastructureError{Op: "write document", Err: err}
	}
	defer cleanup()

	out, err := s.engine.Render(ctx, docPath, runDir)
	if err != nil {
		return Result{}, &InfrastructureError{Op: "start engine", Err: err}
	}

	res := Result{
		Stdout:           out.Stdout,
		Stderr:           out.Stderr,
		ExitCode:         out.ExitCode,
		ExpectedFilename: job.Filename,
		OutputFolder:     runDir,
	}
	if job.PersistDocument {
		res.DocumentPath = docPath
	}
	if res.ExitCode != 0 {
		return res, nil
	}

	path, err := s.resolver.Locate(runDir, job.Filename)
	if err != nil {
		s.logger.Warn("render.artifact_missing", "dir", runDir, "err", err)
		return res, nil
	}
	pages, err := s.resolver.Verify(path)
	if err != nil {
		res.ExitCode = 1
		res.Stderr = appendLine(res.Stderr, fmt.Sprintf("produced file %s is not a valid PDF: %v", filepath.Base(path), err))
		return res, nil
	}
	res.ArtifactPath = path
	res.ExpectedFilename = filepath.Base(path)
	res.PageCount = pages

	enc, err := s.resolver.Encode(path, artifact.Policy{Requested: job.IncludeInline, Constrained: s.constrained, MaxBytes: s.maxInline})
	if err != nil {
		s.logger.Warn("render.inline_failed", "path", path, "err", err)
	} else {
		res.ArtifactInline = enc.Data
	}
	return res, nil
}

// writeDocument stores the document in the run directory when it is to be
// kept, otherwise in a temporary file removed by the returned cleanup.
func (s *LocalStrategy) writeDocument(runDir string, job Job) (string, func(), error) {
	noop := func() {}
	if job.PersistDocument {
		p := filepath.Join(runDir, DocumentFilename)
		if err := os.WriteFile(p, []byte(job.Document), 0o644); err != nil {
			return "", noop, err
		}
		return p, noop, nil
	}
	f, err := os.CreateTemp("", "resume-*.yaml")
	if err != nil {
		return "", noop, err
	}
	name := f.Name()
	cleanup := func() {
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("render.cleanup_failed", "path", name, "err", err)
		}
	}
	if _, err := f.WriteString(job.Document); err != nil {
		f.Close()
		cleanup()
		return "", noop, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", noop, err
	}
	return name, cleanup, nil
}

// RunDirName returns a unique directory name `<slug>_<YYYYmmdd_HHMMSS>_<8 hex>`.
func RunDirName(name string, now time.Time) string {
	slug := artifact.Slug(name)
	if slug == "" {
		slug = "resume"
	}
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%s_%s_%s", slug, now.Format("20060102_150405"), suffix)
}
