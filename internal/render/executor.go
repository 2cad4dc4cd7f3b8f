package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"resume-renderer/internal/artifact"
	"resume-renderer/internal/config"
	"resume-renderer/internal/document"
	"resume-renderer/internal/logging"
)

const outputDirName = "generated_resumes"

// Executor runs one render attempt through the configured strategy and
// returns a normalized Result.
type Executor struct {
	strategy Strategy
	outDir   string
	logLimit int
	logger   *slog.Logger
}

func NewExecutor(strategy Strategy, outDir string, logLimit int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.Nop()
	}
	if logLimit <= 0 {
		logLimit = DefaultLogLimit
	}
	return &Executor{strategy: strategy, outDir: outDir, logLimit: logLimit, logger: logger}
}

// NewStrategy picks the remote worker when UseRemote holds and the local
// engine otherwise.
func NewStrategy(cfg config.Config, engine Engine, resolver *artifact.Resolver, logger *slog.Logger) Strategy {
	if UseRemote(cfg) {
		return NewRemoteStrategy(cfg.WorkerURL, cfg.WorkerToken, cfg.RenderTimeout, logger)
	}
	local := NewLocalStrategy(engine, resolver, cfg.MaxInlineBytes, logger)
	local.constrained = cfg.Constrained
	return local
}

func (e *Executor) StrategyName() string { return e.strategy.Name() }

// Render executes req. Engine failures are reported through the Result; the
// error is non-nil only for an *InfrastructureError.
func (e *Executor) Render(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if strings.TrimSpace(req.Name) == "" {
		req.Name = document.DisplayName(req.Document)
	}
	job := Job{Request: req, Filename: artifact.ExpectedFilename(req.Name)}
	if e.strategy.Name() == StrategyLocal {
		root, err := ResolveOutputRoot(req.OutputRoot, e.outDir)
		if err != nil {
			return Result{Strategy: e.strategy.Name(), ExpectedFilename: job.Filename}, &InfrastructureError{Op: "resolve output root", Err: err}
		}
		job.OutputRoot = root
	}

	res, err := e.strategy.Execute(ctx, job)
	res.Strategy = e.strategy.Name()
	res.Duration = time.Since(start)
	if res.ExpectedFilename == "" {
		res.ExpectedFilename = job.Filename
	}
	if err != nil {
		e.logger.Error("render.infrastructure_failed", "strategy", res.Strategy, "err", err)
		return res, err
	}

	limit := req.LogLimit
	if limit <= 0 {
		limit = e.logLimit
	}
	res.Stdout = Truncate(res.Stdout, limit)
	res.Stderr = Truncate(res.Stderr, limit)
	res.Normalize()

	e.logger.Info("render.completed",
		"strategy", res.Strategy,
		"exit_code", res.ExitCode,
		"filename", res.ExpectedFilename,
		"artifact", res.ArtifactPath,
		"inline_bytes", len(res.ArtifactInline),
		"duration", res.Duration,
	)
	return res, nil
}

// TempRoot is the output root used when no persistent root is writable.
func TempRoot() string {
	return filepath.Join(os.TempDir(), outputDirName)
}

// DefaultRoot is the persistent output root relative to the working directory.
func DefaultRoot() string {
	return outputDirName
}

// ResolveOutputRoot returns the first writable directory among explicit,
// configured, ./generated_resumes and $TMPDIR/generated_resumes.
func ResolveOutputRoot(explicit, configured string) (string, error) {
	var lastErr error
	for _, dir := range []string{explicit, configured, DefaultRoot(), TempRoot()} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			lastErr = err
			continue
		}
		if err := writable(abs); err != nil {
			lastErr = err
			continue
		}
		return abs, nil
	}
	return "", fmt.Errorf("no writable output root: %w", lastErr)
}

func writable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
