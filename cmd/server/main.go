package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "resume-renderer/internal/adapter/http"
	"resume-renderer/internal/artifact"
	"resume-renderer/internal/config"
	"resume-renderer/internal/document"
	"resume-renderer/internal/gateway"
	"resume-renderer/internal/handoff"
	"resume-renderer/internal/logging"
	"resume-renderer/internal/render"
	"resume-renderer/internal/usecase"
	"resume-renderer/pkg/ai"
	infra "resume-renderer/pkg/infrastructure"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server.failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	runs, closeRuns, err := infra.OpenRunStore(ctx, cfg.RunsDatabaseURL, logger)
	if err != nil {
		// history is optional
		logger.Warn("runs.unavailable", "err", err)
	}
	defer closeRuns()

	var generator usecase.Generator = ai.Static{}
	if client, err := ai.NewClient(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, logger); err == nil {
		generator = client
	} else {
		logger.Warn("generator.passthrough", "reason", err)
	}

	strategy := render.NewStrategy(cfg, infra.NewEngine(cfg, logger), artifact.NewResolver(cfg.VerifyPDF, logger), logger)
	executor := render.NewExecutor(strategy, cfg.OutDir, cfg.MaxLogChars, logger)

	store := handoff.New(cfg.HandoffTTL)
	defer store.Close()

	opts := []usecase.Option{usecase.WithLogger(logger)}
	if runs != nil {
		opts = append(opts, usecase.WithRecorder(runs))
	}
	orchestrator := usecase.NewOrchestrator(
		generator,
		document.NewCorrector(document.Options{DefaultTheme: cfg.DefaultTheme}, logger),
		executor,
		store,
		opts...,
	)

	roots := []string{cfg.OutDir, render.DefaultRoot(), render.TempRoot()}
	if root, err := render.ResolveOutputRoot("", cfg.OutDir); err == nil {
		roots = append(roots, root)
	}
	guard := gateway.NewGuard(roots...)
	limits := gateway.Limits{MaxInlineBytes: cfg.MaxInlineBytes, MaxLogChars: cfg.MaxLogChars}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httpadapter.NewHandler(orchestrator, guard, store, limits, logger).Register(app)

	logger.Info("server.starting",
		"port", cfg.Port,
		"strategy", executor.StrategyName(),
		"roots", guard.Roots(),
		"worker_auth", logging.Redact(cfg.WorkerToken),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server.stopping")
		return app.ShutdownWithTimeout(10 * time.Second)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
