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
	"resume-renderer/internal/logging"
	"resume-renderer/internal/render"
	infra "resume-renderer/pkg/infrastructure"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
)

// The worker always renders locally; it is the remote end of the remote
// strategy.
func main() {
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver := artifact.NewResolver(cfg.VerifyPDF, logger)
	strategy := render.NewLocalStrategy(infra.NewEngine(cfg, logger), resolver, cfg.MaxInlineBytes, logger)
	executor := render.NewExecutor(strategy, render.TempRoot(), cfg.MaxLogChars, logger)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             16 << 20,
	})
	httpadapter.NewWorker(executor, cfg.WorkerToken, logger).Register(app)
	if cfg.WorkerToken == "" {
		logger.Warn("worker.unauthenticated", "hint", "set RENDER_WORKER_AUTH")
	}
	logger.Info("worker.starting", "port", cfg.WorkerPort, "engine", cfg.Engine)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Listen(":" + cfg.WorkerPort)
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(10 * time.Second)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker.failed", "err", err)
		os.Exit(1)
	}
}
