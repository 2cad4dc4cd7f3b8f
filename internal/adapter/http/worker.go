package http

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"resume-renderer/internal/logging"
	"resume-renderer/internal/render"

	"github.com/gofiber/fiber/v2"
)

// Renderer runs one render attempt.
type Renderer interface {
	Render(ctx context.Context, req render.Request) (render.Result, error)
}

// Worker serves the remote rendering protocol: POST /render takes a corrected
// document and answers with the PDF as base64.
type Worker struct {
	renderer Renderer
	token    string
	logger   *slog.Logger
}

func NewWorker(r Renderer, token string, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Worker{renderer: r, token: strings.TrimSpace(token), logger: logger}
}

func (w *Worker) Register(app *fiber.App) {
	app.Get("/health", w.Health)
	app.Post("/render", w.authorize, w.Render)
}

func (w *Worker) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true, "status": "healthy"})
}

// authorize enforces the bearer token when one is configured.
func (w *Worker) authorize(c *fiber.Ctx) error {
	if w.token == "" {
		return c.Next()
	}
	got := c.Get(fiber.HeaderAuthorization)
	want := "Bearer " + w.token
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		w.logger.Warn("worker.unauthorized", "authorization", logging.Redact(got))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	return c.Next()
}

func (w *Worker) Render(c *fiber.Ctx) error {
	var req render.WorkerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}
	if strings.TrimSpace(req.YAML) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "yaml is required"})
	}

	// each request renders into its own scratch root
	root, err := os.MkdirTemp("", "render-worker-")
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(render.WorkerResponse{Error: err.Error()})
	}
	defer os.RemoveAll(root)

	res, err := w.renderer.Render(c.UserContext(), render.Request{
		Document:      req.YAML,
		OutputRoot:    root,
		IncludeInline: true,
	})
	if err != nil {
		var infra *render.InfrastructureError
		if errors.As(err, &infra) {
			w.logger.Error("worker.infrastructure_failed", "op", infra.Op, "err", infra.Err)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(render.WorkerResponse{Error: err.Error(), ReturnCode: 1, Stderr: res.Stderr})
	}
	if res.ExitCode != 0 {
		return c.Status(fiber.StatusInternalServerError).JSON(render.WorkerResponse{
			Error:      fmt.Sprintf("engine failed with return code %d", res.ExitCode),
			ReturnCode: res.ExitCode,
			Stdout:     res.Stdout,
			Stderr:     res.Stderr,
		})
	}
	if len(res.ArtifactInline) == 0 {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(render.WorkerResponse{
			Error:      "PDF produced but too large to return inline",
			ReturnCode: 1,
			Stdout:     res.Stdout,
		})
	}

	filename := req.Filename
	if filename == "" {
		filename = res.ExpectedFilename
	}
	return c.JSON(render.WorkerResponse{
		PDFB64:   base64.StdEncoding.EncodeToString(res.ArtifactInline),
		Filename: filename,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	})
}
