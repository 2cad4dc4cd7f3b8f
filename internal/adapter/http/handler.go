package http

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"resume-renderer/internal/artifact"
	"resume-renderer/internal/gateway"
	"resume-renderer/internal/logging"
	"resume-renderer/internal/render"
	"resume-renderer/internal/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Runner executes the repair loop for one request.
type Runner interface {
	Run(ctx context.Context, in usecase.RunInput) (*usecase.Outcome, error)
}

// Handoff hands out parked results once.
type Handoff interface {
	Take(key string) (render.Result, bool)
}

type Handler struct {
	runner  Runner
	guard   *gateway.Guard
	handoff Handoff
	limits  gateway.Limits
	logger  *slog.Logger
}

func NewHandler(r Runner, guard *gateway.Guard, h Handoff, limits gateway.Limits, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{runner: r, guard: guard, handoff: h, limits: limits, logger: logger}
}

// Register mounts the render API and the artifact gateway.
func (h *Handler) Register(app *fiber.App) {
	api := app.Group("/api")
	api.Post("/resume", h.RenderResume)
	api.Get("/file", h.ServeFile)
	api.Get("/handoff/:key", h.TakeHandoff)
}

type renderReq struct {
	Input         string `json:"input"`
	PersistYAML   bool   `json:"persist_yaml,omitempty"`
	IncludePDFB64 bool   `json:"include_pdf_b64,omitempty"`
}

// ResumeReady tells a client where to fetch the finished document.
type ResumeReady struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

func (h *Handler) RenderResume(c *fiber.Ctx) error {
	var req renderReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}
	if strings.TrimSpace(req.Input) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "input is required"})
	}

	out, err := h.runner.Run(c.UserContext(), usecase.RunInput{
		Input:           req.Input,
		RequestID:       uuid.NewString(),
		PersistDocument: req.PersistYAML,
		IncludeInline:   req.IncludePDFB64,
	})
	if err != nil {
		h.logger.Warn("api.render_aborted", "err", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "rendering aborted"})
	}

	if out.State != usecase.Succeeded {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":      fmt.Sprintf("rendering failed after %d attempts", len(out.Attempts)),
			"request_id": out.RequestID,
			"feedback":   out.Feedback(),
			"result":     gateway.Sanitize(out.Last, h.limits),
		})
	}
	return c.JSON(fiber.Map{
		"confirmation": out.Confirmation,
		"resume_ready": h.ready(out.Last, out.Confirmation.HandoffKey),
	})
}

// ready picks the URL a client should fetch: the gateway for a confined file
// on disk, a data URL for small inline bytes, the handoff endpoint for large
// ones, and the worker's URL last.
func (h *Handler) ready(res render.Result, key string) ResumeReady {
	r := ResumeReady{Name: res.ExpectedFilename, ContentType: "application/pdf"}
	switch {
	case res.ArtifactPath != "" && h.guard.Allowed(res.ArtifactPath) && exists(res.ArtifactPath):
		r.URL = "/api/file?path=" + url.QueryEscape(res.ArtifactPath)
	case len(res.ArtifactInline) > 0 && int64(len(res.ArtifactInline)) <= h.limits.MaxInlineBytes:
		r.URL = "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(res.ArtifactInline)
	case len(res.ArtifactInline) > 0:
		r.URL = "/api/handoff/" + url.PathEscape(key)
	default:
		r.URL = res.RemoteURL
	}
	return r
}

func (h *Handler) ServeFile(c *fiber.Ctx) error {
	path, err := h.guard.Resolve(c.Query("path"))
	if err != nil {
		if errors.Is(err, gateway.ErrForbidden) {
			h.logger.Warn("gateway.forbidden", "path", c.Query("path"))
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return h.sendFile(c, path)
}

func (h *Handler) TakeHandoff(c *fiber.Ctx) error {
	res, ok := h.handoff.Take(c.Params("key"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	}
	switch {
	case len(res.ArtifactInline) > 0:
		c.Set(fiber.HeaderContentType, "application/pdf")
		c.Set(fiber.HeaderContentDisposition, disposition("inline", res.ExpectedFilename))
		return c.Send(res.ArtifactInline)
	case res.ArtifactPath != "":
		path, err := h.guard.Resolve(res.ArtifactPath)
		if err != nil {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
		}
		return h.sendFile(c, path)
	case res.RemoteURL != "":
		return c.Redirect(res.RemoteURL, fiber.StatusFound)
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
}

// sendFile streams a resolved path. PDFs, recognised by extension and magic
// bytes, are served inline; anything else as an attachment.
func (h *Handler) sendFile(c *fiber.Ctx, path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	}
	f, err := os.Open(path)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	}
	head := make([]byte, 5)
	n, _ := io.ReadFull(f, head)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	name := filepath.Base(path)
	if strings.EqualFold(filepath.Ext(name), ".pdf") && artifact.IsPDF(head[:n]) {
		c.Set(fiber.HeaderContentType, "application/pdf")
		c.Set(fiber.HeaderContentDisposition, disposition("inline", name))
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		c.Set(fiber.HeaderContentDisposition, disposition("attachment", name))
	}
	// the body stream is closed by fasthttp once sent
	return c.SendStream(f, int(info.Size()))
}

func disposition(kind, name string) string {
	return fmt.Sprintf("%s; filename=%q", kind, name)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
