package infrastructure

import (
	"log/slog"
	"os/exec"

	"resume-renderer/internal/config"
	"resume-renderer/internal/render"
)

// NewEngine returns the configured typesetting engine. The command engine
// falls back to Chromium when its binary is not on PATH.
func NewEngine(cfg config.Config, logger *slog.Logger) render.Engine {
	if cfg.Engine == config.EngineCommand {
		if _, err := exec.LookPath(cfg.EngineBin); err == nil {
			return render.CommandEngine{Bin: cfg.EngineBin, Args: cfg.EngineArgs}
		}
		logger.Warn("engine.binary_missing", "bin", cfg.EngineBin, "fallback", config.EngineChromium)
	}
	return NewChromiumEngine(cfg.ChromePath, cfg.RenderTimeout)
}
