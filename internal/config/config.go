package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process configuration, read once from the environment.
type Config struct {
	Port       string
	WorkerPort string

	// OutDir overrides the persistent output root (RESUME_OUT_DIR).
	OutDir string

	// Remote rendering worker.
	WorkerURL   string
	WorkerToken string
	// Constrained is set when running in a serverless/constrained environment
	// where spawning the typesetting engine is not possible.
	Constrained   bool
	RenderTimeout time.Duration

	Engine     string
	EngineBin  string
	EngineArgs []string
	ChromePath string

	MaxLogChars    int
	MaxInlineBytes int64
	VerifyPDF      bool
	DefaultTheme   string
	HandoffTTL     time.Duration

	RunsDatabaseURL string

	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string

	LogLevel  string
	LogFormat string
}

const (
	EngineCommand  = "command"
	EngineChromium = "chromium"
)

func Load() Config {
	cfg := Config{
		Port:            getenv("PORT", "3000"),
		WorkerPort:      getenv("WORKER_PORT", "8000"),
		OutDir:          strings.TrimSpace(os.Getenv("RESUME_OUT_DIR")),
		WorkerURL:       strings.TrimSpace(os.Getenv("RENDER_WORKER_URL")),
		WorkerToken:     strings.TrimSpace(os.Getenv("RENDER_WORKER_AUTH")),
		Constrained:     os.Getenv("VERCEL") != "" || getbool("RENDER_CONSTRAINED", false),
		RenderTimeout:   getduration("RENDER_TIMEOUT", 120*time.Second),
		Engine:          strings.ToLower(getenv("RENDER_ENGINE", EngineCommand)),
		EngineBin:       getenv("RENDER_ENGINE_BIN", "rendercv"),
		EngineArgs:      strings.Fields(os.Getenv("RENDER_ENGINE_ARGS")),
		ChromePath:      os.Getenv("CHROME_PATH"),
		MaxLogChars:     getint("MAX_LOG_CHARS", 4000),
		MaxInlineBytes:  int64(getint("MAX_INLINE_BYTES", 8<<20)),
		VerifyPDF:       getbool("VERIFY_PDF", true),
		DefaultTheme:    getenv("DEFAULT_THEME", "sb2nov"),
		HandoffTTL:      getduration("HANDOFF_TTL", 10*time.Minute),
		RunsDatabaseURL: os.Getenv("RUNS_DATABASE_URL"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     getenv("OPENAI_MODEL", "gpt-4.1"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogFormat:       getenv("LOG_FORMAT", "text"),
	}
	if cfg.Engine != EngineChromium {
		cfg.Engine = EngineCommand
	}
	return cfg
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getbool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getduration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	// bare numbers are seconds
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
