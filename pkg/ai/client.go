package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"resume-renderer/internal/logging"
	"resume-renderer/internal/usecase"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// SystemPrompt states the document contract the generator must follow.
const SystemPrompt = `You write CV documents for the RenderCV typesetting engine.
Respond with ONLY the YAML document. No explanations, no Markdown fences.

The document has exactly these top-level keys:
  cv:      name, label, location, email, phone, website, social_networks, sections
  design:  theme (one of sb2nov, classic, moderncv, engineeringresumes, engineeringclassic)

Rules:
- design is a top-level key. Never nest design, theme, locale or rendercv_settings under cv.
- cv.sections is a mapping from section title to a LIST of entries.
- Entries are plain strings or mappings such as
  {company, position, location, start_date, end_date, highlights},
  {institution, area, degree, start_date, end_date, highlights},
  {name, date, summary, highlights}, {label, details} or {bullet}.
- Dates are YYYY-MM or YYYY-MM-DD, or "present" for end_date.
- Use two-space indentation and no tabs.`

// Client generates documents through an OpenAI-compatible chat completions
// API.
type Client struct {
	Model  string
	Opts   []option.RequestOption
	logger *slog.Logger
}

func NewClient(apiKey, model, baseURL string, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key missing; set OPENAI_API_KEY")
	}
	if model == "" {
		return nil, errors.New("openai model is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
		option.WithRequestTimeout(90 * time.Second),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{Model: model, Opts: opts, logger: logger}, nil
}

// Generate implements usecase.Generator.
func (c *Client) Generate(ctx context.Context, req usecase.GenerateRequest) (string, error) {
	client := openai.NewClient(c.Opts...)
	start := time.Now()
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.Model),
		Messages: Messages(req),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	c.logger.Debug("generator.completed", "attempt", req.Attempt, "model", c.Model,
		"feedback", len(req.Feedback), "duration", time.Since(start))
	return resp.Choices[0].Message.Content, nil
}

// Messages builds the conversation for one generation attempt.
func Messages(req usecase.GenerateRequest) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(SystemPrompt),
		openai.UserMessage(UserPrompt(req)),
	}
}

// UserPrompt combines the caller's input with the feedback of every failed
// attempt so far.
func UserPrompt(req usecase.GenerateRequest) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.Input))
	if len(req.Feedback) == 0 {
		return b.String()
	}
	b.WriteString("\n\nYour previous documents failed to render. Errors, oldest first:")
	for i, fb := range req.Feedback {
		fmt.Fprintf(&b, "\n\n--- attempt %d ---\n%s", i+1, fb)
	}
	b.WriteString("\n\nReturn the complete corrected document.")
	return b.String()
}

// Static returns fixed documents: Documents[i] for attempt i+1, repeating the
// last one. With no documents it returns the request input unchanged.
type Static struct {
	Documents []string
}

func (s Static) Generate(_ context.Context, req usecase.GenerateRequest) (string, error) {
	if len(s.Documents) == 0 {
		return req.Input, nil
	}
	i := req.Attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(s.Documents) {
		i = len(s.Documents) - 1
	}
	return s.Documents[i], nil
}
