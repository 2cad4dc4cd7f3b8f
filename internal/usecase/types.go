package usecase

import (
	"context"

	"resume-renderer/internal/document"
	"resume-renderer/internal/domain"
	"resume-renderer/internal/render"
)

// MaxAttempts bounds the generate-correct-render cycles of one run.
const MaxAttempts = 3

// GenerateRequest asks the document generator for a new document. Feedback
// holds one message per failed attempt so far, oldest first.
type GenerateRequest struct {
	Input    string
	Feedback []string
	Attempt  int
}

// Generator produces structured document text.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

type Corrector interface {
	Correct(raw string) (*document.Corrected, error)
}

type Renderer interface {
	Render(ctx context.Context, req render.Request) (render.Result, error)
	StrategyName() string
}

// ResultStore parks successful results for retrieval by key.
type ResultStore interface {
	Put(key string, res render.Result)
}

// RunRecorder persists run history. Implementations may be slow or fail;
// the orchestrator only logs their errors.
type RunRecorder interface {
	StartRun(ctx context.Context, run *domain.RenderRun) error
	RecordAttempt(ctx context.Context, a *domain.RenderAttempt) error
	FinishRun(ctx context.Context, run *domain.RenderRun) error
}

// RunInput is one request to the repair loop.
type RunInput struct {
	Input           string
	RequestID       string
	OutputRoot      string
	PersistDocument bool
	IncludeInline   bool
}

// State is the terminal state of a run.
type State string

const (
	Succeeded State = "succeeded"
	Exhausted State = "exhausted"
)

// Attempt records one cycle. Err is the correction, generation or
// infrastructure error that replaced a render, if any.
type Attempt struct {
	Index    int
	Document string
	Result   render.Result
	Err      error
	Feedback string
}

// Confirmation is the compact success signal handed to the caller in place
// of the artifact itself.
type Confirmation struct {
	Success           bool   `json:"success"`
	Filename          string `json:"filename"`
	HasInlineArtifact bool   `json:"has_inline_artifact"`
	HandoffKey        string `json:"handoff_key"`
}

// Outcome is the result of a run. Confirmation is set only when State is
// Succeeded; Last is the final attempt's raw result in both states.
type Outcome struct {
	State        State
	RequestID    string
	Attempts     []Attempt
	Last         render.Result
	Confirmation *Confirmation
}

// Feedback returns the feedback messages accumulated over the run.
func (o *Outcome) Feedback() []string {
	var out []string
	for _, a := range o.Attempts {
		if a.Feedback != "" {
			out = append(out, a.Feedback)
		}
	}
	return out
}
