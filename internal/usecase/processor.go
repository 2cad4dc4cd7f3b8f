package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"resume-renderer/internal/document"
	"resume-renderer/internal/domain"
	"resume-renderer/internal/logging"
	"resume-renderer/internal/render"

	"github.com/google/uuid"
)

// Orchestrator drives the repair loop: generate, correct, render, and on
// failure feed the error back to the generator, up to MaxAttempts times.
type Orchestrator struct {
	generator Generator
	corrector Corrector
	renderer  Renderer
	store     ResultStore
	recorder  RunRecorder
	eliding   Eliding
	logger    *slog.Logger
}

type Option func(*Orchestrator)

func WithRecorder(r RunRecorder) Option { return func(o *Orchestrator) { o.recorder = r } }

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithElideThreshold sets the shortest base64 run elided from feedback.
func WithElideThreshold(n int) Option { return func(o *Orchestrator) { o.eliding = NewEliding(n) } }

func NewOrchestrator(g Generator, c Corrector, r Renderer, store ResultStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		generator: g,
		corrector: c,
		renderer:  r,
		store:     store,
		eliding:   NewEliding(DefaultElideThreshold),
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the loop for one request. The returned error is non-nil only
// when ctx is done before a terminal state is reached.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (*Outcome, error) {
	if in.RequestID == "" {
		in.RequestID = uuid.NewString()
	}
	log := o.logger.With("request_id", in.RequestID)
	run := &domain.RenderRun{
		ID:        uuid.New(),
		RequestID: in.RequestID,
		Strategy:  o.renderer.StrategyName(),
		State:     domain.RunAttempting,
		CreatedAt: time.Now().UTC(),
	}
	o.record(log, "start_run", func() error { return o.recorder.StartRun(ctx, run) })

	out := &Outcome{RequestID: in.RequestID}
	var feedback []string
	for i := 1; i <= MaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			run.State = domain.RunFailed
			o.finish(log, run, out)
			return out, err
		}
		att := o.attempt(ctx, in, i, feedback)
		if !att.Result.Succeeded() {
			att.Feedback = o.eliding.Feedback(att.Result)
			feedback = append(feedback, att.Feedback)
			log.Warn("render.attempt_failed", "attempt", i, "exit_code", att.Result.ExitCode, "err", att.Err)
		}
		out.Attempts = append(out.Attempts, att)
		out.Last = att.Result
		o.recordAttempt(ctx, log, run, att)

		if att.Result.Succeeded() {
			o.store.Put(in.RequestID, att.Result)
			out.State = Succeeded
			out.Confirmation = &Confirmation{
				Success:           true,
				Filename:          att.Result.ExpectedFilename,
				HasInlineArtifact: len(att.Result.ArtifactInline) > 0,
				HandoffKey:        in.RequestID,
			}
			run.State = domain.RunSucceeded
			run.Filename = att.Result.ExpectedFilename
			run.HandoffKey = in.RequestID
			log.Info("render.succeeded", "attempt", i, "filename", run.Filename)
			o.finish(log, run, out)
			return out, nil
		}
	}
	out.State = Exhausted
	run.State = domain.RunExhausted
	log.Warn("render.exhausted", "attempts", MaxAttempts)
	o.finish(log, run, out)
	return out, nil
}

// attempt runs one cycle. Every failure mode ends in a failed Result so the
// loop can derive feedback from it uniformly.
func (o *Orchestrator) attempt(ctx context.Context, in RunInput, index int, feedback []string) Attempt {
	att := Attempt{Index: index}
	strategy := o.renderer.StrategyName()

	raw, err := o.generator.Generate(ctx, GenerateRequest{
		Input:    in.Input,
		Feedback: append([]string(nil), feedback...),
		Attempt:  index,
	})
	switch {
	case err != nil:
		att.Err = fmt.Errorf("generate: %w", err)
		att.Result = render.Failure(strategy, "Document generation failed: "+err.Error())
		return att
	case strings.TrimSpace(raw) == "":
		att.Err = errors.New("generate: empty document")
		att.Result = render.Failure(strategy, "Document generation returned no text.")
		return att
	}
	att.Document = raw

	corrected, err := o.corrector.Correct(raw)
	if err != nil {
		att.Err = err
		att.Result = render.Failure(strategy, "Document is not valid: "+err.Error())
		return att
	}
	att.Document = corrected.Text
	if corrected.Report.Changed() {
		o.logger.Debug("document.repaired", "attempt", index, "repairs", corrected.Report.Repairs, "dropped", corrected.Report.Dropped, "diff", corrected.Report.Diff)
	}

	res, err := o.renderer.Render(ctx, render.Request{
		Document:        corrected.Text,
		Name:            corrected.Name,
		OutputRoot:      in.OutputRoot,
		PersistDocument: in.PersistDocument,
		IncludeInline:   in.IncludeInline,
	})
	if err != nil {
		att.Err = err
		msg := "Rendering could not be started: " + err.Error()
		if res.Stderr != "" {
			msg += "\n" + res.Stderr
		}
		att.Result = render.Failure(strategy, msg)
		att.Result.ExpectedFilename = corrected.Filename
		return att
	}
	att.Result = res
	return att
}

func (o *Orchestrator) recordAttempt(ctx context.Context, log *slog.Logger, run *domain.RenderRun, att Attempt) {
	run.Attempts = att.Index
	rec := &domain.RenderAttempt{
		ID:           uuid.New(),
		RunID:        run.ID,
		Index:        att.Index,
		Strategy:     att.Result.Strategy,
		ExitCode:     att.Result.ExitCode,
		Filename:     att.Result.ExpectedFilename,
		ArtifactPath: att.Result.ArtifactPath,
		OutputFolder: att.Result.OutputFolder,
		Stderr:       render.Truncate(att.Result.Stderr, render.DefaultLogLimit),
		FailureKind:  failureKind(att),
		Duration:     att.Result.Duration,
		CreatedAt:    time.Now().UTC(),
	}
	o.record(log, "record_attempt", func() error { return o.recorder.RecordAttempt(ctx, rec) })
}

func (o *Orchestrator) finish(log *slog.Logger, run *domain.RenderRun, out *Outcome) {
	run.CompletedAt = time.Now().UTC()
	run.Attempts = len(out.Attempts)
	// the request context may already be done; history is written regardless
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o.record(log, "finish_run", func() error { return o.recorder.FinishRun(ctx, run) })
}

func (o *Orchestrator) record(log *slog.Logger, op string, fn func() error) {
	if o.recorder == nil {
		return
	}
	if err := fn(); err != nil {
		log.Warn("runs.record_failed", "op", op, "err", err)
	}
}

func failureKind(att Attempt) string {
	if att.Result.Succeeded() {
		return ""
	}
	var infra *render.InfrastructureError
	switch {
	case att.Err == nil:
		return "EngineFailure"
	case errors.As(att.Err, &infra):
		return "InfrastructureError"
	case document.KindOf(att.Err) != "":
		return string(document.KindOf(att.Err))
	default:
		return "GenerationFailure"
	}
}
