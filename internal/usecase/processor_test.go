package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"resume-renderer/internal/artifact"
	"resume-renderer/internal/document"
	"resume-renderer/internal/domain"
	"resume-renderer/internal/render"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const nestedThemeDoc = `cv:
  name: Jane Doe
  sections:
    experience:
      - company: Acme
        position: Engineer
    design:
      theme: classic
`

type scriptedGenerator struct {
	docs     []string
	errs     []error
	requests []GenerateRequest
}

func (g *scriptedGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	g.requests = append(g.requests, req)
	i := len(g.requests) - 1
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.docs) {
		return g.docs[i], nil
	}
	return g.docs[len(g.docs)-1], nil
}

// scriptedRenderer fails until attempt succeedOn; 0 never succeeds.
type scriptedRenderer struct {
	t         *testing.T
	succeedOn int
	stderr    func(n int) string
	infraOn   int
	calls     []render.Request
}

func (r *scriptedRenderer) StrategyName() string { return render.StrategyLocal }

func (r *scriptedRenderer) Render(_ context.Context, req render.Request) (render.Result, error) {
	r.calls = append(r.calls, req)
	n := len(r.calls)
	filename := artifact.ExpectedFilename(req.Name)
	if n == r.infraOn {
		return render.Result{}, &render.InfrastructureError{Op: "start engine", Err: errors.New("exec: not found")}
	}
	if n == r.succeedOn {
		dir := r.t.TempDir()
		path := filepath.Join(dir, filename)
		require.NoError(r.t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
		res := render.Result{ArtifactPath: path, ExpectedFilename: filename, OutputFolder: dir, Strategy: render.StrategyLocal}
		if req.IncludeInline {
			res.ArtifactInline = []byte("%PDF-1.4")
		}
		return res, nil
	}
	stderr := fmt.Sprintf("failure %d", n)
	if r.stderr != nil {
		stderr = r.stderr(n)
	}
	return render.Result{ExitCode: 2, Stderr: stderr, ExpectedFilename: filename, Strategy: render.StrategyLocal}, nil
}

type mapStore struct {
	mu sync.Mutex
	m  map[string]render.Result
}

func (s *mapStore) Put(key string, res render.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = map[string]render.Result{}
	}
	s.m[key] = res
}

type memRecorder struct {
	runs     []domain.RenderRun
	attempts []domain.RenderAttempt
	err      error
}

func (m *memRecorder) StartRun(_ context.Context, run *domain.RenderRun) error {
	m.runs = append(m.runs, *run)
	return m.err
}

func (m *memRecorder) RecordAttempt(_ context.Context, a *domain.RenderAttempt) error {
	m.attempts = append(m.attempts, *a)
	return m.err
}

func (m *memRecorder) FinishRun(_ context.Context, run *domain.RenderRun) error {
	m.runs = append(m.runs, *run)
	return m.err
}

func newOrchestrator(g Generator, r Renderer, store ResultStore, opts ...Option) *Orchestrator {
	return NewOrchestrator(g, document.NewCorrector(document.Options{}, nil), r, store, opts...)
}

func TestNestedThemeRelocatedSucceedsFirstAttempt(t *testing.T) {
	gen := &scriptedGenerator{docs: []string{nestedThemeDoc}}
	ren := &scriptedRenderer{t: t, succeedOn: 1}
	store := &mapStore{}

	out, err := newOrchestrator(gen, ren, store).Run(context.Background(), RunInput{Input: "make my cv", RequestID: "req-1"})
	require.NoError(t, err)

	assert.Equal(t, Succeeded, out.State)
	require.Len(t, out.Attempts, 1)
	want := &Confirmation{Success: true, Filename: "Jane_Doe_CV.pdf", HasInlineArtifact: false, HandoffKey: "req-1"}
	if diff := cmp.Diff(want, out.Confirmation); diff != "" {
		t.Fatalf("confirmation mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, out.Feedback())

	// the renderer received the repaired document
	require.Len(t, ren.calls, 1)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(ren.calls[0].Document), &doc))
	assert.Equal(t, map[string]any{"theme": "classic"}, doc["design"])
	assert.Equal(t, "Jane Doe", ren.calls[0].Name)

	parked, ok := store.m["req-1"]
	require.True(t, ok)
	assert.Equal(t, out.Last, parked)
}

func TestTwoFailuresThenSuccess(t *testing.T) {
	gen := &scriptedGenerator{docs: []string{nestedThemeDoc}}
	ren := &scriptedRenderer{t: t, succeedOn: 3, stderr: func(int) string {
		return "Error: unknown field 'locale'"
	}}

	out, err := newOrchestrator(gen, ren, &mapStore{}).Run(context.Background(), RunInput{Input: "x", IncludeInline: true})
	require.NoError(t, err)

	assert.Equal(t, Succeeded, out.State)
	assert.Len(t, out.Attempts, 3)
	assert.Len(t, out.Feedback(), 2)
	require.Len(t, gen.requests, 3)
	assert.Empty(t, gen.requests[0].Feedback)
	assert.Len(t, gen.requests[1].Feedback, 1)
	assert.Len(t, gen.requests[2].Feedback, 2)
	assert.Equal(t, 3, gen.requests[2].Attempt)
	for _, fb := range gen.requests[2].Feedback {
		assert.Contains(t, fb, "unknown field 'locale'")
		assert.Contains(t, fb, "exit code 2")
	}
	assert.True(t, out.Confirmation.HasInlineArtifact)
	assert.NotEmpty(t, out.Confirmation.HandoffKey)
}

func TestThreeFailuresExhaust(t *testing.T) {
	gen := &scriptedGenerator{docs: []string{nestedThemeDoc}}
	ren := &scriptedRenderer{t: t}
	store := &mapStore{}

	out, err := newOrchestrator(gen, ren, store).Run(context.Background(), RunInput{Input: "x"})
	require.NoError(t, err)

	assert.Equal(t, Exhausted, out.State)
	assert.Nil(t, out.Confirmation)
	assert.Len(t, out.Attempts, MaxAttempts)
	assert.Len(t, ren.calls, MaxAttempts)
	assert.Equal(t, "failure 3", out.Last.Stderr)
	assert.Equal(t, 2, out.Last.ExitCode)
	assert.Empty(t, store.m)
}

func TestLoopNeverExceedsMaxAttempts(t *testing.T) {
	for succeedOn := 0; succeedOn <= MaxAttempts+2; succeedOn++ {
		gen := &scriptedGenerator{docs: []string{nestedThemeDoc}}
		ren := &scriptedRenderer{t: t, succeedOn: succeedOn}
		out, err := newOrchestrator(gen, ren, &mapStore{}).Run(context.Background(), RunInput{})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(out.Attempts), MaxAttempts)
		if succeedOn >= 1 && succeedOn <= MaxAttempts {
			assert.Equal(t, Succeeded, out.State)
			assert.Len(t, out.Attempts, succeedOn, "halts on first success")
		} else {
			assert.Equal(t, Exhausted, out.State)
		}
	}
}

func TestFailuresBeforeRenderConsumeAttempts(t *testing.T) {
	gen := &scriptedGenerator{
		docs: []string{"", "cv: [broken", nestedThemeDoc, nestedThemeDoc},
		errs: []error{errors.New("model overloaded")},
	}
	ren := &scriptedRenderer{t: t, succeedOn: 1}
	rec := &memRecorder{}

	out, err := newOrchestrator(gen, ren, &mapStore{}, WithRecorder(rec)).Run(context.Background(), RunInput{})
	require.NoError(t, err)

	assert.Equal(t, Succeeded, out.State)
	require.Len(t, out.Attempts, 3)
	assert.Contains(t, out.Attempts[0].Feedback, "model overloaded")
	assert.Equal(t, document.ParseError, document.KindOf(out.Attempts[1].Err))
	assert.Contains(t, out.Attempts[1].Feedback, "ParseError")
	assert.Len(t, ren.calls, 1)

	require.Len(t, rec.attempts, 3)
	assert.Equal(t, "GenerationFailure", rec.attempts[0].FailureKind)
	assert.Equal(t, "ParseError", rec.attempts[1].FailureKind)
	assert.Equal(t, "", rec.attempts[2].FailureKind)
	require.Len(t, rec.runs, 2)
	assert.Equal(t, domain.RunSucceeded, rec.runs[1].State)
	assert.Equal(t, 3, rec.runs[1].Attempts)
}

func TestEmptyGeneratorOutputConsumesAttempt(t *testing.T) {
	gen := &scriptedGenerator{docs: []string{"  \n", nestedThemeDoc}}
	ren := &scriptedRenderer{t: t, succeedOn: 1}
	out, err := newOrchestrator(gen, ren, &mapStore{}).Run(context.Background(), RunInput{})
	require.NoError(t, err)
	assert.Equal(t, Succeeded, out.State)
	assert.Len(t, out.Attempts, 2)
	assert.Contains(t, out.Attempts[0].Feedback, "no text")
}

func TestInfrastructureErrorIsRetried(t *testing.T) {
	gen := &scriptedGenerator{docs: []string{nestedThemeDoc}}
	ren := &scriptedRenderer{t: t, infraOn: 1, succeedOn: 2}
	rec := &memRecorder{err: errors.New("db down")}

	out, err := newOrchestrator(gen, ren, &mapStore{}, WithRecorder(rec)).Run(context.Background(), RunInput{})
	require.NoError(t, err)
	assert.Equal(t, Succeeded, out.State)
	var infra *render.InfrastructureError
	require.ErrorAs(t, out.Attempts[0].Err, &infra)
	assert.Contains(t, out.Attempts[0].Feedback, "exec: not found")
	assert.Equal(t, "InfrastructureError", rec.attempts[0].FailureKind)
}

func TestFeedbackElidesBase64(t *testing.T) {
	blob := strings.Repeat("QUJD", 100)
	gen := &scriptedGenerator{docs: []string{nestedThemeDoc}}
	ren := &scriptedRenderer{t: t, stderr: func(int) string {
		return "bad output " + blob + " and data:application/pdf;base64,JVBERi0xLjQ="
	}}

	out, err := newOrchestrator(gen, ren, &mapStore{}).Run(context.Background(), RunInput{})
	require.NoError(t, err)
	for _, fb := range out.Feedback() {
		assert.NotContains(t, fb, blob)
		assert.NotContains(t, fb, "JVBERi0xLjQ=")
		assert.Contains(t, fb, "bad output")
		assert.Contains(t, fb, "<base64 elided, 400 chars>")
	}
}

func TestFeedbackClipsLongLogs(t *testing.T) {
	e := NewEliding(0)
	fb := e.Feedback(render.Result{ExitCode: 1, Stderr: strings.Repeat("word ", 1000), Stdout: "ok"})
	stderr := fb[strings.Index(fb, "stderr:\n")+len("stderr:\n") : strings.Index(fb, "\nstdout:")]
	assert.LessOrEqual(t, len([]rune(stderr)), MaxFeedbackPart)
	assert.True(t, strings.HasSuffix(stderr, render.TruncatedMarker))
	assert.Contains(t, fb, "stdout:\nok")
}

func TestElideThresholdOption(t *testing.T) {
	e := NewEliding(10)
	assert.Equal(t, "x <base64 elided, 12 chars> y", e.Apply("x ABCDEFGHIJKL y"))
	assert.Equal(t, "x ABCDEFGHI y", e.Apply("x ABCDEFGHI y"))
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &scriptedGenerator{docs: []string{nestedThemeDoc}}
	out, err := newOrchestrator(gen, &scriptedRenderer{t: t}, &mapStore{}).Run(ctx, RunInput{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.Attempts)
	assert.Empty(t, gen.requests)
}
