package render

import (
	"context"
	"fmt"
	"strings"

	"resume-renderer/internal/config"
)

// Request is the input of one render attempt.
type Request struct {
	// Document is corrected document text.
	Document string
	// Name is the person's display name; the artifact filename derives from it.
	Name string
	// OutputRoot overrides the output root resolution order when set.
	OutputRoot      string
	PersistDocument bool
	IncludeInline   bool
	// LogLimit caps stdout/stderr; 0 selects DefaultLogLimit.
	LogLimit int
}

// Job is a Request with its derived attributes resolved by the Executor.
type Job struct {
	Request
	Filename   string
	OutputRoot string
}

// Strategy executes a render job. Implementations return an error only for
// infrastructure failures; engine failures are reported in the Result.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, job Job) (Result, error)
}

// UseRemote selects remote rendering: the environment cannot run the engine
// and a worker is configured.
func UseRemote(cfg config.Config) bool {
	return cfg.Constrained && strings.TrimSpace(cfg.WorkerURL) != ""
}

// InfrastructureError reports that an attempt could not be carried out at
// all: the run directory or document file could not be created, or the
// engine could not be started.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("render infrastructure: %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }
