package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run states.
const (
	RunAttempting = "attempting"
	RunSucceeded  = "succeeded"
	RunExhausted  = "exhausted"
	RunFailed     = "failed"
)

// RenderRun is one invocation of the repair loop.
type RenderRun struct {
	ID          uuid.UUID `json:"id"`
	RequestID   string    `json:"request_id"`
	Strategy    string    `json:"strategy"`
	State       string    `json:"state"`
	Attempts    int       `json:"attempts"`
	Filename    string    `json:"filename,omitempty"`
	HandoffKey  string    `json:"handoff_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// RenderAttempt is one generate-correct-render cycle inside a run.
type RenderAttempt struct {
	ID           uuid.UUID     `json:"id"`
	RunID        uuid.UUID     `json:"run_id"`
	Index        int           `json:"index"`
	Strategy     string        `json:"strategy"`
	ExitCode     int           `json:"exit_code"`
	Filename     string        `json:"filename,omitempty"`
	ArtifactPath string        `json:"artifact_path,omitempty"`
	OutputFolder string        `json:"output_folder,omitempty"`
	Stderr       string        `json:"stderr,omitempty"`
	FailureKind  string        `json:"failure_kind,omitempty"`
	Duration     time.Duration `json:"duration"`
	CreatedAt    time.Time     `json:"created_at"`
}
