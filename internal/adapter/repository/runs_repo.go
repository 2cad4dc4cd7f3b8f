package repository

import (
	"context"

	"resume-renderer/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

// RunsRepo stores render run history in Postgres. A nil pool turns every
// call into a no-op.
type RunsRepo struct {
	pool *pgxpool.Pool
}

func NewRunsRepo(pool *pgxpool.Pool) *RunsRepo {
	return &RunsRepo{pool: pool}
}

func (r *RunsRepo) StartRun(ctx context.Context, run *domain.RenderRun) error {
	if r.pool == nil {
		return nil
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO render_runs (id, request_id, strategy, state, attempts, filename, handoff_key, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING`,
		run.ID, run.RequestID, run.Strategy, run.State, run.Attempts, run.Filename, run.HandoffKey, run.CreatedAt)
	return err
}

func (r *RunsRepo) RecordAttempt(ctx context.Context, a *domain.RenderAttempt) error {
	if r.pool == nil {
		return nil
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO render_attempts (id, run_id, attempt_index, strategy, exit_code, filename, artifact_path, output_folder, stderr, failure_kind, duration_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.RunID, a.Index, a.Strategy, a.ExitCode, a.Filename, a.ArtifactPath, a.OutputFolder, a.Stderr, a.FailureKind, a.Duration.Milliseconds(), a.CreatedAt)
	return err
}

func (r *RunsRepo) FinishRun(ctx context.Context, run *domain.RenderRun) error {
	if r.pool == nil {
		return nil
	}
	_, err := r.pool.Exec(ctx, `UPDATE render_runs SET state = $2, attempts = $3, filename = $4, handoff_key = $5, completed_at = $6 WHERE id = $1`,
		run.ID, run.State, run.Attempts, run.Filename, run.HandoffKey, run.CompletedAt)
	return err
}

// RecentRuns returns the latest runs, newest first.
func (r *RunsRepo) RecentRuns(ctx context.Context, limit int) ([]domain.RenderRun, error) {
	if r.pool == nil {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, request_id, strategy, state, attempts, filename, handoff_key, created_at, COALESCE(completed_at, created_at)
		FROM render_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RenderRun
	for rows.Next() {
		var run domain.RenderRun
		if err := rows.Scan(&run.ID, &run.RequestID, &run.Strategy, &run.State, &run.Attempts, &run.Filename, &run.HandoffKey, &run.CreatedAt, &run.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
