package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"resume-renderer/internal/domain"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteSchema creates the run history tables for local use.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS render_runs (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	strategy TEXT NOT NULL,
	state TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	filename TEXT NOT NULL DEFAULT '',
	handoff_key TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_render_runs_created ON render_runs(created_at);
CREATE TABLE IF NOT EXISTS render_attempts (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES render_runs(id),
	attempt_index INTEGER NOT NULL,
	strategy TEXT NOT NULL,
	exit_code INTEGER NOT NULL,
	filename TEXT NOT NULL DEFAULT '',
	artifact_path TEXT NOT NULL DEFAULT '',
	output_folder TEXT NOT NULL DEFAULT '',
	stderr TEXT NOT NULL DEFAULT '',
	failure_kind TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_render_attempts_run ON render_attempts(run_id);
`

// SQLiteRunsRepo stores render run history in a SQLite database.
type SQLiteRunsRepo struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRunsRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, SQLiteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteRunsRepo{db: db}, nil
}

func (r *SQLiteRunsRepo) Close() error { return r.db.Close() }

func (r *SQLiteRunsRepo) StartRun(ctx context.Context, run *domain.RenderRun) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO render_runs (id, request_id, strategy, state, attempts, filename, handoff_key, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		run.ID.String(), run.RequestID, run.Strategy, run.State, run.Attempts, run.Filename, run.HandoffKey, run.CreatedAt.UnixMilli())
	return err
}

func (r *SQLiteRunsRepo) RecordAttempt(ctx context.Context, a *domain.RenderAttempt) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO render_attempts (id, run_id, attempt_index, strategy, exit_code, filename, artifact_path, output_folder, stderr, failure_kind, duration_ms, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID.String(), a.RunID.String(), a.Index, a.Strategy, a.ExitCode, a.Filename, a.ArtifactPath, a.OutputFolder, a.Stderr, a.FailureKind, a.Duration.Milliseconds(), a.CreatedAt.UnixMilli())
	return err
}

func (r *SQLiteRunsRepo) FinishRun(ctx context.Context, run *domain.RenderRun) error {
	_, err := r.db.ExecContext(ctx, `UPDATE render_runs SET state = ?, attempts = ?, filename = ?, handoff_key = ?, completed_at = ? WHERE id = ?`,
		run.State, run.Attempts, run.Filename, run.HandoffKey, run.CompletedAt.UnixMilli(), run.ID.String())
	return err
}

// RecentRuns returns the latest runs, newest first.
func (r *SQLiteRunsRepo) RecentRuns(ctx context.Context, limit int) ([]domain.RenderRun, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, request_id, strategy, state, attempts, filename, handoff_key, created_at, COALESCE(completed_at, created_at)
		FROM render_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RenderRun
	for rows.Next() {
		var (
			run                domain.RenderRun
			id                 string
			created, completed int64
		)
		if err := rows.Scan(&id, &run.RequestID, &run.Strategy, &run.State, &run.Attempts, &run.Filename, &run.HandoffKey, &created, &completed); err != nil {
			return nil, err
		}
		if run.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		run.CreatedAt = time.UnixMilli(created).UTC()
		run.CompletedAt = time.UnixMilli(completed).UTC()
		out = append(out, run)
	}
	return out, rows.Err()
}

// Attempts returns the recorded attempts of a run in order.
func (r *SQLiteRunsRepo) Attempts(ctx context.Context, runID uuid.UUID) ([]domain.RenderAttempt, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, attempt_index, strategy, exit_code, filename, artifact_path, output_folder, stderr, failure_kind, duration_ms, created_at
		FROM render_attempts WHERE run_id = ? ORDER BY attempt_index`, runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RenderAttempt
	for rows.Next() {
		var (
			a                   domain.RenderAttempt
			id                  string
			durationMS, created int64
		)
		if err := rows.Scan(&id, &a.Index, &a.Strategy, &a.ExitCode, &a.Filename, &a.ArtifactPath, &a.OutputFolder, &a.Stderr, &a.FailureKind, &durationMS, &created); err != nil {
			return nil, err
		}
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("attempt id %q: %w", id, err)
		}
		a.RunID = runID
		a.Duration = time.Duration(durationMS) * time.Millisecond
		a.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
