package migration

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v4/pgxpool"
)

// RunMigrations creates or updates the run history tables on startup.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Starting database migrations")

	for _, m := range Migrations() {
		if _, err := pool.Exec(ctx, m.SQL); err != nil {
			logger.Error("Migration failed", "name", m.Name, "error", err)
			return err
		}
		logger.Info("Migration completed", "name", m.Name)
	}

	logger.Info("All migrations completed successfully")
	return nil
}

// Migration is one idempotent schema step.
type Migration struct {
	Name string
	SQL  string
}

// Migrations lists the schema steps in application order. Every step must be
// safe to run again.
func Migrations() []Migration {
	return []Migration{
		{
			Name: "create_render_runs",
			SQL: `
				CREATE TABLE IF NOT EXISTS render_runs (
					id UUID PRIMARY KEY,
					request_id TEXT NOT NULL,
					strategy TEXT NOT NULL,
					state TEXT NOT NULL,
					attempts INTEGER NOT NULL DEFAULT 0,
					filename TEXT NOT NULL DEFAULT '',
					handoff_key TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL,
					completed_at TIMESTAMPTZ
				);
			`,
		},
		{
			Name: "create_render_attempts",
			SQL: `
				CREATE TABLE IF NOT EXISTS render_attempts (
					id UUID PRIMARY KEY,
					run_id UUID NOT NULL REFERENCES render_runs(id) ON DELETE CASCADE,
					attempt_index INTEGER NOT NULL,
					strategy TEXT NOT NULL,
					exit_code INTEGER NOT NULL,
					filename TEXT NOT NULL DEFAULT '',
					artifact_path TEXT NOT NULL DEFAULT '',
					output_folder TEXT NOT NULL DEFAULT '',
					stderr TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL
				);
			`,
		},
		{
			Name: "add_failure_kind_to_render_attempts",
			SQL: `
				ALTER TABLE render_attempts
				ADD COLUMN IF NOT EXISTS failure_kind TEXT NOT NULL DEFAULT '';
			`,
		},
		{
			Name: "add_duration_ms_to_render_attempts",
			SQL: `
				ALTER TABLE render_attempts
				ADD COLUMN IF NOT EXISTS duration_ms BIGINT NOT NULL DEFAULT 0;
			`,
		},
		{
			Name: "index_render_runs_created_at",
			SQL:  `CREATE INDEX IF NOT EXISTS idx_render_runs_created_at ON render_runs (created_at DESC);`,
		},
	}
}
