package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"resume-renderer/internal/adapter/repository"
	"resume-renderer/internal/domain"
	"resume-renderer/internal/infrastructure/migration"
	"resume-renderer/internal/usecase"

	"github.com/jackc/pgx/v4/pgxpool"
)

// RunStore records render runs and lists them back.
type RunStore interface {
	usecase.RunRecorder
	RecentRuns(ctx context.Context, limit int) ([]domain.RenderRun, error)
}

// OpenRunStore opens the run history named by dsn: `sqlite:<path>` for a
// local SQLite file, anything else as a Postgres URL. An empty dsn returns a
// nil store. The returned close function is never nil.
func OpenRunStore(ctx context.Context, dsn string, logger *slog.Logger) (RunStore, func(), error) {
	noop := func() {}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, noop, nil
	}
	if path, ok := SQLitePath(dsn); ok {
		repo, err := repository.OpenSQLite(ctx, path)
		if err != nil {
			return nil, noop, err
		}
		return repo, func() { _ = repo.Close() }, nil
	}

	pool, err := NewRunsPool(ctx, dsn)
	if err != nil {
		return nil, noop, fmt.Errorf("connect runs database: %w", err)
	}
	if err := migration.RunMigrations(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, noop, fmt.Errorf("migrate runs database: %w", err)
	}
	return repository.NewRunsRepo(pool), pool.Close, nil
}

// SQLitePath returns the file path of a `sqlite:<path>` runs database URL.
func SQLitePath(dsn string) (string, bool) {
	if !strings.HasPrefix(dsn, "sqlite:") {
		return "", false
	}
	p := strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite:"), "//")
	if p == "" {
		p = "runs.db"
	}
	return p, true
}

// NewRunsPool connects to the Postgres run history database.
func NewRunsPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return pool, nil
}
