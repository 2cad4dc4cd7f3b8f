package infrastructure

import (
	"context"
	"path/filepath"
	"testing"

	"resume-renderer/internal/config"
	"resume-renderer/internal/logging"
	"resume-renderer/internal/render"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLitePath(t *testing.T) {
	p, ok := SQLitePath("sqlite:/var/lib/runs.db")
	assert.True(t, ok)
	assert.Equal(t, "/var/lib/runs.db", p)

	p, ok = SQLitePath("sqlite:")
	assert.True(t, ok)
	assert.Equal(t, "runs.db", p)

	_, ok = SQLitePath("postgres://localhost/runs")
	assert.False(t, ok)
}

func TestOpenRunStore(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := OpenRunStore(ctx, "", nil)
	require.NoError(t, err)
	assert.Nil(t, store)
	closeFn()

	store, closeFn, err = OpenRunStore(ctx, "sqlite:"+filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	defer closeFn()
	runs, err := store.RecentRuns(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestNewEngineFallsBackToChromium(t *testing.T) {
	cfg := config.Config{Engine: config.EngineCommand, EngineBin: "definitely-not-installed-engine"}
	_, ok := NewEngine(cfg, logging.Nop()).(*ChromiumEngine)
	assert.True(t, ok)

	cfg.EngineBin = "sh"
	eng, ok := NewEngine(cfg, logging.Nop()).(render.CommandEngine)
	require.True(t, ok)
	assert.Equal(t, "sh", eng.Bin)
}
