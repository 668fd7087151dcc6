package runs

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db, zerolog.Nop())
	require.NoError(t, repo.Init())
	return repo
}

func newTestRun(trigger string, startedAt time.Time) Run {
	return Run{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: startedAt,
	}
}

func TestRepository_CreateAndGetRun(t *testing.T) {
	repo := setupTestRepo(t)

	run := newTestRun("api", time.Date(2024, 1, 5, 7, 0, 0, 0, time.UTC))
	require.NoError(t, repo.CreateRun(run, []string{"raw", "cleanse", "stage"}))

	got, err := repo.GetRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "api", got.Trigger)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, run.StartedAt, got.StartedAt)
	assert.Nil(t, got.FinishedAt)

	require.Len(t, got.Stages, 3)
	assert.Equal(t, "raw", got.Stages[0].Name)
	assert.Equal(t, "cleanse", got.Stages[1].Name)
	assert.Equal(t, "stage", got.Stages[2].Name)
	for _, s := range got.Stages {
		assert.Equal(t, StatusPending, s.Status)
	}
}

func TestRepository_GetRun_Unknown(t *testing.T) {
	repo := setupTestRepo(t)

	got, err := repo.GetRun("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_StageLifecycle(t *testing.T) {
	repo := setupTestRepo(t)
	started := time.Date(2024, 1, 5, 7, 0, 0, 0, time.UTC)

	run := newTestRun("schedule", started)
	require.NoError(t, repo.CreateRun(run, []string{"raw", "cleanse"}))

	require.NoError(t, repo.MarkStageRunning(run.ID, "raw", started))
	require.NoError(t, repo.MarkStageCompleted(run.ID, "raw", 120, 2, started.Add(3*time.Second)))
	require.NoError(t, repo.MarkStageRunning(run.ID, "cleanse", started.Add(3*time.Second)))
	require.NoError(t, repo.MarkStageFailed(run.ID, "cleanse", "missing columns: value", started.Add(5*time.Second)))
	require.NoError(t, repo.FinishRun(run.ID, StatusFailed, "stage cleanse failed", started.Add(5*time.Second)))

	got, err := repo.GetRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "stage cleanse failed", got.Error)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, 5*time.Second, got.Duration())

	raw := got.Stages[0]
	assert.Equal(t, StatusCompleted, raw.Status)
	assert.Equal(t, 120, raw.Rows)
	assert.Equal(t, 2, raw.Dropped)

	cleanse := got.Stages[1]
	assert.Equal(t, StatusFailed, cleanse.Status)
	assert.Equal(t, "missing columns: value", cleanse.Error)
}

func TestRepository_ListRuns_NewestFirst(t *testing.T) {
	repo := setupTestRepo(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 5; i++ {
		run := newTestRun("cli", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, repo.CreateRun(run, []string{"all"}))
		ids = append(ids, run.ID)
	}

	listed, err := repo.ListRuns(3)
	require.NoError(t, err)
	require.Len(t, listed, 3)

	assert.Equal(t, ids[4], listed[0].ID)
	assert.Equal(t, ids[3], listed[1].ID)
	assert.Equal(t, ids[2], listed[2].ID)
	assert.Empty(t, listed[0].Stages, "List omits stage detail")
}

func TestRepository_PruneOlderThan(t *testing.T) {
	repo := setupTestRepo(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	old := newTestRun("schedule", base)
	recent := newTestRun("schedule", base.Add(48*time.Hour))
	require.NoError(t, repo.CreateRun(old, []string{"raw"}))
	require.NoError(t, repo.CreateRun(recent, []string{"raw"}))

	removed, err := repo.PruneOlderThan(base.Add(24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	gone, err := repo.GetRun(old.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := repo.GetRun(recent.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Len(t, kept.Stages, 1, "Cascade must not touch surviving runs")
}
