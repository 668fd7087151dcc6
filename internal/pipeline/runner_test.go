package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintracker/fintracker/internal/events"
	"github.com/fintracker/fintracker/internal/modules/runs"

	_ "github.com/mattn/go-sqlite3"
)

// stubStage counts calls and returns canned results.
type stubStage struct {
	name    string
	result  StageResult
	err     error
	calls   int
	started chan struct{} // signals Run entry when non-nil, buffered
	release chan struct{} // blocks Run until closed when non-nil
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Run(ctx context.Context, at time.Time) (StageResult, error) {
	s.calls++
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	return s.result, s.err
}

func setupRunner(t *testing.T, stages ...Stage) (*Runner, *runs.Repository, *events.Bus) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	repo := runs.NewRepository(db, zerolog.Nop())
	require.NoError(t, repo.Init())

	bus := events.NewBus(zerolog.Nop())
	manager := events.NewManager(bus, zerolog.Nop())

	return NewRunner(stages, repo, manager, zerolog.Nop()), repo, bus
}

func TestRunner_Run_RecordsLedger(t *testing.T) {
	raw := &stubStage{name: StageRaw, result: StageResult{Rows: 10}}
	cleanse := &stubStage{name: StageCleanse, result: StageResult{Rows: 8, Dropped: 2}}
	runner, _, bus := setupRunner(t, raw, cleanse)

	var emitted []events.EventType
	for _, et := range []events.EventType{events.RunStarted, events.RunCompleted, events.StageStarted, events.StageCompleted} {
		bus.Subscribe(et, func(e *events.Event) {
			emitted = append(emitted, e.Type)
		})
	}

	run, err := runner.Run(context.Background(), "cli", nil)
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, runs.StatusCompleted, run.Status)
	assert.Equal(t, "cli", run.Trigger)
	assert.NotNil(t, run.FinishedAt)
	assert.Equal(t, 1, raw.calls)
	assert.Equal(t, 1, cleanse.calls)

	require.Len(t, run.Stages, 2)
	assert.Equal(t, runs.StatusCompleted, run.Stages[0].Status)
	assert.Equal(t, 10, run.Stages[0].Rows)
	assert.Equal(t, runs.StatusCompleted, run.Stages[1].Status)
	assert.Equal(t, 2, run.Stages[1].Dropped)

	assert.Equal(t, []events.EventType{
		events.RunStarted,
		events.StageStarted, events.StageCompleted,
		events.StageStarted, events.StageCompleted,
		events.RunCompleted,
	}, emitted)

	assert.Empty(t, runner.ActiveRun(), "Guard is released after the run")
}

func TestRunner_Run_StageFailureSkipsDownstream(t *testing.T) {
	raw := &stubStage{name: StageRaw, err: errors.New("sheet unavailable")}
	cleanse := &stubStage{name: StageCleanse}
	runner, _, _ := setupRunner(t, raw, cleanse)

	run, err := runner.Run(context.Background(), "cli", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage raw")
	assert.Contains(t, err.Error(), "sheet unavailable")

	assert.Equal(t, 0, cleanse.calls, "Downstream stages are skipped")

	require.NotNil(t, run)
	assert.Equal(t, runs.StatusFailed, run.Status)
	require.Len(t, run.Stages, 2)
	assert.Equal(t, runs.StatusFailed, run.Stages[0].Status)
	assert.Equal(t, "sheet unavailable", run.Stages[0].Error)
	assert.Equal(t, runs.StatusPending, run.Stages[1].Status, "Skipped stages stay pending")
}

func TestRunner_Run_RejectsConcurrentRuns(t *testing.T) {
	blocking := &stubStage{
		name:    StageRaw,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	runner, _, _ := setupRunner(t, blocking)

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), "api", nil)
		done <- err
	}()

	select {
	case <-blocking.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never started")
	}

	assert.NotEmpty(t, runner.ActiveRun())

	_, err := runner.Run(context.Background(), "api", nil)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	_, err = runner.Start("api")
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(blocking.release)
	require.NoError(t, <-done)
	assert.Empty(t, runner.ActiveRun())
}

func TestRunner_Run_UnknownStage(t *testing.T) {
	runner, _, _ := setupRunner(t, &stubStage{name: StageRaw})

	_, err := runner.Run(context.Background(), "cli", []string{"bogus"})
	require.ErrorIs(t, err, ErrUnknownStage)
}

func TestRunner_Run_SelectsSingleStage(t *testing.T) {
	raw := &stubStage{name: StageRaw}
	cleanse := &stubStage{name: StageCleanse, result: StageResult{Rows: 3}}
	staging := &stubStage{name: StageStaging}
	runner, _, _ := setupRunner(t, raw, cleanse, staging)

	run, err := runner.Run(context.Background(), "cli", []string{StageCleanse})
	require.NoError(t, err)

	assert.Equal(t, 0, raw.calls)
	assert.Equal(t, 1, cleanse.calls)
	assert.Equal(t, 0, staging.calls)

	require.NotNil(t, run)
	require.Len(t, run.Stages, 1)
	assert.Equal(t, StageCleanse, run.Stages[0].Name)
}

func TestRunner_Start_RunsInBackground(t *testing.T) {
	stage := &stubStage{name: StageRaw, result: StageResult{Rows: 1}}
	runner, repo, _ := setupRunner(t, stage)

	runID, err := runner.Start("api")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	assert.Eventually(t, func() bool {
		run, err := repo.GetRun(runID)
		return err == nil && run != nil && run.Status == runs.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond, "Background run never completed")
}
