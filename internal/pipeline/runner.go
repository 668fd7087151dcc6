package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/events"
	"github.com/fintracker/fintracker/internal/modules/runs"
)

// ErrAlreadyRunning is returned when a run is requested while another
// one is still in flight. Stages share the lake's "latest file" state,
// so runs never overlap.
var ErrAlreadyRunning = errors.New("a pipeline run is already in progress")

// ErrUnknownStage is returned for a stage selection the chain does not
// contain.
var ErrUnknownStage = errors.New("unknown pipeline stage")

// Runner executes pipeline stages in dependency order, records every
// run in the ledger and emits run events as it goes.
type Runner struct {
	stages []Stage
	repo   *runs.Repository
	events *events.Manager
	log    zerolog.Logger

	mu     sync.Mutex
	active string // run id while a run is in flight
}

// NewRunner creates a runner over the given stage chain. Stages must be
// listed in dependency order.
func NewRunner(stages []Stage, repo *runs.Repository, ev *events.Manager, log zerolog.Logger) *Runner {
	return &Runner{
		stages: stages,
		repo:   repo,
		events: ev,
		log:    log.With().Str("component", "pipeline_runner").Logger(),
	}
}

// StageNames returns the chain's stage names in execution order.
func (r *Runner) StageNames() []string {
	return stageNames(r.stages)
}

// ActiveRun returns the id of the run currently in flight, or "".
func (r *Runner) ActiveRun() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Start launches a full run in the background and returns its id.
// Returns ErrAlreadyRunning while another run holds the guard.
func (r *Runner) Start(trigger string) (string, error) {
	runID := uuid.NewString()
	if err := r.begin(runID); err != nil {
		return "", err
	}

	go func() {
		defer r.end()
		if _, err := r.execute(context.Background(), runID, trigger, r.stages); err != nil {
			r.log.Error().Err(err).Str("run_id", runID).Msg("Pipeline run failed")
		}
	}()

	return runID, nil
}

// Run executes the selected stages synchronously. An empty selection or
// "all" means the full chain. Returns the finished run as recorded in
// the ledger together with the first structural failure, if any.
func (r *Runner) Run(ctx context.Context, trigger string, names []string) (*runs.Run, error) {
	selected, err := r.selectStages(names)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	if err := r.begin(runID); err != nil {
		return nil, err
	}
	defer r.end()

	return r.execute(ctx, runID, trigger, selected)
}

func (r *Runner) begin(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != "" {
		return ErrAlreadyRunning
	}
	r.active = runID
	return nil
}

func (r *Runner) end() {
	r.mu.Lock()
	r.active = ""
	r.mu.Unlock()
}

// selectStages resolves a stage name selection against the chain,
// preserving execution order.
func (r *Runner) selectStages(names []string) ([]Stage, error) {
	if len(names) == 0 {
		return r.stages, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "all" {
			return r.stages, nil
		}
		wanted[name] = true
	}

	var selected []Stage
	for _, stage := range r.stages {
		if wanted[stage.Name()] {
			selected = append(selected, stage)
			delete(wanted, stage.Name())
		}
	}
	for name := range wanted {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
	}
	return selected, nil
}

// execute runs the selected stages under an already held guard.
func (r *Runner) execute(ctx context.Context, runID, trigger string, selected []Stage) (*runs.Run, error) {
	startedAt := time.Now().UTC()

	if err := r.repo.CreateRun(runs.Run{ID: runID, Trigger: trigger, StartedAt: startedAt}, stageNames(selected)); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	r.log.Info().
		Str("run_id", runID).
		Str("trigger", trigger).
		Strs("stages", stageNames(selected)).
		Msg("Pipeline run started")
	r.events.EmitTyped("pipeline", &events.RunStatusData{RunID: runID, Trigger: trigger, Status: "started"})

	for _, stage := range selected {
		if err := ctx.Err(); err != nil {
			return r.failRun(runID, startedAt, fmt.Errorf("run cancelled: %w", err))
		}

		name := stage.Name()
		stageStart := time.Now().UTC()
		r.recordLedger(r.repo.MarkStageRunning(runID, name, stageStart))
		r.events.EmitTyped("pipeline", &events.StageStatusData{RunID: runID, Stage: name, Status: "started"})

		result, err := stage.Run(ctx, stageStart)
		if err != nil {
			now := time.Now().UTC()
			r.recordLedger(r.repo.MarkStageFailed(runID, name, err.Error(), now))
			r.events.EmitTyped("pipeline", &events.StageStatusData{
				RunID:    runID,
				Stage:    name,
				Status:   "failed",
				Error:    err.Error(),
				Duration: now.Sub(stageStart).Seconds(),
			})
			return r.failRun(runID, startedAt, fmt.Errorf("stage %s: %w", name, err))
		}

		now := time.Now().UTC()
		r.recordLedger(r.repo.MarkStageCompleted(runID, name, result.Rows, result.Dropped, now))
		r.events.EmitTyped("pipeline", &events.StageStatusData{
			RunID:    runID,
			Stage:    name,
			Status:   "completed",
			Rows:     result.Rows,
			Dropped:  result.Dropped,
			Duration: now.Sub(stageStart).Seconds(),
		})
	}

	finishedAt := time.Now().UTC()
	r.recordLedger(r.repo.FinishRun(runID, runs.StatusCompleted, "", finishedAt))
	r.events.EmitTyped("pipeline", &events.RunStatusData{
		RunID:    runID,
		Status:   "completed",
		Duration: finishedAt.Sub(startedAt).Seconds(),
	})
	r.log.Info().
		Str("run_id", runID).
		Dur("duration", finishedAt.Sub(startedAt)).
		Msg("Pipeline run completed")

	run, err := r.repo.GetRun(runID)
	if err != nil {
		r.log.Error().Err(err).Str("run_id", runID).Msg("Failed to read back run")
	}
	return run, nil
}

// failRun closes the ledger entry for a failed run. Downstream stages
// stay pending, which is how the ledger shows they were skipped.
func (r *Runner) failRun(runID string, startedAt time.Time, cause error) (*runs.Run, error) {
	finishedAt := time.Now().UTC()
	r.recordLedger(r.repo.FinishRun(runID, runs.StatusFailed, cause.Error(), finishedAt))
	r.events.EmitTyped("pipeline", &events.RunStatusData{
		RunID:    runID,
		Status:   "failed",
		Error:    cause.Error(),
		Duration: finishedAt.Sub(startedAt).Seconds(),
	})

	run, err := r.repo.GetRun(runID)
	if err != nil {
		r.log.Error().Err(err).Str("run_id", runID).Msg("Failed to read back failed run")
	}
	return run, cause
}

// recordLedger logs ledger write failures without failing the run.
func (r *Runner) recordLedger(err error) {
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to update run ledger")
	}
}

func stageNames(stages []Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	return names
}
