package scheduler

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/pipeline"
)

// PipelineJob runs the full pension pipeline on its cron schedule.
type PipelineJob struct {
	runner *pipeline.Runner
	log    zerolog.Logger
}

// NewPipelineJob creates the scheduled pipeline job.
func NewPipelineJob(runner *pipeline.Runner, log zerolog.Logger) *PipelineJob {
	return &PipelineJob{
		runner: runner,
		log:    log.With().Str("job", "pension_pipeline").Logger(),
	}
}

// Name returns the job name
func (j *PipelineJob) Name() string {
	return "pension_pipeline"
}

// Run executes a full pipeline run. A run already in flight is not an
// error, the tick is skipped and the next one tries again.
func (j *PipelineJob) Run() error {
	run, err := j.runner.Run(context.Background(), "schedule", nil)
	if errors.Is(err, pipeline.ErrAlreadyRunning) {
		j.log.Warn().Msg("Pipeline already running, skipping scheduled run")
		return nil
	}
	if err != nil {
		return err
	}
	if run != nil {
		j.log.Info().Str("run_id", run.ID).Msg("Scheduled pipeline run completed")
	}
	return nil
}
