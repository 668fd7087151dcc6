package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/database"
)

// IntegrityCheckJob runs SQLite's integrity check against the run ledger.
// Corruption cannot be repaired in place, the job surfaces it in the logs
// while the lake still holds every staged artifact.
type IntegrityCheckJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewIntegrityCheckJob creates the integrity check job.
func NewIntegrityCheckJob(db *database.DB, log zerolog.Logger) *IntegrityCheckJob {
	return &IntegrityCheckJob{
		db:  db,
		log: log.With().Str("job", "integrity_check").Logger(),
	}
}

// Name returns the job name
func (j *IntegrityCheckJob) Name() string {
	return "integrity_check"
}

// Run executes the full integrity check. Expensive, so it is scheduled
// well away from pipeline runs.
func (j *IntegrityCheckJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Str("database", j.db.Name()).Msg("Ledger integrity check failed")
		return err
	}

	j.log.Info().Str("database", j.db.Name()).Msg("Ledger integrity check passed")
	return nil
}
