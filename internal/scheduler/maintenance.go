package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/database"
	"github.com/fintracker/fintracker/internal/modules/runs"
)

// DefaultRunRetention is how long finished runs stay in the ledger.
const DefaultRunRetention = 90 * 24 * time.Hour

// LedgerMaintenanceJob prunes old runs from the ledger and keeps the
// sqlite file compact.
type LedgerMaintenanceJob struct {
	db        *database.DB
	runs      *runs.Repository
	retention time.Duration
	log       zerolog.Logger
}

// NewLedgerMaintenanceJob creates the maintenance job. A non-positive
// retention falls back to DefaultRunRetention.
func NewLedgerMaintenanceJob(db *database.DB, repo *runs.Repository, retention time.Duration, log zerolog.Logger) *LedgerMaintenanceJob {
	if retention <= 0 {
		retention = DefaultRunRetention
	}
	return &LedgerMaintenanceJob{
		db:        db,
		runs:      repo,
		retention: retention,
		log:       log.With().Str("job", "ledger_maintenance").Logger(),
	}
}

// Name returns the job name
func (j *LedgerMaintenanceJob) Name() string {
	return "ledger_maintenance"
}

// Run prunes expired runs, reclaims their space and checkpoints the WAL.
func (j *LedgerMaintenanceJob) Run() error {
	cutoff := time.Now().UTC().Add(-j.retention)

	removed, err := j.runs.PruneOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune run history: %w", err)
	}

	if removed > 0 {
		if err := j.db.Vacuum(); err != nil {
			return fmt.Errorf("vacuum failed: %w", err)
		}
	}

	if err := j.db.WALCheckpoint(""); err != nil {
		return fmt.Errorf("wal checkpoint failed: %w", err)
	}

	j.log.Info().Int64("pruned", removed).Msg("Ledger maintenance completed")
	return nil
}
