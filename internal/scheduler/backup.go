package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/reliability"
)

// BackupJob snapshots the run ledger into the data lake and rotates
// expired copies.
type BackupJob struct {
	backups       *reliability.LedgerBackupService
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates the backup job. A non-positive retention falls
// back to reliability.DefaultBackupRetentionDays.
func NewBackupJob(backups *reliability.LedgerBackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	if retentionDays <= 0 {
		retentionDays = reliability.DefaultBackupRetentionDays
	}
	return &BackupJob{
		backups:       backups,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "ledger_backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "ledger_backup"
}

// Run uploads a fresh snapshot, then rotates. Rotation failures are
// logged only, the new snapshot is already safe at that point.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	key, err := j.backups.CreateBackup(ctx)
	if err != nil {
		return err
	}

	if err := j.backups.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	j.log.Info().Str("key", key).Msg("Ledger backup job completed")
	return nil
}
