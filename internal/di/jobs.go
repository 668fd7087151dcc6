package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/config"
	"github.com/fintracker/fintracker/internal/reliability"
	"github.com/fintracker/fintracker/internal/scheduler"
)

// Maintenance runs nightly, backups after it, the integrity check
// weekly. All sit outside the pipeline window.
const (
	maintenanceSchedule = "0 30 3 * * *"
	integritySchedule   = "0 0 4 * * 0"
	backupSchedule      = "0 0 5 * * *"
)

// RegisterJobs attaches the background jobs to the scheduler. The
// pipeline job is skipped when scheduling is disabled or the pipeline
// is not wired.
func RegisterJobs(c *Container, cfg *config.Config, sched *scheduler.Scheduler, log zerolog.Logger) error {
	if cfg.ScheduleEnabled && c.Runner != nil {
		job := scheduler.NewPipelineJob(c.Runner, log)
		if err := sched.AddJob(cfg.Schedule, job); err != nil {
			return fmt.Errorf("failed to register pipeline job: %w", err)
		}
	}

	maintenance := scheduler.NewLedgerMaintenanceJob(c.LedgerDB, c.RunsRepo, 0, log)
	if err := sched.AddJob(maintenanceSchedule, maintenance); err != nil {
		return fmt.Errorf("failed to register maintenance job: %w", err)
	}

	integrity := scheduler.NewIntegrityCheckJob(c.LedgerDB, log)
	if err := sched.AddJob(integritySchedule, integrity); err != nil {
		return fmt.Errorf("failed to register integrity check job: %w", err)
	}

	if c.Lake != nil {
		backups := reliability.NewLedgerBackupService(c.LedgerDB, c.Lake, log)
		backup := scheduler.NewBackupJob(backups, 0, log)
		if err := sched.AddJob(backupSchedule, backup); err != nil {
			return fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	return nil
}
