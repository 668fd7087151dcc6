// Package runs persists pipeline run history in the sqlite ledger.
package runs

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/database"
)

// Status of a run or one of its stages.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one pipeline invocation.
type Run struct {
	ID         string     `json:"id"`
	Trigger    string     `json:"trigger"` // "schedule", "api" or "cli"
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Stages     []Stage    `json:"stages,omitempty"`
}

// Stage is one step of a run.
type Stage struct {
	RunID      string     `json:"-"`
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Rows       int        `json:"rows"`
	Dropped    int        `json:"dropped"`
	Error      string     `json:"error,omitempty"`
}

// Duration returns the run's wall time, zero while it is still going.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	triggered_by TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	finished_at INTEGER,
	error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS run_stages (
	run_id TEXT NOT NULL REFERENCES pipeline_runs(id) ON DELETE CASCADE,
	stage TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	started_at INTEGER,
	finished_at INTEGER,
	rows INTEGER NOT NULL DEFAULT 0,
	dropped INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at DESC);
`

// Repository handles run ledger database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new runs repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// Init creates the ledger tables when they do not exist yet.
func (r *Repository) Init() error {
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create run ledger schema: %w", err)
	}
	return nil
}

// CreateRun inserts a new running run together with its planned stages,
// all still pending, in one transaction.
func (r *Repository) CreateRun(run Run, stages []string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO pipeline_runs (id, triggered_by, status, started_at, error) VALUES (?, ?, ?, ?, '')`,
			run.ID, run.Trigger, string(StatusRunning), run.StartedAt.UTC().Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		for i, stage := range stages {
			_, err := tx.Exec(
				`INSERT INTO run_stages (run_id, stage, position, status) VALUES (?, ?, ?, ?)`,
				run.ID, stage, i, string(StatusPending),
			)
			if err != nil {
				return fmt.Errorf("failed to insert stage %s: %w", stage, err)
			}
		}
		return nil
	})
}

// MarkStageRunning records a stage start.
func (r *Repository) MarkStageRunning(runID, stage string, at time.Time) error {
	_, err := r.db.Exec(
		`UPDATE run_stages SET status = ?, started_at = ? WHERE run_id = ? AND stage = ?`,
		string(StatusRunning), at.UTC().Unix(), runID, stage,
	)
	if err != nil {
		return fmt.Errorf("failed to mark stage %s running: %w", stage, err)
	}
	return nil
}

// MarkStageCompleted records a successful stage with its row counters.
func (r *Repository) MarkStageCompleted(runID, stage string, rows, dropped int, at time.Time) error {
	_, err := r.db.Exec(
		`UPDATE run_stages SET status = ?, finished_at = ?, rows = ?, dropped = ? WHERE run_id = ? AND stage = ?`,
		string(StatusCompleted), at.UTC().Unix(), rows, dropped, runID, stage,
	)
	if err != nil {
		return fmt.Errorf("failed to mark stage %s completed: %w", stage, err)
	}
	return nil
}

// MarkStageFailed records a failed stage.
func (r *Repository) MarkStageFailed(runID, stage, errMsg string, at time.Time) error {
	_, err := r.db.Exec(
		`UPDATE run_stages SET status = ?, finished_at = ?, error = ? WHERE run_id = ? AND stage = ?`,
		string(StatusFailed), at.UTC().Unix(), errMsg, runID, stage,
	)
	if err != nil {
		return fmt.Errorf("failed to mark stage %s failed: %w", stage, err)
	}
	return nil
}

// FinishRun closes a run with its final status.
func (r *Repository) FinishRun(runID string, status Status, errMsg string, at time.Time) error {
	_, err := r.db.Exec(
		`UPDATE pipeline_runs SET status = ?, finished_at = ?, error = ? WHERE id = ?`,
		string(status), at.UTC().Unix(), errMsg, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	return nil
}

// GetRun returns one run with its stages, or nil when unknown.
func (r *Repository) GetRun(id string) (*Run, error) {
	row := r.db.QueryRow(
		`SELECT id, triggered_by, status, started_at, finished_at, error FROM pipeline_runs WHERE id = ?`,
		id,
	)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	stages, err := r.getStages(id)
	if err != nil {
		return nil, err
	}
	run.Stages = stages
	return run, nil
}

// ListRuns returns the most recent runs, newest first, without stage
// detail.
func (r *Repository) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(
		`SELECT id, triggered_by, status, started_at, finished_at, error
		 FROM pipeline_runs ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var result []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		result = append(result, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return result, nil
}

// PruneOlderThan deletes runs started before the cutoff, stages
// cascading with them. Returns the number of runs removed.
func (r *Repository) PruneOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(
		`DELETE FROM pipeline_runs WHERE started_at < ?`,
		cutoff.UTC().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.log.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("Pruned old runs")
	}
	return n, nil
}

func (r *Repository) getStages(runID string) ([]Stage, error) {
	rows, err := r.db.Query(
		`SELECT run_id, stage, status, started_at, finished_at, rows, dropped, error
		 FROM run_stages WHERE run_id = ? ORDER BY position ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stages for run %s: %w", runID, err)
	}
	defer rows.Close()

	var stages []Stage
	for rows.Next() {
		var s Stage
		var startedAt, finishedAt sql.NullInt64

		if err := rows.Scan(&s.RunID, &s.Name, &s.Status, &startedAt, &finishedAt, &s.Rows, &s.Dropped, &s.Error); err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		if startedAt.Valid {
			t := time.Unix(startedAt.Int64, 0).UTC()
			s.StartedAt = &t
		}
		if finishedAt.Valid {
			t := time.Unix(finishedAt.Int64, 0).UTC()
			s.FinishedAt = &t
		}
		stages = append(stages, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stages: %w", err)
	}
	return stages, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var startedAt int64
	var finishedAt sql.NullInt64

	if err := row.Scan(&run.ID, &run.Trigger, &run.Status, &startedAt, &finishedAt, &run.Error); err != nil {
		return nil, err
	}

	run.StartedAt = time.Unix(startedAt, 0).UTC()
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		run.FinishedAt = &t
	}
	return &run, nil
}
