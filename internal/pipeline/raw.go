package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/datalake"
)

// Worksheet names in the source spreadsheet.
const (
	SnapshotsWorksheet = "Balance Sheet"
	CashflowsWorksheet = "Pension Cashflows"
)

// SheetSource exports one worksheet as CSV bytes. Implemented by the
// Google Sheets client.
type SheetSource interface {
	ExportCSV(ctx context.Context, worksheet string) ([]byte, error)
}

// RawStage copies both pension worksheets into the raw lake layer,
// untouched. Cleansing happens downstream so the raw layer always holds
// exactly what the spreadsheet said at ingestion time.
type RawStage struct {
	sheets SheetSource
	lake   Lake
	log    zerolog.Logger
}

// NewRawStage creates the raw ingestion stage.
func NewRawStage(sheets SheetSource, lake Lake, log zerolog.Logger) *RawStage {
	return &RawStage{
		sheets: sheets,
		lake:   lake,
		log:    log.With().Str("stage", StageRaw).Logger(),
	}
}

// Name returns the stage name.
func (s *RawStage) Name() string {
	return StageRaw
}

// Run fetches both worksheets and writes them as versioned raw CSVs.
func (s *RawStage) Run(ctx context.Context, at time.Time) (StageResult, error) {
	snapshots, err := s.sheets.ExportCSV(ctx, SnapshotsWorksheet)
	if err != nil {
		return StageResult{}, fmt.Errorf("failed to export %q: %w", SnapshotsWorksheet, err)
	}

	cashflows, err := s.sheets.ExportCSV(ctx, CashflowsWorksheet)
	if err != nil {
		return StageResult{}, fmt.Errorf("failed to export %q: %w", CashflowsWorksheet, err)
	}

	snapshotsKey, err := s.lake.UploadVersioned(ctx, datalake.LayerRaw, datalake.RawSnapshotsPrefix, at, snapshots)
	if err != nil {
		return StageResult{}, fmt.Errorf("failed to upload raw snapshots: %w", err)
	}

	cashflowsKey, err := s.lake.UploadVersioned(ctx, datalake.LayerRaw, datalake.RawCashflowsPrefix, at, cashflows)
	if err != nil {
		return StageResult{}, fmt.Errorf("failed to upload raw cashflows: %w", err)
	}

	rows := countRows(snapshots) + countRows(cashflows)
	s.log.Info().
		Str("snapshots_key", snapshotsKey).
		Str("cashflows_key", cashflowsKey).
		Int("rows", rows).
		Msg("Raw worksheets ingested")

	return StageResult{Rows: rows}, nil
}

// countRows counts data lines in a CSV export, excluding the header.
func countRows(data []byte) int {
	lines := bytes.Count(data, []byte{'\n'})
	if lines > 0 {
		lines--
	}
	return lines
}
