package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/datalake"
	"github.com/fintracker/fintracker/internal/modules/pensions"
	"github.com/fintracker/fintracker/pkg/dates"
)

// Raw worksheet column names after snake_casing. The sheet says
// "Platform", "Timestamp", "Value"; headers are matched case and
// spacing insensitively.
const (
	rawColPlatform  = "platform"
	rawColTimestamp = "timestamp"
	rawColValue     = "value"
)

// CleanseStage turns the latest raw worksheet dumps into typed cleansed
// files. It keeps only configured pension platforms, parses display
// values ("£1,234.56") and day-first timestamps, and drops columns the
// cleansed schema does not carry, token_amount among them. Rows that do
// not parse are dropped with a warning, never fatal.
type CleanseStage struct {
	lake      Lake
	platforms map[string]bool
	log       zerolog.Logger
}

// NewCleanseStage creates the cleansing stage for the given platform set.
func NewCleanseStage(lake Lake, platforms []string, log zerolog.Logger) *CleanseStage {
	known := make(map[string]bool, len(platforms))
	for _, p := range platforms {
		known[p] = true
	}
	return &CleanseStage{
		lake:      lake,
		platforms: known,
		log:       log.With().Str("stage", StageCleanse).Logger(),
	}
}

// Name returns the stage name.
func (s *CleanseStage) Name() string {
	return StageCleanse
}

// Run reads the latest raw files, cleanses both streams and writes the
// cleansed layer.
func (s *CleanseStage) Run(ctx context.Context, at time.Time) (StageResult, error) {
	rawSnapshots, snapshotsKey, found, err := s.lake.DownloadLatest(ctx, datalake.LayerRaw, datalake.RawSnapshotsPrefix)
	if err != nil {
		return StageResult{}, fmt.Errorf("failed to fetch raw snapshots: %w", err)
	}
	if !found {
		return StageResult{}, fmt.Errorf("no raw snapshot files found")
	}

	rawCashflows, cashflowsKey, found, err := s.lake.DownloadLatest(ctx, datalake.LayerRaw, datalake.RawCashflowsPrefix)
	if err != nil {
		return StageResult{}, fmt.Errorf("failed to fetch raw cashflows: %w", err)
	}
	if !found {
		return StageResult{}, fmt.Errorf("no raw cashflow files found")
	}

	snapshots, snapDropped, err := s.cleanseSnapshots(rawSnapshots)
	if err != nil {
		return StageResult{}, fmt.Errorf("raw snapshots %s: %w", snapshotsKey, err)
	}

	cashflows, cashDropped, err := s.cleanseCashflows(rawCashflows)
	if err != nil {
		return StageResult{}, fmt.Errorf("raw cashflows %s: %w", cashflowsKey, err)
	}

	var snapBuf bytes.Buffer
	if err := pensions.WriteSnapshotsCSV(&snapBuf, snapshots); err != nil {
		return StageResult{}, fmt.Errorf("failed to encode cleansed snapshots: %w", err)
	}
	snapshotsOut, err := s.lake.UploadVersioned(ctx, datalake.LayerCleansed, datalake.CleansedSnapshotsPrefix, at, snapBuf.Bytes())
	if err != nil {
		return StageResult{}, fmt.Errorf("failed to upload cleansed snapshots: %w", err)
	}

	var cashBuf bytes.Buffer
	if err := pensions.WriteCashflowsCSV(&cashBuf, cashflows); err != nil {
		return StageResult{}, fmt.Errorf("failed to encode cleansed cashflows: %w", err)
	}
	cashflowsOut, err := s.lake.UploadVersioned(ctx, datalake.LayerCleansed, datalake.CleansedCashflowsPrefix, at, cashBuf.Bytes())
	if err != nil {
		return StageResult{}, fmt.Errorf("failed to upload cleansed cashflows: %w", err)
	}

	s.log.Info().
		Str("snapshots_key", snapshotsOut).
		Str("cashflows_key", cashflowsOut).
		Int("snapshots", len(snapshots)).
		Int("cashflows", len(cashflows)).
		Int("dropped", snapDropped+cashDropped).
		Msg("Raw files cleansed")

	return StageResult{
		Rows:    len(snapshots) + len(cashflows),
		Dropped: snapDropped + cashDropped,
	}, nil
}

func (s *CleanseStage) cleanseSnapshots(data []byte) ([]pensions.SnapshotRecord, int, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1

	idx, err := readRawHeader(cr)
	if err != nil {
		return nil, 0, err
	}
	if err := idx.require(rawColPlatform, rawColTimestamp, rawColValue); err != nil {
		return nil, 0, err
	}

	var records []pensions.SnapshotRecord
	dropped, filtered := 0, 0
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.log.Warn().Err(&pensions.DataError{Line: line, Field: "row", Reason: err.Error()}).Msg("Dropping raw snapshot row")
			dropped++
			continue
		}

		platform := idx.get(row, rawColPlatform)
		if platform == "" {
			s.log.Warn().Err(&pensions.DataError{Line: line, Field: rawColPlatform, Reason: "is empty"}).Msg("Dropping raw snapshot row")
			dropped++
			continue
		}
		if !s.platforms[platform] {
			filtered++
			continue
		}
		date, err := dates.ParseDayFirst(idx.get(row, rawColTimestamp))
		if err != nil {
			s.log.Warn().Err(&pensions.DataError{Line: line, Field: rawColTimestamp, Reason: err.Error()}).Msg("Dropping raw snapshot row")
			dropped++
			continue
		}
		value, err := parseMoney(idx.get(row, rawColValue))
		if err != nil {
			s.log.Warn().Err(&pensions.DataError{Line: line, Field: rawColValue, Reason: err.Error()}).Msg("Dropping raw snapshot row")
			dropped++
			continue
		}

		records = append(records, pensions.SnapshotRecord{Platform: platform, Date: date, Value: value})
	}
	if filtered > 0 {
		s.log.Debug().Int("filtered", filtered).Msg("Skipped snapshot rows for non-pension platforms")
	}
	return records, dropped, nil
}

func (s *CleanseStage) cleanseCashflows(data []byte) ([]pensions.CashflowRecord, int, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1

	idx, err := readRawHeader(cr)
	if err != nil {
		return nil, 0, err
	}
	if err := idx.require(rawColPlatform, rawColTimestamp, rawColValue); err != nil {
		return nil, 0, err
	}

	var records []pensions.CashflowRecord
	dropped, filtered := 0, 0
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.log.Warn().Err(&pensions.DataError{Line: line, Field: "row", Reason: err.Error()}).Msg("Dropping raw cashflow row")
			dropped++
			continue
		}

		platform := idx.get(row, rawColPlatform)
		if platform == "" {
			s.log.Warn().Err(&pensions.DataError{Line: line, Field: rawColPlatform, Reason: "is empty"}).Msg("Dropping raw cashflow row")
			dropped++
			continue
		}
		if !s.platforms[platform] {
			filtered++
			continue
		}
		date, err := dates.ParseDayFirst(idx.get(row, rawColTimestamp))
		if err != nil {
			s.log.Warn().Err(&pensions.DataError{Line: line, Field: rawColTimestamp, Reason: err.Error()}).Msg("Dropping raw cashflow row")
			dropped++
			continue
		}
		amount, err := parseMoney(idx.get(row, rawColValue))
		if err != nil {
			s.log.Warn().Err(&pensions.DataError{Line: line, Field: rawColValue, Reason: err.Error()}).Msg("Dropping raw cashflow row")
			dropped++
			continue
		}

		records = append(records, pensions.CashflowRecord{
			Platform:  platform,
			Date:      date,
			Amount:    amount,
			Direction: pensions.DirectionOf(amount),
		})
	}
	if filtered > 0 {
		s.log.Debug().Int("filtered", filtered).Msg("Skipped cashflow rows for non-pension platforms")
	}
	return records, dropped, nil
}

// rawHeader maps snake_cased raw column names to their position.
type rawHeader map[string]int

func readRawHeader(cr *csv.Reader) (rawHeader, error) {
	row, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idx := make(rawHeader, len(row))
	for i, name := range row {
		idx[snakeColumn(name)] = i
	}
	return idx, nil
}

func (h rawHeader) require(columns ...string) error {
	var missing []string
	for _, c := range columns {
		if _, ok := h[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (h rawHeader) get(row []string, column string) string {
	i, ok := h[column]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// snakeColumn lowercases a header cell and joins words with underscores,
// "Token Amount" -> "token_amount".
func snakeColumn(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// parseMoney converts a spreadsheet currency cell to a number. Cells
// arrive in display form, "£1,234.56" or "-£500.00".
func parseMoney(raw string) (float64, error) {
	cleaned := strings.NewReplacer("£", "", ",", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return 0, fmt.Errorf("is empty")
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("is not a number")
	}
	return v, nil
}
