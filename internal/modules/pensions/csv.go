package pensions

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/pkg/dates"
)

// Cleansed and staging files use fixed snake_case headers. Parsers match
// columns by name, not position, so column order in a file is free.
const (
	colPlatform  = "platform"
	colDate      = "date"
	colValue     = "value"
	colAmount    = "amount"
	colDirection = "direction"
	colInvested  = "cumulative_invested"
	colAbsGain   = "absolute_gain"
	colPctGain   = "percentage_gain"
)

type headerIndex map[string]int

func readHeader(r *csv.Reader) (headerIndex, error) {
	row, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idx := make(headerIndex, len(row))
	for i, name := range row {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return idx, nil
}

func (h headerIndex) require(columns ...string) error {
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

func (h headerIndex) get(row []string, column string) string {
	i, ok := h[column]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ParseSnapshotsCSV reads a cleansed snapshot file. Unparseable rows are
// dropped with a warning and counted; only a broken header fails the
// whole file.
func ParseSnapshotsCSV(r io.Reader, log zerolog.Logger) ([]SnapshotRecord, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	idx, err := readHeader(cr)
	if err != nil {
		return nil, 0, err
	}
	if err := idx.require(colPlatform, colDate, colValue); err != nil {
		return nil, 0, err
	}

	var records []SnapshotRecord
	dropped := 0
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(&DataError{Line: line, Field: "row", Reason: err.Error()}).Msg("Dropping snapshot row")
			dropped++
			continue
		}

		platform := idx.get(row, colPlatform)
		if platform == "" {
			log.Warn().Err(&DataError{Line: line, Field: colPlatform, Reason: "is empty"}).Msg("Dropping snapshot row")
			dropped++
			continue
		}
		date, err := dates.Parse(idx.get(row, colDate))
		if err != nil {
			log.Warn().Err(&DataError{Line: line, Field: colDate, Reason: err.Error()}).Msg("Dropping snapshot row")
			dropped++
			continue
		}
		value, err := strconv.ParseFloat(idx.get(row, colValue), 64)
		if err != nil {
			log.Warn().Err(&DataError{Line: line, Field: colValue, Reason: "is not a number"}).Msg("Dropping snapshot row")
			dropped++
			continue
		}

		records = append(records, SnapshotRecord{Platform: platform, Date: date, Value: value})
	}
	return records, dropped, nil
}

// ParseCashflowsCSV reads a cleansed cashflow file. The direction column
// is optional; when present it must agree with the sign of the amount,
// and rows where the two contradict are dropped rather than silently
// trusting either one.
func ParseCashflowsCSV(r io.Reader, log zerolog.Logger) ([]CashflowRecord, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	idx, err := readHeader(cr)
	if err != nil {
		return nil, 0, err
	}
	if err := idx.require(colPlatform, colDate, colAmount); err != nil {
		return nil, 0, err
	}

	var records []CashflowRecord
	dropped := 0
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(&DataError{Line: line, Field: "row", Reason: err.Error()}).Msg("Dropping cashflow row")
			dropped++
			continue
		}

		platform := idx.get(row, colPlatform)
		if platform == "" {
			log.Warn().Err(&DataError{Line: line, Field: colPlatform, Reason: "is empty"}).Msg("Dropping cashflow row")
			dropped++
			continue
		}
		date, err := dates.Parse(idx.get(row, colDate))
		if err != nil {
			log.Warn().Err(&DataError{Line: line, Field: colDate, Reason: err.Error()}).Msg("Dropping cashflow row")
			dropped++
			continue
		}
		amount, err := strconv.ParseFloat(idx.get(row, colAmount), 64)
		if err != nil {
			log.Warn().Err(&DataError{Line: line, Field: colAmount, Reason: "is not a number"}).Msg("Dropping cashflow row")
			dropped++
			continue
		}

		direction := DirectionOf(amount)
		if raw := idx.get(row, colDirection); raw != "" {
			parsed, ok := parseDirection(raw)
			if !ok {
				log.Warn().Err(&DataError{Line: line, Field: colDirection, Reason: fmt.Sprintf("unknown direction %q", raw)}).Msg("Dropping cashflow row")
				dropped++
				continue
			}
			if !parsed.Matches(amount) {
				log.Warn().Err(&DataError{Line: line, Field: colDirection, Reason: fmt.Sprintf("%s contradicts amount %g", parsed, amount)}).Msg("Dropping cashflow row")
				dropped++
				continue
			}
			direction = parsed
		}

		records = append(records, CashflowRecord{Platform: platform, Date: date, Amount: amount, Direction: direction})
	}
	return records, dropped, nil
}

func parseDirection(raw string) (Direction, bool) {
	switch strings.ToLower(raw) {
	case "inflow", "in", "deposit", "contribution":
		return Inflow, true
	case "outflow", "out", "withdrawal":
		return Outflow, true
	}
	return "", false
}

// WriteSnapshotsCSV writes records in the cleansed schema at full
// precision. Rows keep their input order.
func WriteSnapshotsCSV(w io.Writer, records []SnapshotRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{colPlatform, colDate, colValue}); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.Platform,
			rec.Date.String(),
			strconv.FormatFloat(rec.Value, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCashflowsCSV writes records in the cleansed schema at full
// precision.
func WriteCashflowsCSV(w io.Writer, records []CashflowRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{colPlatform, colDate, colAmount, colDirection}); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.Platform,
			rec.Date.String(),
			strconv.FormatFloat(rec.Amount, 'f', -1, 64),
			string(rec.Direction),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSeriesCSV writes one platform's performance series in the staging
// schema. Monetary columns carry two decimals, the gain ratio four; a
// nil percentage gain is written as an empty cell. Formatting is fixed
// so identical input always produces a byte-identical file.
func WriteSeriesCSV(w io.Writer, points []PerformancePoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{colDate, colValue, colInvested, colAbsGain, colPctGain}); err != nil {
		return err
	}
	for _, p := range points {
		pct := ""
		if p.PercentageGain != nil {
			pct = strconv.FormatFloat(*p.PercentageGain, 'f', 4, 64)
		}
		row := []string{
			p.Date.String(),
			strconv.FormatFloat(p.Value, 'f', 2, 64),
			strconv.FormatFloat(p.CumulativeInvested, 'f', 2, 64),
			strconv.FormatFloat(p.AbsoluteGain, 'f', 2, 64),
			pct,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseSeriesCSV reads a staging file back into performance points for
// the given platform. Staging files are engine output, so any defect is
// an error rather than a droppable row. The anomaly flag is not stored
// in the file and is recomputed from the row itself.
func ParseSeriesCSV(r io.Reader, platform string) ([]PerformancePoint, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	idx, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	if err := idx.require(colDate, colValue, colInvested, colAbsGain, colPctGain); err != nil {
		return nil, err
	}

	var points []PerformancePoint
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := dates.Parse(idx.get(row, colDate))
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, colDate, err)
		}
		value, err := strconv.ParseFloat(idx.get(row, colValue), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s is not a number", line, colValue)
		}
		invested, err := strconv.ParseFloat(idx.get(row, colInvested), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s is not a number", line, colInvested)
		}
		absGain, err := strconv.ParseFloat(idx.get(row, colAbsGain), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s is not a number", line, colAbsGain)
		}
		var pct *float64
		if raw := idx.get(row, colPctGain); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s is not a number", line, colPctGain)
			}
			pct = &v
		}

		points = append(points, PerformancePoint{
			Platform:           platform,
			Date:               date,
			Value:              value,
			CumulativeInvested: invested,
			AbsoluteGain:       absGain,
			PercentageGain:     pct,
			Anomaly:            invested < 0 && value > 0,
		})
	}
	return points, nil
}
