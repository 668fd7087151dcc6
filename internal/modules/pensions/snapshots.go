package pensions

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/pkg/dates"
)

// snapshotPoint is one observed (date, value) pair.
type snapshotPoint struct {
	date  dates.Date
	value float64
}

// SnapshotSeries is a platform's balance snapshots, sorted ascending by
// date with exactly one value per date.
type SnapshotSeries struct {
	points []snapshotPoint
}

// NormalizeSnapshots sorts and deduplicates a platform's snapshots.
// Duplicate dates should not survive upstream cleansing, but when they
// do the last occurrence in input order wins and the conflict is
// logged. Values are never averaged.
//
// The input slice is not modified.
func NormalizeSnapshots(records []SnapshotRecord, log zerolog.Logger) SnapshotSeries {
	if len(records) == 0 {
		return SnapshotSeries{}
	}

	byDate := make(map[dates.Date]float64, len(records))
	for _, rec := range records {
		if prev, dup := byDate[rec.Date]; dup {
			log.Warn().
				Str("platform", rec.Platform).
				Str("date", rec.Date.String()).
				Float64("kept", rec.Value).
				Float64("discarded", prev).
				Msg("Duplicate snapshot date, keeping last occurrence")
		}
		byDate[rec.Date] = rec.Value
	}

	points := make([]snapshotPoint, 0, len(byDate))
	for d, v := range byDate {
		points = append(points, snapshotPoint{date: d, value: v})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].date.Before(points[j].date)
	})

	return SnapshotSeries{points: points}
}

// Len returns the number of distinct snapshot dates.
func (s SnapshotSeries) Len() int {
	return len(s.points)
}

// ValueAt returns the exact snapshot value on date d, if one exists.
func (s SnapshotSeries) ValueAt(d dates.Date) (float64, bool) {
	idx := sort.Search(len(s.points), func(i int) bool {
		return !s.points[i].date.Before(d)
	})
	if idx < len(s.points) && s.points[idx].date == d {
		return s.points[idx].value, true
	}
	return 0, false
}

// Dates returns the snapshot dates ascending.
func (s SnapshotSeries) Dates() []dates.Date {
	ds := make([]dates.Date, len(s.points))
	for i, p := range s.points {
		ds[i] = p.date
	}
	return ds
}

// First returns the earliest snapshot. Only valid when Len() > 0.
func (s SnapshotSeries) First() (dates.Date, float64) {
	p := s.points[0]
	return p.date, p.value
}

// Last returns the latest snapshot. Only valid when Len() > 0.
func (s SnapshotSeries) Last() (dates.Date, float64) {
	p := s.points[len(s.points)-1]
	return p.date, p.value
}
