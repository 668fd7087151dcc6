package pensions

import (
	"sort"

	"github.com/fintracker/fintracker/pkg/dates"
)

// investedKnot is one step of the cumulative invested capital function:
// the running total of all cashflows up to and including date.
type investedKnot struct {
	date  dates.Date
	total float64
}

// InvestedSeries is the cumulative invested capital of one platform as a
// step function over time. It is immutable once built; lookups are
// binary searches over the sorted knots.
type InvestedSeries struct {
	knots []investedKnot
}

// AggregateCashflows collapses a platform's cashflows into its invested
// capital series. Records are sorted by date (stable, so same-day flows
// keep their input order) and summed; multiple flows on one day net to a
// single end-of-day knot.
//
// The input slice is not modified.
func AggregateCashflows(records []CashflowRecord) InvestedSeries {
	if len(records) == 0 {
		return InvestedSeries{}
	}

	sorted := make([]CashflowRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	knots := make([]investedKnot, 0, len(sorted))
	running := 0.0
	for _, rec := range sorted {
		running += rec.Amount
		if n := len(knots); n > 0 && knots[n-1].date == rec.Date {
			knots[n-1].total = running
		} else {
			knots = append(knots, investedKnot{date: rec.Date, total: running})
		}
	}

	return InvestedSeries{knots: knots}
}

// At returns the cumulative invested capital at date d: the running
// total as of the most recent cashflow at or before d, or 0 when no
// cashflow has happened yet.
func (s InvestedSeries) At(d dates.Date) float64 {
	idx := sort.Search(len(s.knots), func(i int) bool {
		return s.knots[i].date.After(d)
	})
	if idx == 0 {
		return 0
	}
	return s.knots[idx-1].total
}

// Dates returns the distinct cashflow dates ascending.
func (s InvestedSeries) Dates() []dates.Date {
	ds := make([]dates.Date, len(s.knots))
	for i, k := range s.knots {
		ds[i] = k.date
	}
	return ds
}

// Len returns the number of distinct cashflow dates.
func (s InvestedSeries) Len() int {
	return len(s.knots)
}

// Empty reports whether the platform has no cashflows at all.
func (s InvestedSeries) Empty() bool {
	return len(s.knots) == 0
}
