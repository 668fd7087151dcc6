package pensions

import (
	"github.com/fintracker/fintracker/pkg/dates"
)

// MergeTimeline unions two date sets into one strictly increasing
// sequence. Every date either stream mentions gets an output row, so
// the merged timeline spans from the earliest event of either kind to
// the latest.
func MergeTimeline(snapshotDates, cashflowDates []dates.Date) []dates.Date {
	merged := make([]dates.Date, 0, len(snapshotDates)+len(cashflowDates))
	merged = append(merged, snapshotDates...)
	merged = append(merged, cashflowDates...)
	if len(merged) == 0 {
		return nil
	}

	dates.Sort(merged)

	out := merged[:1]
	for _, d := range merged[1:] {
		if d != out[len(out)-1] {
			out = append(out, d)
		}
	}
	return out
}
