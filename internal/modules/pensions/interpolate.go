package pensions

import (
	"fmt"

	"github.com/fintracker/fintracker/pkg/dates"
)

// BoundaryPolicy decides the account value for timeline dates outside
// the observed snapshot range, i.e. before the first snapshot or after
// the last one. It is only consulted for such dates; everything inside
// the range is an exact snapshot value or a linear interpolation.
type BoundaryPolicy func(d dates.Date, snapshots SnapshotSeries, invested InvestedSeries) float64

// FlatBoundary carries the nearest observed snapshot value outward
// unchanged: the first value backward, the last value forward. Trends
// are never projected beyond the observed range.
func FlatBoundary(d dates.Date, snapshots SnapshotSeries, invested InvestedSeries) float64 {
	first, firstValue := snapshots.First()
	if d.Before(first) {
		return firstValue
	}
	_, lastValue := snapshots.Last()
	return lastValue
}

// InvestedBaseline values dates before the first snapshot at the
// cumulative invested capital, treating an account as worth exactly
// what was paid in until a balance is first observed. After the last
// snapshot it carries the last value forward like FlatBoundary.
func InvestedBaseline(d dates.Date, snapshots SnapshotSeries, invested InvestedSeries) float64 {
	first, _ := snapshots.First()
	if d.Before(first) {
		return invested.At(d)
	}
	_, lastValue := snapshots.Last()
	return lastValue
}

// PolicyFromName maps a configuration string to its boundary policy.
func PolicyFromName(name string) (BoundaryPolicy, error) {
	switch name {
	case "flat":
		return FlatBoundary, nil
	case "invested":
		return InvestedBaseline, nil
	default:
		return nil, fmt.Errorf("unknown boundary policy %q", name)
	}
}

// InterpolateValues assigns an account value to every timeline date:
//
//   - dates with a snapshot take that value exactly;
//   - dates strictly between two snapshots are linearly interpolated in
//     time, with date differences measured in whole days;
//   - dates outside the snapshot range go through the boundary policy.
//
// A platform with a single snapshot is a flat line at that value.
// Requires snapshots.Len() > 0; the engine filters out platforms with
// no snapshots before interpolation.
func InterpolateValues(timeline []dates.Date, snapshots SnapshotSeries, invested InvestedSeries, policy BoundaryPolicy) []float64 {
	values := make([]float64, len(timeline))
	pts := snapshots.points

	// hi tracks the first snapshot at or after the current date. The
	// timeline is ascending, so hi only ever moves forward.
	hi := 0
	for i, d := range timeline {
		for hi < len(pts) && pts[hi].date.Before(d) {
			hi++
		}

		switch {
		case hi == len(pts):
			// Past the last snapshot.
			values[i] = policy(d, snapshots, invested)
		case pts[hi].date == d:
			values[i] = pts[hi].value
		case hi == 0:
			// Before the first snapshot.
			values[i] = policy(d, snapshots, invested)
		default:
			lo, up := pts[hi-1], pts[hi]
			span := dates.DaysBetween(lo.date, up.date)
			offset := dates.DaysBetween(lo.date, d)
			values[i] = lo.value + (up.value-lo.value)*float64(offset)/float64(span)
		}
	}

	return values
}
