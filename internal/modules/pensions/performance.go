package pensions

import (
	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/pkg/dates"
)

// ComputePerformance derives the gain/loss metrics for every timeline
// date from the interpolated values and the invested capital series.
// timeline and values run in lockstep.
//
// A positive value against zero or negative invested capital is an
// inconsistency in the books, not something the engine can repair: the
// row is flagged and logged but the numbers are reported as they are.
// Percentage gain stays nil whenever invested capital is zero.
func ComputePerformance(platform string, timeline []dates.Date, values []float64, invested InvestedSeries, log zerolog.Logger) []PerformancePoint {
	points := make([]PerformancePoint, 0, len(timeline))

	for i, d := range timeline {
		value := values[i]
		inv := invested.At(d)

		p := PerformancePoint{
			Platform:           platform,
			Date:               d,
			Value:              value,
			CumulativeInvested: inv,
			AbsoluteGain:       value - inv,
		}

		if inv != 0 {
			ratio := p.AbsoluteGain / inv
			p.PercentageGain = &ratio
		}

		if inv < 0 && value > 0 {
			p.Anomaly = true
			log.Warn().
				Str("platform", platform).
				Str("date", d.String()).
				Float64("value", value).
				Float64("invested", inv).
				Msg("Positive value against negative invested capital")
		}

		points = append(points, p)
	}

	return points
}
