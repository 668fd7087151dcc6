// Package analytics provides descriptive statistics and smoothing over
// performance series values.
package analytics

import (
	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ValueStats summarizes one numeric series.
type ValueStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Service computes statistics over value series. It is stateless; all
// inputs arrive per call.
type Service struct {
	log zerolog.Logger
}

func NewService(log zerolog.Logger) *Service {
	return &Service{
		log: log.With().Str("service", "analytics").Logger(),
	}
}

// Describe returns summary statistics for a series. An empty series
// yields zero stats, a single value has zero standard deviation.
func (s *Service) Describe(values []float64) ValueStats {
	if len(values) == 0 {
		return ValueStats{}
	}
	vs := ValueStats{
		Mean: stat.Mean(values, nil),
		Min:  floats.Min(values),
		Max:  floats.Max(values),
	}
	if len(values) > 1 {
		vs.StdDev = stat.StdDev(values, nil)
	}
	return vs
}

// Smooth applies a simple moving average with the given window. The
// result is aligned with the input; entries inside the warm-up period,
// where no full window exists yet, are nil. A window below 2 returns
// the input unchanged.
func (s *Service) Smooth(values []float64, window int) []*float64 {
	out := make([]*float64, len(values))
	if len(values) == 0 {
		return out
	}
	if window < 2 {
		for i := range values {
			v := values[i]
			out[i] = &v
		}
		return out
	}
	if window > len(values) {
		s.log.Debug().Int("window", window).Int("rows", len(values)).Msg("Window exceeds series length, nothing to smooth")
		return out
	}

	sma := talib.Sma(values, window)
	for i := window - 1; i < len(sma); i++ {
		v := sma[i]
		out[i] = &v
	}
	return out
}

// Drawdown returns the largest peak-to-trough decline of a series as a
// positive fraction of the peak, 0 for flat or rising series. Peaks at
// or below zero are ignored.
func (s *Service) Drawdown(values []float64) float64 {
	maxDrawdown := 0.0
	peak := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
			continue
		}
		if peak > 0 {
			dd := (peak - v) / peak
			if dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}
	return maxDrawdown
}
