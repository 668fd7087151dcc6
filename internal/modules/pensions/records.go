// Package pensions implements the pension performance timeseries engine.
//
// The engine turns two irregular event streams per platform, balance
// snapshots and cashflows, into one densely dated performance series:
// account value, cumulative invested capital, absolute and percentage
// gain at every date either stream mentions. Values between snapshots
// are linearly interpolated in time; invested capital is a step
// function over the cashflow history.
package pensions

import (
	"math"
	"strings"

	"github.com/fintracker/fintracker/pkg/dates"
)

// Direction classifies a cashflow.
type Direction string

const (
	Inflow  Direction = "inflow"
	Outflow Direction = "outflow"
)

// DirectionOf returns the direction implied by a signed amount. Zero
// amounts count as inflows.
func DirectionOf(amount float64) Direction {
	if amount < 0 {
		return Outflow
	}
	return Inflow
}

// Matches reports whether the direction agrees with the sign of amount.
func (d Direction) Matches(amount float64) bool {
	return DirectionOf(amount) == d
}

// SnapshotRecord is one observed account balance: the value of a
// platform's account on a calendar day. At most one snapshot survives
// per (platform, date).
type SnapshotRecord struct {
	Platform string     `json:"platform"`
	Date     dates.Date `json:"date"`
	Value    float64    `json:"value"`
}

// CashflowRecord is one dated contribution or withdrawal. Amount is
// signed; Direction restates the sign and is validated against it when
// the source supplies it.
type CashflowRecord struct {
	Platform  string     `json:"platform"`
	Date      dates.Date `json:"date"`
	Amount    float64    `json:"amount"`
	Direction Direction  `json:"direction"`
}

// PerformancePoint is one output row of the engine.
//
// PercentageGain is nil when cumulative invested capital is zero: with
// nothing invested there is no base to measure against, and reporting
// 0% would misstate an undefined quantity.
type PerformancePoint struct {
	Platform           string     `json:"platform"`
	Date               dates.Date `json:"date"`
	Value              float64    `json:"value"`
	CumulativeInvested float64    `json:"cumulative_invested"`
	AbsoluteGain       float64    `json:"absolute_gain"`
	PercentageGain     *float64   `json:"percentage_gain"`
	Anomaly            bool       `json:"anomaly,omitempty"`
}

// PlatformSlug converts a display name to its file-name form, e.g.
// "Standard Life" -> "standard_life".
func PlatformSlug(platform string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(platform), " ", "_"))
}

// Round2 rounds a monetary amount to two decimal places for output.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round4 rounds a ratio to four decimal places for output. Four decimals
// on a ratio keep the same resolution as two decimals on a percentage.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
