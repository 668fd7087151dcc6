package pensions

import (
	"errors"
	"fmt"
)

// ErrNoInput is returned when neither snapshot nor cashflow data is
// available. This is the only condition that fails an entire engine run;
// everything else degrades row by row or platform by platform.
var ErrNoInput = errors.New("no snapshot or cashflow data to process")

// DataError describes a single unusable input row. Rows that fail to
// parse are dropped and counted, they never abort a run.
type DataError struct {
	Line   int    // 1-based line number in the source file, 0 when unknown
	Field  string // offending column
	Reason string
}

func (e *DataError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("bad row at line %d: %s %s", e.Line, e.Field, e.Reason)
	}
	return fmt.Sprintf("bad row: %s %s", e.Field, e.Reason)
}

// EmptyProviderError marks a platform that has cashflows but no balance
// snapshots. Without a single observed value there is nothing to
// interpolate from, so the platform is left out of the output entirely.
type EmptyProviderError struct {
	Platform string
}

func (e *EmptyProviderError) Error() string {
	return fmt.Sprintf("platform %q has no snapshots", e.Platform)
}
