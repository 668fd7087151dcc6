// Package dates provides a calendar day type for timeseries work.
//
// Pension snapshots and cashflows are dated to the day, never to the
// minute, so the rest of the codebase works with Date values instead of
// time.Time and converts only at the edges (CSV, JSON, S3 key names).
package dates

import (
	"fmt"
	"sort"
	"time"
)

// ISO is the canonical wire format for dates.
const ISO = "2006-01-02"

// dayFirstLayouts are accepted by ParseDayFirst, most specific first.
// Layouts without zero padding also match padded input.
var dayFirstLayouts = []string{
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"2-1-2006",
}

// Date is a calendar day. The zero value is usable as "no date" and
// reports IsZero. Date is comparable and safe as a map key.
type Date struct {
	year  int
	month time.Month
	day   int
}

// New returns the date for the given year, month and day. Out-of-range
// values are normalized the same way time.Date normalizes them.
func New(year int, month time.Month, day int) Date {
	return FromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// FromTime truncates a time.Time to its calendar day.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{year: y, month: m, day: d}
}

// Today returns the current calendar day in local time.
func Today() Date {
	return FromTime(time.Now())
}

// Parse reads a date in ISO form ("2006-01-02").
func Parse(s string) (Date, error) {
	t, err := time.Parse(ISO, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return FromTime(t), nil
}

// ParseDayFirst reads a UK-style day-first date ("31/01/2026"), with or
// without zero padding and with an optional time part that is discarded.
func ParseDayFirst(s string) (Date, error) {
	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return FromTime(t), nil
		}
	}
	// Some sources export ISO dates even when the rest of the sheet is
	// day-first, accept those too.
	if t, err := time.Parse(ISO, s); err == nil {
		return FromTime(t), nil
	}
	return Date{}, fmt.Errorf("invalid day-first date %q", s)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.year == 0 && d.month == 0 && d.day == 0
}

// Time returns the date as a time.Time at UTC midnight.
func (d Date) Time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

// Year returns the calendar year.
func (d Date) Year() int { return d.year }

// Month returns the calendar month.
func (d Date) Month() time.Month { return d.month }

// Day returns the day of the month.
func (d Date) Day() int { return d.day }

// String formats the date in ISO form.
func (d Date) String() string {
	return d.Time().Format(ISO)
}

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool {
	return d.Compare(other) < 0
}

// After reports whether d is later than other.
func (d Date) After(other Date) bool {
	return d.Compare(other) > 0
}

// Compare returns -1, 0 or 1 depending on whether d is before, equal
// to or after other.
func (d Date) Compare(other Date) int {
	switch {
	case d.year != other.year:
		return cmp(d.year, other.year)
	case d.month != other.month:
		return cmp(int(d.month), int(other.month))
	default:
		return cmp(d.day, other.day)
	}
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return FromTime(d.Time().AddDate(0, 0, n))
}

// DaysBetween returns the whole number of days from a to b. Negative
// when b is before a. Exact because both ends are UTC midnights.
func DaysBetween(a, b Date) int {
	return int(b.Time().Sub(a.Time()) / (24 * time.Hour))
}

// Sort orders a slice of dates ascending in place.
func Sort(ds []Date) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Before(ds[j]) })
}

// MarshalJSON encodes the date as an ISO string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes an ISO string date.
func (d *Date) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid date JSON: %s", data)
	}
	parsed, err := Parse(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
