package dates

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	d, err := Parse("2026-03-07")
	require.NoError(t, err)

	assert.Equal(t, 2026, d.Year())
	assert.Equal(t, time.March, d.Month())
	assert.Equal(t, 7, d.Day())
	assert.Equal(t, "2026-03-07", d.String())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("07/03/2026")
	assert.Error(t, err)

	_, err = Parse("not a date")
	assert.Error(t, err)
}

func TestParseDayFirst(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"03/02/2024", "2024-02-03"},
		{"3/2/2024", "2024-02-03"},
		{"31/12/2023", "2023-12-31"},
		{"31/12/2023 14:30", "2023-12-31"},
		{"31/12/2023 14:30:59", "2023-12-31"},
		{"3-2-2024", "2024-02-03"},
		{"2024-02-03", "2024-02-03"},
	}

	for _, tt := range tests {
		d, err := ParseDayFirst(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, d.String(), "input %q", tt.input)
	}

	_, err := ParseDayFirst("13/13/2024")
	assert.Error(t, err, "month 13 must not parse")
}

func TestDaysBetween(t *testing.T) {
	a := New(2024, time.January, 1)
	b := New(2024, time.January, 10)

	assert.Equal(t, 9, DaysBetween(a, b))
	assert.Equal(t, -9, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(a, a))

	// Across a leap day.
	feb := New(2024, time.February, 28)
	mar := New(2024, time.March, 1)
	assert.Equal(t, 2, DaysBetween(feb, mar))

	// Across a year boundary.
	dec := New(2023, time.December, 30)
	jan := New(2024, time.January, 2)
	assert.Equal(t, 3, DaysBetween(dec, jan))
}

func TestAddDays(t *testing.T) {
	d := New(2024, time.February, 27)

	assert.Equal(t, "2024-02-29", d.AddDays(2).String())
	assert.Equal(t, "2024-03-01", d.AddDays(3).String())
	assert.Equal(t, "2024-02-26", d.AddDays(-1).String())
}

func TestCompareAndOrdering(t *testing.T) {
	a := New(2024, time.May, 1)
	b := New(2024, time.May, 2)

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))

	ds := []Date{b, a, New(2023, time.December, 31)}
	Sort(ds)
	assert.Equal(t, "2023-12-31", ds[0].String())
	assert.Equal(t, "2024-05-01", ds[1].String())
	assert.Equal(t, "2024-05-02", ds[2].String())
}

func TestZeroValue(t *testing.T) {
	var d Date
	assert.True(t, d.IsZero())
	assert.False(t, New(2024, time.January, 1).IsZero())
}

func TestJSONRoundTrip(t *testing.T) {
	d := New(2025, time.November, 9)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2025-11-09"`, string(raw))

	var back Date
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, d, back)

	assert.Error(t, json.Unmarshal([]byte(`42`), &back))
}

func TestMapKey(t *testing.T) {
	seen := map[Date]int{}
	seen[New(2024, time.June, 1)]++
	seen[New(2024, time.June, 1)]++

	assert.Len(t, seen, 1)
	assert.Equal(t, 2, seen[New(2024, time.June, 1)])
}
