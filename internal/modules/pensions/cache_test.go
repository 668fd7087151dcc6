package pensions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesCache_PutGetRoundTrip(t *testing.T) {
	cache := NewSeriesCache(t.TempDir(), zerolog.Nop())

	pct := 0.5
	series := ProviderSeries{
		Platform: "Standard Life",
		Points: []PerformancePoint{
			{Platform: "Standard Life", Date: jan(1), Value: 100, CumulativeInvested: 100, AbsoluteGain: 0},
			{Platform: "Standard Life", Date: jan(10), Value: 150, CumulativeInvested: 100, AbsoluteGain: 50, PercentageGain: &pct},
		},
	}
	require.NoError(t, cache.Put(series))

	got, err := cache.Get("Standard Life")
	require.NoError(t, err)
	require.Len(t, got.Points, 2)

	assert.Equal(t, series.Points[0].Date, got.Points[0].Date)
	assert.Equal(t, series.Points[0].Value, got.Points[0].Value)
	assert.Nil(t, got.Points[0].PercentageGain)
	require.NotNil(t, got.Points[1].PercentageGain)
	assert.Equal(t, 0.5, *got.Points[1].PercentageGain)
}

func TestSeriesCache_MissWhenAbsent(t *testing.T) {
	cache := NewSeriesCache(t.TempDir(), zerolog.Nop())

	_, err := cache.Get("Wahed")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestSeriesCache_PutReplacesExisting(t *testing.T) {
	cache := NewSeriesCache(t.TempDir(), zerolog.Nop())

	require.NoError(t, cache.Put(ProviderSeries{
		Platform: "Wahed",
		Points:   []PerformancePoint{{Platform: "Wahed", Date: jan(1), Value: 100}},
	}))
	require.NoError(t, cache.Put(ProviderSeries{
		Platform: "Wahed",
		Points:   []PerformancePoint{{Platform: "Wahed", Date: jan(1), Value: 100}, {Platform: "Wahed", Date: jan(2), Value: 110}},
	}))

	got, err := cache.Get("Wahed")
	require.NoError(t, err)
	assert.Len(t, got.Points, 2)
}

func TestSeriesCache_CorruptFileIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	cache := NewSeriesCache(dir, zerolog.Nop())

	path := filepath.Join(dir, "series_wahed.msgpack")
	require.NoError(t, os.WriteFile(path, []byte("not msgpack"), 0o644))

	_, err := cache.Get("Wahed")
	require.ErrorIs(t, err, ErrCacheMiss)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "Corrupt file should have been removed")
}

func TestSeriesCache_Invalidate(t *testing.T) {
	cache := NewSeriesCache(t.TempDir(), zerolog.Nop())

	require.NoError(t, cache.Put(ProviderSeries{
		Platform: "Wahed",
		Points:   []PerformancePoint{{Platform: "Wahed", Date: jan(1), Value: 100}},
	}))
	require.NoError(t, cache.Invalidate("Wahed"))

	_, err := cache.Get("Wahed")
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.Invalidate("Wahed"), "Invalidating an absent entry is not an error")
}

func TestSeriesCache_PlatformsDoNotCollide(t *testing.T) {
	cache := NewSeriesCache(t.TempDir(), zerolog.Nop())

	require.NoError(t, cache.Put(ProviderSeries{
		Platform: "Wahed",
		Points:   []PerformancePoint{{Platform: "Wahed", Date: jan(1), Value: 1}},
	}))
	require.NoError(t, cache.Put(ProviderSeries{
		Platform: "Standard Life",
		Points:   []PerformancePoint{{Platform: "Standard Life", Date: jan(1), Value: 2}},
	}))

	wahed, err := cache.Get("Wahed")
	require.NoError(t, err)
	sl, err := cache.Get("Standard Life")
	require.NoError(t, err)

	assert.Equal(t, 1.0, wahed.Points[0].Value)
	assert.Equal(t, 2.0, sl.Points[0].Value)
}
