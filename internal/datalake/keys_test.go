package datalake

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLayerPrefix(t *testing.T) {
	assert.Equal(t, "develop/pensions/raw/", LayerPrefix("develop", LayerRaw))
	assert.Equal(t, "production/pensions/staging/", LayerPrefix("production", LayerStaging))
}

func TestVersionedKey(t *testing.T) {
	at := time.Date(2024, 3, 5, 7, 30, 9, 0, time.UTC)

	key := VersionedKey("develop", LayerCleansed, CleansedSnapshotsPrefix, at)
	assert.Equal(t, "develop/pensions/cleansed/pensions_snapshots_cleansed_20240305_073009.csv", key)
}

func TestVersionedKey_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	at := time.Date(2024, 3, 5, 9, 30, 9, 0, loc)

	key := VersionedKey("develop", LayerRaw, RawSnapshotsPrefix, at)
	assert.Contains(t, key, "20240305_073009")
}

func TestVersionedKey_StringOrderIsTimeOrder(t *testing.T) {
	times := []time.Time{
		time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC),
		time.Date(2024, 10, 2, 12, 0, 0, 0, time.UTC),
	}

	keys := make([]string, len(times))
	for i, at := range times {
		keys[i] = VersionedKey("develop", LayerStaging, StagingSeriesPrefix("wahed"), at)
	}

	assert.True(t, sort.StringsAreSorted(keys), "Later timestamps must yield greater keys")
}

func TestStagingSeriesPrefix(t *testing.T) {
	assert.Equal(t, "timeseries_standard_life_", StagingSeriesPrefix("standard_life"))
}
