package pensions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/fintracker/fintracker/pkg/dates"
)

// ErrCacheMiss is returned by Get when no usable cached series exists
// for the platform.
var ErrCacheMiss = errors.New("series not cached")

// cachedPoint mirrors PerformancePoint with the date as an ISO string,
// which keeps the on-disk format independent of the Date internals.
type cachedPoint struct {
	Date           string   `msgpack:"date"`
	Value          float64  `msgpack:"value"`
	Invested       float64  `msgpack:"invested"`
	AbsoluteGain   float64  `msgpack:"absolute_gain"`
	PercentageGain *float64 `msgpack:"percentage_gain"`
	Anomaly        bool     `msgpack:"anomaly"`
}

type cachedSeries struct {
	Platform string        `msgpack:"platform"`
	SavedAt  time.Time     `msgpack:"saved_at"`
	Points   []cachedPoint `msgpack:"points"`
}

// SeriesCache stores one computed series per platform on local disk so
// the API can answer without a round trip to the lake. The cache is
// disposable: anything unreadable is deleted and treated as a miss.
type SeriesCache struct {
	dir string
	log zerolog.Logger
}

func NewSeriesCache(dir string, log zerolog.Logger) *SeriesCache {
	return &SeriesCache{
		dir: dir,
		log: log.With().Str("component", "series_cache").Logger(),
	}
}

func (c *SeriesCache) path(platform string) string {
	return filepath.Join(c.dir, fmt.Sprintf("series_%s.msgpack", PlatformSlug(platform)))
}

// Put replaces the cached series for a platform. The file is written to
// a temp name and renamed so readers never observe a partial write.
func (c *SeriesCache) Put(series ProviderSeries) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	blob := cachedSeries{
		Platform: series.Platform,
		SavedAt:  time.Now().UTC(),
		Points:   make([]cachedPoint, 0, len(series.Points)),
	}
	for _, p := range series.Points {
		blob.Points = append(blob.Points, cachedPoint{
			Date:           p.Date.String(),
			Value:          p.Value,
			Invested:       p.CumulativeInvested,
			AbsoluteGain:   p.AbsoluteGain,
			PercentageGain: p.PercentageGain,
			Anomaly:        p.Anomaly,
		})
	}

	data, err := msgpack.Marshal(blob)
	if err != nil {
		return fmt.Errorf("failed to encode series: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, "series_*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(series.Platform)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	c.log.Debug().Str("platform", series.Platform).Int("rows", len(series.Points)).Msg("Series cached")
	return nil
}

// Get loads the cached series for a platform. A corrupt file is removed
// and reported as a miss so the next run rebuilds it.
func (c *SeriesCache) Get(platform string) (ProviderSeries, error) {
	data, err := os.ReadFile(c.path(platform))
	if os.IsNotExist(err) {
		return ProviderSeries{}, ErrCacheMiss
	}
	if err != nil {
		return ProviderSeries{}, fmt.Errorf("failed to read cache file: %w", err)
	}

	var blob cachedSeries
	if err := msgpack.Unmarshal(data, &blob); err != nil {
		c.discardCorrupt(platform, err)
		return ProviderSeries{}, ErrCacheMiss
	}

	series := ProviderSeries{
		Platform: platform,
		Points:   make([]PerformancePoint, 0, len(blob.Points)),
	}
	for _, p := range blob.Points {
		date, err := dates.Parse(p.Date)
		if err != nil {
			c.discardCorrupt(platform, err)
			return ProviderSeries{}, ErrCacheMiss
		}
		series.Points = append(series.Points, PerformancePoint{
			Platform:           platform,
			Date:               date,
			Value:              p.Value,
			CumulativeInvested: p.Invested,
			AbsoluteGain:       p.AbsoluteGain,
			PercentageGain:     p.PercentageGain,
			Anomaly:            p.Anomaly,
		})
	}
	return series, nil
}

// Invalidate removes the cached series for a platform, if any.
func (c *SeriesCache) Invalidate(platform string) error {
	err := os.Remove(c.path(platform))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (c *SeriesCache) discardCorrupt(platform string, err error) {
	c.log.Warn().Err(err).Str("platform", platform).Msg("Discarding corrupt cache file")
	os.Remove(c.path(platform))
}
