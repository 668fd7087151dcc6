package pensions

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrSeriesNotFound is returned when neither the local cache nor the
// lake holds a series for the requested platform.
var ErrSeriesNotFound = errors.New("no series available for platform")

// StagingReader fetches the most recently staged series file for a
// platform slug. found is false when the platform has never been staged.
type StagingReader interface {
	LatestStagingSeries(ctx context.Context, platformSlug string) (data []byte, found bool, err error)
}

// Series sources reported to callers.
const (
	SourceCache = "cache"
	SourceLake  = "lake"
)

// SeriesService serves computed performance series. Reads hit the local
// cache first and fall back to the latest staged file in the lake; a
// lake hit refills the cache on the way out. The service never computes
// anything itself, that is the pipeline's job.
type SeriesService struct {
	cache *SeriesCache
	lake  StagingReader
	log   zerolog.Logger
}

// NewSeriesService creates the read path. lake may be nil, in which
// case only cached series are served.
func NewSeriesService(cache *SeriesCache, lake StagingReader, log zerolog.Logger) *SeriesService {
	return &SeriesService{
		cache: cache,
		lake:  lake,
		log:   log.With().Str("service", "series").Logger(),
	}
}

// Latest returns the newest known series for a platform together with
// the source it came from.
func (s *SeriesService) Latest(ctx context.Context, platform string) (ProviderSeries, string, error) {
	series, err := s.cache.Get(platform)
	if err == nil {
		return series, SourceCache, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return ProviderSeries{}, "", fmt.Errorf("failed to read series cache: %w", err)
	}

	if s.lake == nil {
		return ProviderSeries{}, "", ErrSeriesNotFound
	}

	data, found, err := s.lake.LatestStagingSeries(ctx, PlatformSlug(platform))
	if err != nil {
		return ProviderSeries{}, "", fmt.Errorf("failed to fetch staged series: %w", err)
	}
	if !found {
		return ProviderSeries{}, "", ErrSeriesNotFound
	}

	points, err := ParseSeriesCSV(bytes.NewReader(data), platform)
	if err != nil {
		return ProviderSeries{}, "", fmt.Errorf("failed to parse staged series: %w", err)
	}
	series = ProviderSeries{Platform: platform, Points: points}

	if err := s.cache.Put(series); err != nil {
		s.log.Warn().Err(err).Str("platform", platform).Msg("Failed to refill series cache")
	}

	return series, SourceLake, nil
}
