package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/datalake"
	"github.com/fintracker/fintracker/internal/events"
	"github.com/fintracker/fintracker/internal/modules/pensions"
)

// StagingStage runs the performance engine over the latest cleansed
// files and writes one staging timeseries per platform. Freshly staged
// series also refresh the local cache, so the API can serve them without
// a lake round trip.
type StagingStage struct {
	lake   Lake
	engine *pensions.Engine
	cache  *pensions.SeriesCache
	events *events.Manager
	log    zerolog.Logger
}

// NewStagingStage creates the staging stage.
func NewStagingStage(
	lake Lake,
	engine *pensions.Engine,
	cache *pensions.SeriesCache,
	ev *events.Manager,
	log zerolog.Logger,
) *StagingStage {
	return &StagingStage{
		lake:   lake,
		engine: engine,
		cache:  cache,
		events: ev,
		log:    log.With().Str("stage", StageStaging).Logger(),
	}
}

// Name returns the stage name.
func (s *StagingStage) Name() string {
	return StageStaging
}

// Run computes and uploads one performance series per platform.
func (s *StagingStage) Run(ctx context.Context, at time.Time) (StageResult, error) {
	snapData, snapshotsKey, found, err := s.lake.DownloadLatest(ctx, datalake.LayerCleansed, datalake.CleansedSnapshotsPrefix)
	if err != nil {
		return StageResult{}, fmt.Errorf("failed to fetch cleansed snapshots: %w", err)
	}
	if !found {
		return StageResult{}, fmt.Errorf("no cleansed snapshot files found")
	}

	cashData, cashflowsKey, found, err := s.lake.DownloadLatest(ctx, datalake.LayerCleansed, datalake.CleansedCashflowsPrefix)
	if err != nil {
		return StageResult{}, fmt.Errorf("failed to fetch cleansed cashflows: %w", err)
	}
	if !found {
		return StageResult{}, fmt.Errorf("no cleansed cashflow files found")
	}

	snapshots, snapDropped, err := pensions.ParseSnapshotsCSV(bytes.NewReader(snapData), s.log)
	if err != nil {
		return StageResult{}, fmt.Errorf("cleansed snapshots %s: %w", snapshotsKey, err)
	}
	cashflows, cashDropped, err := pensions.ParseCashflowsCSV(bytes.NewReader(cashData), s.log)
	if err != nil {
		return StageResult{}, fmt.Errorf("cleansed cashflows %s: %w", cashflowsKey, err)
	}

	result, err := s.engine.Run(snapshots, cashflows)
	if err != nil {
		return StageResult{}, err
	}

	for _, series := range result.Series {
		var buf bytes.Buffer
		if err := pensions.WriteSeriesCSV(&buf, series.Points); err != nil {
			return StageResult{}, fmt.Errorf("failed to encode series for %s: %w", series.Platform, err)
		}

		prefix := datalake.StagingSeriesPrefix(pensions.PlatformSlug(series.Platform))
		key, err := s.lake.UploadVersioned(ctx, datalake.LayerStaging, prefix, at, buf.Bytes())
		if err != nil {
			return StageResult{}, fmt.Errorf("failed to upload series for %s: %w", series.Platform, err)
		}

		// Cache refresh is best effort, the lake copy is authoritative.
		if err := s.cache.Put(series); err != nil {
			s.log.Warn().Err(err).Str("platform", series.Platform).Msg("Failed to refresh series cache")
		}

		s.events.EmitTyped("pipeline", &events.SeriesStagedData{
			Platform: series.Platform,
			Rows:     len(series.Points),
			Key:      key,
		})
	}

	s.log.Info().
		Int("platforms", len(result.Series)).
		Strs("skipped", result.Skipped).
		Int("points", result.TotalPoints()).
		Int("anomalies", result.Anomalies).
		Msg("Series staged")

	return StageResult{
		Rows:    result.TotalPoints(),
		Dropped: snapDropped + cashDropped + result.Dropped,
	}, nil
}
