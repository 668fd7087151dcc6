package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/clients/googlesheets"
	"github.com/fintracker/fintracker/internal/config"
	"github.com/fintracker/fintracker/internal/database"
	"github.com/fintracker/fintracker/internal/datalake"
	"github.com/fintracker/fintracker/internal/events"
	"github.com/fintracker/fintracker/internal/modules/analytics"
	"github.com/fintracker/fintracker/internal/modules/pensions"
	"github.com/fintracker/fintracker/internal/modules/runs"
	"github.com/fintracker/fintracker/internal/pipeline"
)

// Wire initializes all dependencies and returns a fully configured
// container.
//
// Order of operations:
//  1. Storage (run ledger)
//  2. Events
//  3. Engine, cache and analytics
//  4. External clients (optional, credential-gated)
//  5. Series service over cache and lake
//  6. Pipeline runner, when both external clients exist
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{}

	// Step 1: storage
	db, err := database.New(database.Config{Path: cfg.LedgerPath(), Name: "runs"})
	if err != nil {
		return nil, fmt.Errorf("failed to open run ledger: %w", err)
	}
	c.LedgerDB = db

	c.RunsRepo = runs.NewRepository(db.Conn(), log)
	if err := c.RunsRepo.Init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize run ledger: %w", err)
	}

	// Step 2: events
	c.EventBus = events.NewBus(log)
	c.EventManager = events.NewManager(c.EventBus, log)

	// Step 3: engine, cache and analytics
	policy, err := pensions.PolicyFromName(cfg.BoundaryPolicy)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.Engine = pensions.NewEngine(cfg.PensionPlatforms, policy, log)
	c.SeriesCache = pensions.NewSeriesCache(cfg.CacheDir(), log)
	c.Analytics = analytics.NewService(log)

	// Step 4: external clients
	if credErr := cfg.ValidateLake(); credErr == nil {
		lake, err := datalake.New(ctx, cfg, log)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to data lake: %w", err)
		}
		c.Lake = lake
	} else {
		log.Warn().Err(credErr).Msg("Data lake not configured, series are served from cache only")
	}

	if credErr := cfg.ValidateSheets(); credErr == nil {
		creds, err := cfg.GoogleCredentials()
		if err != nil {
			db.Close()
			return nil, err
		}
		sheets, err := googlesheets.New(ctx, cfg.GoogleSheetID, creds, log)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create sheets client: %w", err)
		}
		c.Sheets = sheets
	} else {
		log.Warn().Err(credErr).Msg("Google Sheets not configured, raw ingestion unavailable")
	}

	// Step 5: series service. The lake pointer only becomes a reader
	// when it exists, a nil interface keeps the service cache-only.
	var staging pensions.StagingReader
	if c.Lake != nil {
		staging = c.Lake
	}
	c.SeriesService = pensions.NewSeriesService(c.SeriesCache, staging, log)

	// Step 6: pipeline
	if c.Lake != nil && c.Sheets != nil {
		stages := []pipeline.Stage{
			pipeline.NewRawStage(c.Sheets, c.Lake, log),
			pipeline.NewCleanseStage(c.Lake, cfg.PensionPlatforms, log),
			pipeline.NewStagingStage(c.Lake, c.Engine, c.SeriesCache, c.EventManager, log),
		}
		c.Runner = pipeline.NewRunner(stages, c.RunsRepo, c.EventManager, log)
	} else {
		log.Warn().Msg("Pipeline disabled, lake and sheets credentials are both required")
	}

	log.Info().Msg("Dependency injection wiring completed")
	return c, nil
}
