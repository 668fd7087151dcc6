// Package main is the FinTracker pipeline CLI. It runs the ingestion chain
// (raw, cleanse, stage) once and exits, for cron setups and manual backfills
// where the long-running server is not wanted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/config"
	"github.com/fintracker/fintracker/internal/di"
	"github.com/fintracker/fintracker/internal/modules/runs"
	"github.com/fintracker/fintracker/pkg/logger"
)

func main() {
	stage := flag.String("stage", "all", "Stage to run: raw, cleanse, stage or all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	// The server degrades gracefully without credentials, the CLI exists to
	// move data and fails upfront instead.
	if err := cfg.ValidateLake(); err != nil {
		log.Fatal().Err(err).Msg("Data lake is not configured")
	}
	if err := cfg.ValidateSheets(); err != nil {
		log.Fatal().Err(err).Msg("Google Sheets access is not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	if container.Runner == nil {
		log.Fatal().Msg("Pipeline is not available")
	}

	var stages []string
	if *stage != "all" {
		stages = []string{*stage}
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("stage", *stage).
		Msg("Starting pipeline run")

	run, err := container.Runner.Run(ctx, "cli", stages)
	if run != nil {
		logStages(log, run)
	}
	if err != nil {
		log.Error().Err(err).Msg("Pipeline run failed")
		container.Close()
		os.Exit(1)
	}

	log.Info().
		Str("run_id", run.ID).
		Float64("duration_seconds", run.Duration().Seconds()).
		Msg("Pipeline run completed")
}

// logStages prints a per-stage summary of the finished run.
func logStages(log zerolog.Logger, run *runs.Run) {
	for _, s := range run.Stages {
		event := log.Info()
		if s.Status == runs.StatusFailed {
			event = log.Error()
		}
		event.
			Str("stage", s.Name).
			Str("status", string(s.Status)).
			Int("rows", s.Rows).
			Int("dropped", s.Dropped).
			Msg("Stage finished")
	}
}
