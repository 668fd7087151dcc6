/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every long-lived dependency of the application and
 * is the single source of truth commands and handlers pull services from.
 */
package di

import (
	"github.com/fintracker/fintracker/internal/clients/googlesheets"
	"github.com/fintracker/fintracker/internal/database"
	"github.com/fintracker/fintracker/internal/datalake"
	"github.com/fintracker/fintracker/internal/events"
	"github.com/fintracker/fintracker/internal/modules/analytics"
	"github.com/fintracker/fintracker/internal/modules/pensions"
	"github.com/fintracker/fintracker/internal/modules/runs"
	"github.com/fintracker/fintracker/internal/pipeline"
)

/**
 * Container holds all dependencies for the application.
 *
 * External clients are optional: the API server starts without lake or
 * sheets credentials and degrades to cache-only series access. The
 * pipeline runner exists only when both clients do.
 */
type Container struct {
	// Storage
	LedgerDB *database.DB // sqlite run ledger
	RunsRepo *runs.Repository

	// External clients, nil when their credentials are not configured
	Lake   *datalake.Client
	Sheets *googlesheets.Client

	// Engine and series access
	Engine        *pensions.Engine
	SeriesCache   *pensions.SeriesCache
	SeriesService *pensions.SeriesService
	Analytics     *analytics.Service

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Pipeline, nil unless both lake and sheets are configured
	Runner *pipeline.Runner
}

// Close releases the container's resources.
func (c *Container) Close() error {
	if c.LedgerDB != nil {
		return c.LedgerDB.Close()
	}
	return nil
}
