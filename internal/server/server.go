// Package server provides the HTTP server and routing for the dashboard API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/config"
	"github.com/fintracker/fintracker/internal/di"
	pensionshandlers "github.com/fintracker/fintracker/internal/modules/pensions/handlers"
	runshandlers "github.com/fintracker/fintracker/internal/modules/runs/handlers"
	"github.com/fintracker/fintracker/internal/pipeline"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
	runFeed        *RunFeed
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
	}

	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Config, cfg.Container.LedgerDB, cfg.Container.Lake)
	s.runFeed = NewRunFeed(cfg.Container.EventBus, cfg.Log)

	s.setupMiddleware()
	s.setupRoutes(cfg.Log)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Config.Port),
		Handler: s.router,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(log zerolog.Logger) {
	// Liveness probe, outside the /api envelope conventions
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	pensionsHandler := pensionshandlers.NewHandler(
		s.cfg.PensionPlatforms,
		s.container.SeriesService,
		s.container.Analytics,
		log,
	)
	runsHandler := runshandlers.NewHandler(s.container.RunsRepo, log)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system/stats", s.systemHandlers.HandleSystemStats)

		r.Get("/platforms", pensionsHandler.HandleListPlatforms)
		r.Route("/pensions", func(r chi.Router) {
			r.Get("/{platform}/timeseries", pensionsHandler.HandleGetTimeseries)
			r.Get("/{platform}/summary", pensionsHandler.HandleGetSummary)
		})

		r.Post("/pipeline/run", s.handleTriggerPipeline)
		r.Get("/runs", runsHandler.HandleListRuns)
		r.Get("/runs/{id}", runsHandler.HandleGetRun)

		// Websocket feed of run events
		r.Get("/ws/runs", s.runFeed.ServeHTTP)
	})
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"data": map[string]interface{}{
			"status":      "ok",
			"environment": s.cfg.Environment,
			"pipeline":    s.container.Runner != nil,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	s.writeJSON(w, http.StatusOK, response)
}

// handleTriggerPipeline handles POST /api/pipeline/run
func (s *Server) handleTriggerPipeline(w http.ResponseWriter, r *http.Request) {
	if s.container.Runner == nil {
		http.Error(w, "Pipeline is not configured", http.StatusServiceUnavailable)
		return
	}

	runID, err := s.container.Runner.Start("api")
	if err != nil {
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			response := map[string]interface{}{
				"error":  "A pipeline run is already in progress",
				"run_id": s.container.Runner.ActiveRun(),
			}
			s.writeJSON(w, http.StatusConflict, response)
			return
		}
		s.log.Error().Err(err).Msg("Failed to start pipeline run")
		http.Error(w, "Failed to start pipeline run", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"run_id": runID,
			"status": "started",
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	s.writeJSON(w, http.StatusAccepted, response)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs each request with its status and timing.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
