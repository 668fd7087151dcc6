// Package handlers provides HTTP handlers for pension series operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/modules/analytics"
	"github.com/fintracker/fintracker/internal/modules/pensions"
)

// Handler handles pension series HTTP requests
type Handler struct {
	platforms []string
	series    *pensions.SeriesService
	analytics *analytics.Service
	log       zerolog.Logger
}

// NewHandler creates a new pensions handler
func NewHandler(
	platforms []string,
	series *pensions.SeriesService,
	analyticsService *analytics.Service,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		platforms: platforms,
		series:    series,
		analytics: analyticsService,
		log:       log.With().Str("handler", "pensions").Logger(),
	}
}

// HandleListPlatforms handles GET /api/platforms
func (h *Handler) HandleListPlatforms(w http.ResponseWriter, r *http.Request) {
	platforms := []map[string]interface{}{}
	for _, p := range h.platforms {
		platforms = append(platforms, map[string]interface{}{
			"name": p,
			"slug": pensions.PlatformSlug(p),
		})
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"platforms": platforms,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(platforms),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetTimeseries handles GET /api/pensions/{platform}/timeseries
//
// The optional smooth query parameter adds a moving average of the value
// column alongside the raw points.
func (h *Handler) HandleGetTimeseries(w http.ResponseWriter, r *http.Request) {
	platform, ok := h.resolvePlatform(chi.URLParam(r, "platform"))
	if !ok {
		http.Error(w, "Unknown platform", http.StatusNotFound)
		return
	}

	smoothWindow := 0
	if raw := r.URL.Query().Get("smooth"); raw != "" {
		window, err := strconv.Atoi(raw)
		if err != nil || window < 2 {
			http.Error(w, "smooth must be an integer >= 2", http.StatusBadRequest)
			return
		}
		smoothWindow = window
	}

	series, source, err := h.series.Latest(r.Context(), platform)
	if err != nil {
		if errors.Is(err, pensions.ErrSeriesNotFound) {
			http.Error(w, "No series available for platform", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("platform", platform).Msg("Failed to load series")
		http.Error(w, "Failed to load series", http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"platform": platform,
		"points":   roundedPoints(series.Points),
	}
	metadata := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"rows":      len(series.Points),
		"source":    source,
	}

	if smoothWindow > 0 {
		smoothed := h.analytics.Smooth(valuesOf(series.Points), smoothWindow)
		for i, v := range smoothed {
			if v != nil {
				rounded := pensions.Round2(*v)
				smoothed[i] = &rounded
			}
		}
		data["smoothed_values"] = smoothed
		metadata["smooth_window"] = smoothWindow
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     data,
		"metadata": metadata,
	})
}

// HandleGetSummary handles GET /api/pensions/{platform}/summary
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	platform, ok := h.resolvePlatform(chi.URLParam(r, "platform"))
	if !ok {
		http.Error(w, "Unknown platform", http.StatusNotFound)
		return
	}

	series, source, err := h.series.Latest(r.Context(), platform)
	if err != nil {
		if errors.Is(err, pensions.ErrSeriesNotFound) {
			http.Error(w, "No series available for platform", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("platform", platform).Msg("Failed to load series")
		http.Error(w, "Failed to load series", http.StatusInternalServerError)
		return
	}

	values := valuesOf(series.Points)
	anomalies := 0
	for _, p := range series.Points {
		if p.Anomaly {
			anomalies++
		}
	}

	data := map[string]interface{}{
		"platform":     platform,
		"rows":         len(series.Points),
		"value":        h.analytics.Describe(values),
		"max_drawdown": h.analytics.Drawdown(values),
		"anomalies":    anomalies,
	}
	if len(series.Points) > 0 {
		first := series.Points[0]
		latest := series.Points[len(series.Points)-1]
		data["range"] = map[string]interface{}{
			"from": first.Date.String(),
			"to":   latest.Date.String(),
		}
		data["latest"] = roundedPoints([]pensions.PerformancePoint{latest})[0]
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"source":    source,
		},
	})
}

// resolvePlatform matches a path segment against the configured
// platforms, accepting both the display name and its slug.
func (h *Handler) resolvePlatform(param string) (string, bool) {
	slug := pensions.PlatformSlug(param)
	for _, p := range h.platforms {
		if p == param || pensions.PlatformSlug(p) == slug {
			return p, true
		}
	}
	return "", false
}

// roundedPoints copies points with output rounding applied, two decimals
// for money and four for the gain ratio.
func roundedPoints(points []pensions.PerformancePoint) []pensions.PerformancePoint {
	out := make([]pensions.PerformancePoint, len(points))
	for i, p := range points {
		p.Value = pensions.Round2(p.Value)
		p.CumulativeInvested = pensions.Round2(p.CumulativeInvested)
		p.AbsoluteGain = pensions.Round2(p.AbsoluteGain)
		if p.PercentageGain != nil {
			v := pensions.Round4(*p.PercentageGain)
			p.PercentageGain = &v
		}
		out[i] = p
	}
	return out
}

func valuesOf(points []pensions.PerformancePoint) []float64 {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
