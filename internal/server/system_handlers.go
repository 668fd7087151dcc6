package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/fintracker/fintracker/internal/config"
	"github.com/fintracker/fintracker/internal/database"
	"github.com/fintracker/fintracker/internal/datalake"
)

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	cfg         *config.Config
	ledgerDB    *database.DB
	lake        *datalake.Client // nil when the lake is not configured
	startupTime time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, cfg *config.Config, ledgerDB *database.DB, lake *datalake.Client) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		cfg:         cfg,
		ledgerDB:    ledgerDB,
		lake:        lake,
		startupTime: time.Now(),
	}
}

// HandleSystemStats handles GET /api/system/stats
func (h *SystemHandlers) HandleSystemStats(w http.ResponseWriter, r *http.Request) {
	cpuAvg, memUsed := h.getSystemStats()

	data := map[string]interface{}{
		"cpu_percent":    cpuAvg,
		"memory_percent": memUsed,
		"uptime_seconds": time.Since(h.startupTime).Seconds(),
		"environment":    h.cfg.Environment,
	}

	if diskStat, err := disk.Usage(h.cfg.DataDir); err == nil {
		data["disk"] = map[string]interface{}{
			"path":         h.cfg.DataDir,
			"used_percent": diskStat.UsedPercent,
			"free_bytes":   diskStat.Free,
		}
	} else {
		h.log.Warn().Err(err).Msg("Failed to get disk usage")
	}

	if stats, err := h.ledgerDB.GetStats(); err == nil {
		data["ledger"] = map[string]interface{}{
			"size_bytes":     stats.SizeBytes,
			"wal_size_bytes": stats.WALSizeBytes,
			"page_count":     stats.PageCount,
		}
	} else {
		h.log.Warn().Err(err).Msg("Failed to get ledger stats")
	}

	data["lake"] = h.lakeStatus(r.Context())

	response := map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, response)
}

// lakeStatus pings the bucket with a short timeout.
func (h *SystemHandlers) lakeStatus(ctx context.Context) map[string]interface{} {
	if h.lake == nil {
		return map[string]interface{}{"status": "not_configured"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := "connected"
	if err := h.lake.Ping(pingCtx); err != nil {
		h.log.Warn().Err(err).Msg("Data lake ping failed")
		status = "unreachable"
	}
	return map[string]interface{}{
		"status": status,
		"bucket": h.lake.Bucket(),
	}
}

// getSystemStats returns CPU and RAM usage percentages.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
