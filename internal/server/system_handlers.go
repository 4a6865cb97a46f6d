package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/aristath/allocator/internal/clients/pricefiles"
	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/runs"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// PriceLoader reads the configured price table
type PriceLoader interface {
	Load(dir string) (domain.PriceTable, error)
}

// LatestRuns reads recent run history
type LatestRuns interface {
	List(ctx context.Context, limit int) ([]runs.Run, error)
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	CPUPercent    float64   `json:"cpu_percent"`
	RAMPercent    float64   `json:"ram_percent"`
	Goroutines    int       `json:"goroutines"`
	GoVersion     string    `json:"go_version"`
	Database      string    `json:"database"`
	LastRun       *runs.Run `json:"last_run,omitempty"`
}

// PriceCoverageResponse is the body of GET /api/system/prices
type PriceCoverageResponse struct {
	Dir      string                `json:"dir"`
	Complete bool                  `json:"complete"`
	Assets   []pricefiles.Coverage `json:"assets"`
}

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	db        *database.DB
	loader    PriceLoader
	pricesDir string
	history   LatestRuns
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(db *database.DB, loader PriceLoader, pricesDir string, history LatestRuns, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		db:        db,
		loader:    loader,
		pricesDir: pricesDir,
		history:   history,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		StartedAt:     h.startedAt.UTC(),
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		Goroutines:    runtime.NumGoroutine(),
		GoVersion:     runtime.Version(),
		Database:      "ok",
	}

	if h.db != nil {
		if err := h.db.HealthCheck(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("Database health check failed")
			response.Status = "degraded"
			response.Database = err.Error()
		}
	}

	if h.history != nil {
		latest, err := h.history.List(r.Context(), 1)
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to read latest run")
		} else if len(latest) > 0 {
			response.LastRun = &latest[0]
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandlePriceCoverage handles GET /api/system/prices, reporting per-asset
// date ranges and the rows alignment will drop.
func (h *SystemHandlers) HandlePriceCoverage(w http.ResponseWriter, r *http.Request) {
	table, err := h.loader.Load(h.pricesDir)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load prices")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	coverage := pricefiles.Inspect(table)
	h.writeJSON(w, http.StatusOK, PriceCoverageResponse{
		Dir:      h.pricesDir,
		Complete: pricefiles.Complete(coverage),
		Assets:   coverage,
	})
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		http.Error(w, "Database not configured", http.StatusServiceUnavailable)
		return
	}
	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get database stats")
		http.Error(w, "Failed to get database stats", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// getSystemStats returns CPU and RAM usage percentages
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

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
