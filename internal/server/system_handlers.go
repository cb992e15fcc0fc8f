package server

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/holdings/internal/api"
	"github.com/aristath/holdings/internal/cache"
	"github.com/aristath/holdings/internal/di"
	"github.com/aristath/holdings/internal/reliability"
)

// DatabaseStatus is the size report of one database
type DatabaseStatus struct {
	Name      string  `json:"name"`
	Profile   string  `json:"profile"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	Error     string  `json:"error,omitempty"`
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status     string                        `json:"status"`
	Uptime     string                        `json:"uptime"`
	CPUPercent float64                       `json:"cpu_percent"`
	RAMPercent float64                       `json:"ram_percent"`
	Goroutines int                           `json:"goroutines"`
	Databases  []DatabaseStatus              `json:"databases"`
	Staleness  reliability.StalenessSnapshot `json:"staleness"`
	Cache      cache.Stats                   `json:"cache"`
}

// SystemHandlers serves system monitoring and operations endpoints
type SystemHandlers struct {
	container *di.Container
	started   time.Time
	cpuStats  func() float64
	memStats  func() float64
	log       zerolog.Logger
}

// NewSystemHandlers creates system handlers over the container
func NewSystemHandlers(container *di.Container, log zerolog.Logger) *SystemHandlers {
	h := &SystemHandlers{
		container: container,
		started:   time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
	h.cpuStats = h.cpuPercent
	h.memStats = h.ramPercent
	return h
}

// HandleSystemStatus handles GET /api/system/status.
// Status is "degraded" while some portfolio still has positions left stale by a failed update.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp := SystemStatusResponse{
		Status:     "ok",
		Uptime:     time.Since(h.started).Truncate(time.Second).String(),
		CPUPercent: h.cpuStats(),
		RAMPercent: h.memStats(),
		Goroutines: runtime.NumGoroutine(),
		Databases:  h.databaseStatus(r.Context()),
	}

	if h.container.Staleness != nil {
		resp.Staleness = h.container.Staleness.Snapshot()
		if len(resp.Staleness.StalePortfolios) > 0 {
			resp.Status = "degraded"
		}
	}
	if h.container.PositionCache != nil {
		resp.Cache = h.container.PositionCache.Stats()
	}

	api.WriteJSON(w, http.StatusOK, resp, h.log)
}

// HandleRunMaintenance handles POST /api/system/maintenance
func (h *SystemHandlers) HandleRunMaintenance(w http.ResponseWriter, r *http.Request) {
	if h.container.MaintenanceJob == nil {
		api.WriteJSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Error: "maintenance job not registered"}, h.log)
		return
	}

	h.log.Info().Msg("Maintenance triggered on request")
	report, err := h.container.MaintenanceJob.RunReport(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Maintenance run failed")
		api.WriteJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: err.Error(), Details: report}, h.log)
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"checked":       report.Checked,
		"checkpointed":  report.Checkpointed,
		"free_bytes":    report.FreeBytes,
		"repaired":      report.Repaired,
		"repair_failed": report.RepairFailed,
		"duration":      report.Duration.String(),
	}, h.log)
}

func (h *SystemHandlers) databaseStatus(ctx context.Context) []DatabaseStatus {
	dbs := h.container.Databases()
	names := make([]string, 0, len(dbs))
	for name := range dbs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]DatabaseStatus, 0, len(names))
	for _, name := range names {
		status := DatabaseStatus{Name: name, Profile: string(dbs[name].Profile())}
		stats, err := dbs[name].GetStats(ctx)
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			status.Error = "stats unavailable"
		} else {
			status.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
			status.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
		}
		out = append(out, status)
	}
	return out
}

// cpuPercent samples CPU usage over 100ms to keep the endpoint fast
func (h *SystemHandlers) cpuPercent() float64 {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		return 0
	}
	return cpuPercent[0]
}

func (h *SystemHandlers) ramPercent() float64 {
	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0
	}
	return memStat.UsedPercent
}
