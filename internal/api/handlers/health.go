// This file implements health, liveness, version, and status endpoints.
package handlers

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/mfolkes/portwarden/internal/metrics"
	"github.com/mfolkes/portwarden/internal/monitor"
	"github.com/mfolkes/portwarden/internal/store"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// HealthHandler handles health and status endpoints.
type HealthHandler struct {
	monitor   *monitor.Monitor
	store     *store.Store
	logger    *slog.Logger
	metrics   metrics.MetricsRegistry
	startTime time.Time
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Uptime    string            `json:"uptime"`
	Timestamp time.Time         `json:"timestamp"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Monitoring      bool      `json:"monitoring"`
	TargetCount     int       `json:"target_count"`
	TotalOpenPorts  int       `json:"total_open_ports"`
	TotalEvents     int       `json:"total_events"`
	DatabaseEnabled bool      `json:"database_enabled"`
	Goroutines      int       `json:"goroutines"`
	Uptime          string    `json:"uptime"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewHealthHandler creates a health handler. The store may be nil.
func NewHealthHandler(
	mon *monitor.Monitor,
	st *store.Store,
	logger *slog.Logger,
	metricsRegistry metrics.MetricsRegistry,
) *HealthHandler {
	return &HealthHandler{
		monitor:   mon,
		store:     st,
		logger:    logger.With("handler", "health"),
		metrics:   metricsRegistry,
		startTime: time.Now(),
	}
}

// Health handles GET /api/v1/health. It reports degraded when a
// configured database is unreachable.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"monitor": "ok",
	}
	status := "healthy"
	code := http.StatusOK

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			checks["database"] = "unreachable"
			status = "degraded"
			code = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	writeJSON(w, r, code, HealthResponse{
		Status:    status,
		Checks:    checks,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	})
}

// Liveness handles GET /api/v1/liveness.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
	})
}

// Version handles GET /api/v1/version.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"version":    Version,
		"commit":     Commit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	})
}

// Status handles GET /api/v1/status: a monitoring summary across all
// targets.
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	targets := h.monitor.Targets()

	openPorts := 0
	events := 0
	for i := range targets {
		openPorts += targets[i].OpenPorts
		events += targets[i].EventCount
	}

	writeJSON(w, r, http.StatusOK, StatusResponse{
		Monitoring:      h.monitor.Running(),
		TargetCount:     len(targets),
		TotalOpenPorts:  openPorts,
		TotalEvents:     events,
		DatabaseEnabled: h.store != nil,
		Goroutines:      runtime.NumGoroutine(),
		Uptime:          time.Since(h.startTime).Round(time.Second).String(),
		Timestamp:       time.Now().UTC(),
	})

	recordMetric(h.metrics, "api_status_total", nil)
}
