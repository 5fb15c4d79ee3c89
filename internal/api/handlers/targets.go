// This file implements target management endpoints: listing, adding and
// removing monitored hosts, plus per-host snapshot and event history.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mfolkes/portwarden/internal/metrics"
	"github.com/mfolkes/portwarden/internal/monitor"
	"github.com/mfolkes/portwarden/internal/store"
)

const defaultEventLimit = 100

// TargetsHandler handles monitored-target endpoints.
type TargetsHandler struct {
	monitor  *monitor.Monitor
	store    *store.Store
	logger   *slog.Logger
	metrics  metrics.MetricsRegistry
	validate *validator.Validate
}

// AddTargetRequest is the body of POST /targets.
type AddTargetRequest struct {
	Host string `json:"host" validate:"required,hostname|ip"`
}

// TargetResponse wraps a target status with a timestamp.
type TargetResponse struct {
	Target    monitor.TargetStatus `json:"target"`
	Timestamp time.Time            `json:"timestamp"`
}

// TargetListResponse is the body of GET /targets.
type TargetListResponse struct {
	Targets   []monitor.TargetStatus `json:"targets"`
	Count     int                    `json:"count"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewTargetsHandler creates a targets handler. The store may be nil when
// the daemon runs memory-only.
func NewTargetsHandler(
	mon *monitor.Monitor,
	st *store.Store,
	logger *slog.Logger,
	metricsRegistry metrics.MetricsRegistry,
) *TargetsHandler {
	return &TargetsHandler{
		monitor:  mon,
		store:    st,
		logger:   logger.With("handler", "targets"),
		metrics:  metricsRegistry,
		validate: validator.New(),
	}
}

// ListTargets handles GET /api/v1/targets.
func (h *TargetsHandler) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets := h.monitor.Targets()

	writeJSON(w, r, http.StatusOK, TargetListResponse{
		Targets:   targets,
		Count:     len(targets),
		Timestamp: time.Now().UTC(),
	})

	recordMetric(h.metrics, "api_targets_listed_total", nil)
}

// AddTarget handles POST /api/v1/targets. The new target is scanned
// immediately to seed its baseline, so the response carries the initial
// snapshot.
func (h *TargetsHandler) AddTarget(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestIDFromContext(r.Context())

	var req AddTargetRequest
	if err := parseJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, http.StatusBadRequest,
			fmt.Errorf("invalid target request: %w", err))
		return
	}

	h.logger.Info("Adding target", "request_id", requestID, "host", req.Host)

	if err := h.monitor.AddTarget(r.Context(), req.Host); err != nil {
		h.logger.Warn("Failed to add target",
			"request_id", requestID, "host", req.Host, "error", err)
		writeMonitorError(w, r, err)
		return
	}

	status, err := h.monitor.Status(req.Host)
	if err != nil {
		// Removed between add and read; surface the add anyway.
		writeJSON(w, r, http.StatusCreated, map[string]interface{}{
			"host":      req.Host,
			"timestamp": time.Now().UTC(),
		})
		return
	}

	writeJSON(w, r, http.StatusCreated, TargetResponse{
		Target:    status,
		Timestamp: time.Now().UTC(),
	})

	recordMetric(h.metrics, "api_targets_created_total", nil)
}

// GetTarget handles GET /api/v1/targets/{host}.
func (h *TargetsHandler) GetTarget(w http.ResponseWriter, r *http.Request) {
	host, err := extractHostFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	status, err := h.monitor.Status(host)
	if err != nil {
		writeMonitorError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, TargetResponse{
		Target:    status,
		Timestamp: time.Now().UTC(),
	})
}

// RemoveTarget handles DELETE /api/v1/targets/{host}.
func (h *TargetsHandler) RemoveTarget(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestIDFromContext(r.Context())

	host, err := extractHostFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	h.logger.Info("Removing target", "request_id", requestID, "host", host)

	if err := h.monitor.RemoveTarget(r.Context(), host); err != nil {
		writeMonitorError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)

	recordMetric(h.metrics, "api_targets_deleted_total", nil)
}

// GetSnapshot handles GET /api/v1/targets/{host}/snapshot. It serves the
// in-memory baseline for monitored hosts and falls back to the store for
// hosts with persisted history.
func (h *TargetsHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	host, err := extractHostFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if status, err := h.monitor.Status(host); err == nil {
		writeJSON(w, r, http.StatusOK, status.LastSnapshot)
		return
	}

	if h.store == nil {
		writeError(w, r, http.StatusNotFound,
			fmt.Errorf("target %s is not monitored", host))
		return
	}

	snapshot, err := h.store.LatestSnapshot(r.Context(), host)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snapshot)
}

// GetEvents handles GET /api/v1/targets/{host}/events. The in-memory
// change log is served when the host is monitored; otherwise persisted
// events are returned.
func (h *TargetsHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	host, err := extractHostFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	limit, err := getQueryParamInt(r, "limit", defaultEventLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest,
			fmt.Errorf("invalid limit parameter: %w", err))
		return
	}

	if events, err := h.monitor.History(host, limit); err == nil {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"host":      host,
			"events":    events,
			"count":     len(events),
			"timestamp": time.Now().UTC(),
		})
		return
	}

	if h.store == nil {
		writeError(w, r, http.StatusNotFound,
			fmt.Errorf("target %s is not monitored", host))
		return
	}

	records, err := h.store.Events(r.Context(), host, limit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"host":      host,
		"events":    records,
		"count":     len(records),
		"timestamp": time.Now().UTC(),
	})
}
