// This file implements the cross-target event feed endpoint.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/mfolkes/portwarden/internal/diff"
	"github.com/mfolkes/portwarden/internal/metrics"
	"github.com/mfolkes/portwarden/internal/monitor"
)

// EventsHandler serves the recent change-event feed across all monitored
// targets. Per-host persisted history lives under /targets/{host}/events.
type EventsHandler struct {
	monitor *monitor.Monitor
	logger  *slog.Logger
	metrics metrics.MetricsRegistry
}

// EventFeedResponse is the body of GET /events.
type EventFeedResponse struct {
	Events    []diff.ChangeEvent `json:"events"`
	Count     int                `json:"count"`
	Timestamp time.Time          `json:"timestamp"`
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(
	mon *monitor.Monitor,
	logger *slog.Logger,
	metricsRegistry metrics.MetricsRegistry,
) *EventsHandler {
	return &EventsHandler{
		monitor: mon,
		logger:  logger.With("handler", "events"),
		metrics: metricsRegistry,
	}
}

// ListEvents handles GET /api/v1/events. Events are collected from every
// monitored target's in-memory change log, merged newest first.
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryParamInt(r, "limit", defaultEventLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest,
			fmt.Errorf("invalid limit parameter: %w", err))
		return
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}

	var events []diff.ChangeEvent
	for _, status := range h.monitor.Targets() {
		history, err := h.monitor.History(status.ID, limit)
		if err != nil {
			continue
		}
		events = append(events, history...)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	if events == nil {
		events = []diff.ChangeEvent{}
	}

	writeJSON(w, r, http.StatusOK, EventFeedResponse{
		Events:    events,
		Count:     len(events),
		Timestamp: time.Now().UTC(),
	})

	recordMetric(h.metrics, "api_events_listed_total", nil)
}
