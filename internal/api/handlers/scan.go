// This file implements the one-shot scan endpoint.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mfolkes/portwarden/internal/metrics"
	"github.com/mfolkes/portwarden/internal/profiles"
	"github.com/mfolkes/portwarden/internal/scanning"
)

// ScanHandler handles one-shot scan requests.
type ScanHandler struct {
	scanner  *scanning.Scanner
	base     scanning.ScanConfig
	logger   *slog.Logger
	metrics  metrics.MetricsRegistry
	validate *validator.Validate
}

// ScanRequest is the body of POST /scan. Ports and Profile are mutually
// exclusive; with neither, the configured default port set is scanned.
type ScanRequest struct {
	Host    string `json:"host" validate:"required,hostname|ip"`
	Ports   string `json:"ports,omitempty"`
	Profile string `json:"profile,omitempty"`
}

// ScanResponse is the body of a successful scan.
type ScanResponse struct {
	Snapshot  scanning.Snapshot `json:"snapshot"`
	OpenPorts int               `json:"open_ports"`
	Duration  string            `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewScanHandler creates a scan handler using the given base scan
// configuration for timeout, concurrency, and default ports.
func NewScanHandler(
	scanner *scanning.Scanner,
	base scanning.ScanConfig,
	logger *slog.Logger,
	metricsRegistry metrics.MetricsRegistry,
) *ScanHandler {
	return &ScanHandler{
		scanner:  scanner,
		base:     base,
		logger:   logger.With("handler", "scan"),
		metrics:  metricsRegistry,
		validate: validator.New(),
	}
}

// Scan handles POST /api/v1/scan.
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestIDFromContext(r.Context())

	var req ScanRequest
	if err := parseJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, http.StatusBadRequest,
			fmt.Errorf("invalid scan request: %w", err))
		return
	}
	if req.Ports != "" && req.Profile != "" {
		writeError(w, r, http.StatusBadRequest,
			fmt.Errorf("ports and profile are mutually exclusive"))
		return
	}

	cfg := h.base
	switch {
	case req.Ports != "":
		ports, err := scanning.ParsePorts(req.Ports)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}
		cfg.Ports = ports
	case req.Profile != "":
		ports, err := profiles.Ports(req.Profile)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}
		cfg.Ports = ports
	}

	h.logger.Info("One-shot scan requested",
		"request_id", requestID, "host", req.Host, "ports", len(cfg.Ports))

	start := time.Now()
	snapshot, err := h.scanner.Scan(r.Context(), req.Host, cfg)
	if err != nil {
		h.logger.Error("One-shot scan failed",
			"request_id", requestID, "host", req.Host, "error", err)
		writeMonitorError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, ScanResponse{
		Snapshot:  snapshot,
		OpenPorts: snapshot.OpenCount(),
		Duration:  time.Since(start).Round(time.Millisecond).String(),
		Timestamp: time.Now().UTC(),
	})

	recordMetric(h.metrics, "api_scans_total", map[string]string{"status": "success"})
}
