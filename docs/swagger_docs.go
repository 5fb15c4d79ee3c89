// Package docs provides Swagger documentation for the portwarden API.
//
// This file contains all API endpoint documentation using swaggo annotations.
// Run `swag init` to generate OpenAPI specification files.
//
//go:generate swag init -g swagger_docs.go -o ./swagger --parseDependency --parseInternal
package docs

import (
	"net/http"
	"time"
)

// @title portwarden API
// @version 0.3.0
// @description Port scan monitoring service: periodic TCP scans of monitored
// @description hosts with change detection, persisted history, and
// @description notification delivery.
// @description
// @description ## Authentication
// @description Most endpoints require API key authentication. Include your API key in the `X-API-Key` header.
// @description Public endpoints (health, liveness, version, metrics) do not require authentication.
//
// @security ApiKeyAuth
//
// @contact.name portwarden Support
// @contact.url https://github.com/mfolkes/portwarden
//
// @license.name MIT
// @license.url https://github.com/mfolkes/portwarden/blob/main/LICENSE
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status" example:"healthy"`
	Checks    map[string]string `json:"checks"`
	Uptime    string            `json:"uptime" example:"2h30m45s"`
	Timestamp time.Time         `json:"timestamp"`
}

// StatusResponse represents the monitoring summary
type StatusResponse struct {
	Monitoring      bool      `json:"monitoring" example:"true"`
	TargetCount     int       `json:"target_count" example:"3"`
	TotalOpenPorts  int       `json:"total_open_ports" example:"12"`
	TotalEvents     int       `json:"total_events" example:"7"`
	DatabaseEnabled bool      `json:"database_enabled" example:"true"`
	Uptime          string    `json:"uptime" example:"2h30m45s"`
	Timestamp       time.Time `json:"timestamp"`
}

// VersionResponse represents version information
type VersionResponse struct {
	Version   string `json:"version" example:"0.3.0"`
	Commit    string `json:"commit" example:"abc1234"`
	BuildDate string `json:"build_date" example:"2026-08-30"`
	GoVersion string `json:"go_version" example:"go1.24"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string    `json:"error" example:"Bad Request"`
	Message   string    `json:"message" example:"invalid target request"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty" example:"req_550e8400"`
}

// PortInfo represents one open port in a snapshot
type PortInfo struct {
	Service    string    `json:"service" example:"https"`
	Banner     string    `json:"banner,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// SnapshotResponse represents a scan snapshot
type SnapshotResponse struct {
	Target     string              `json:"target" example:"192.168.1.10"`
	Ports      map[string]PortInfo `json:"ports"`
	CapturedAt time.Time           `json:"captured_at"`
}

// TargetStatusResponse represents a monitored target
type TargetStatusResponse struct {
	ID              string           `json:"id" example:"192.168.1.10"`
	MonitoringSince time.Time        `json:"monitoring_since"`
	LastSnapshot    SnapshotResponse `json:"last_snapshot"`
	OpenPorts       int              `json:"open_ports" example:"4"`
	EventCount      int              `json:"event_count" example:"2"`
}

// TargetListResponse represents the monitored target list
type TargetListResponse struct {
	Targets   []TargetStatusResponse `json:"targets"`
	Count     int                    `json:"count" example:"3"`
	Timestamp time.Time              `json:"timestamp"`
}

// AddTargetRequest represents a request to monitor a host
type AddTargetRequest struct {
	Host string `json:"host" example:"192.168.1.10"`
}

// ChangeEventResponse represents one detected change
type ChangeEventResponse struct {
	ID         string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Kind       string    `json:"kind" example:"port_opened" enums:"port_opened,port_closed,service_changed"`
	Target     string    `json:"target" example:"192.168.1.10"`
	Port       int       `json:"port" example:"8080"`
	Service    string    `json:"service,omitempty" example:"http-alt"`
	OldService string    `json:"old_service,omitempty"`
	NewService string    `json:"new_service,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message" example:"⚠️ New port opened on 192.168.1.10: 8080 (http-alt)"`
}

// EventFeedResponse represents the cross-target event feed
type EventFeedResponse struct {
	Events    []ChangeEventResponse `json:"events"`
	Count     int                   `json:"count" example:"5"`
	Timestamp time.Time             `json:"timestamp"`
}

// ScanRequest represents a one-shot scan request
type ScanRequest struct {
	Host    string `json:"host" example:"192.168.1.10"`
	Ports   string `json:"ports,omitempty" example:"22,80,443,8000-8100"`
	Profile string `json:"profile,omitempty" example:"quick"`
}

// ScanResponse represents a one-shot scan result
type ScanResponse struct {
	Snapshot  SnapshotResponse `json:"snapshot"`
	OpenPorts int              `json:"open_ports" example:"3"`
	Duration  string           `json:"duration" example:"1.204s"`
	Timestamp time.Time        `json:"timestamp"`
}

// Health godoc
// @Summary Health check
// @Description Returns service health including database connectivity
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Success 503 {object} HealthResponse
// @Failure 429 {object} ErrorResponse
// @Router /health [get]
// @ID getHealth
func Health(_ http.ResponseWriter, _ *http.Request) {}

// Liveness godoc
// @Summary Liveness probe
// @Description Returns alive while the process is serving requests
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /liveness [get]
// @ID getLiveness
func Liveness(_ http.ResponseWriter, _ *http.Request) {}

// Version godoc
// @Summary Version information
// @Description Returns version and build information
// @Tags System
// @Produce json
// @Success 200 {object} VersionResponse
// @Router /version [get]
// @ID getVersion
func Version(_ http.ResponseWriter, _ *http.Request) {}

// Metrics godoc
// @Summary Application metrics
// @Description Returns Prometheus metrics for monitoring
// @Tags System
// @Produce text/plain
// @Success 200 {string} string
// @Router /metrics [get]
// @ID getMetrics
func Metrics(_ http.ResponseWriter, _ *http.Request) {}

// Status godoc
// @Summary Monitoring status
// @Description Returns the monitoring summary across all targets
// @Tags System
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} StatusResponse
// @Failure 401 {object} ErrorResponse
// @Router /status [get]
// @ID getStatus
func Status(_ http.ResponseWriter, _ *http.Request) {}

// ListTargets godoc
// @Summary List monitored targets
// @Description Get all monitored targets with their latest snapshots
// @Tags Targets
// @Produce json
// @Success 200 {object} TargetListResponse
// @Failure 401 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /targets [get]
// @ID listTargets
func ListTargets(_ http.ResponseWriter, _ *http.Request) {}

// AddTarget godoc
// @Summary Add monitored target
// @Description Start monitoring a host; the baseline snapshot is scanned immediately
// @Tags Targets
// @Accept json
// @Produce json
// @Param target body AddTargetRequest true "Target host"
// @Success 201 {object} TargetStatusResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /targets [post]
// @ID addTarget
func AddTarget(_ http.ResponseWriter, _ *http.Request) {}

// GetTarget godoc
// @Summary Get monitored target
// @Description Get a monitored target's status and latest snapshot
// @Tags Targets
// @Produce json
// @Param host path string true "Target host"
// @Success 200 {object} TargetStatusResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /targets/{host} [get]
// @ID getTarget
func GetTarget(_ http.ResponseWriter, _ *http.Request) {}

// RemoveTarget godoc
// @Summary Remove monitored target
// @Description Stop monitoring a host
// @Tags Targets
// @Param host path string true "Target host"
// @Success 204 "Successfully removed"
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /targets/{host} [delete]
// @ID removeTarget
func RemoveTarget(_ http.ResponseWriter, _ *http.Request) {}

// GetSnapshot godoc
// @Summary Get target snapshot
// @Description Get the latest port snapshot for a host, falling back to persisted history
// @Tags Targets
// @Produce json
// @Param host path string true "Target host"
// @Success 200 {object} SnapshotResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /targets/{host}/snapshot [get]
// @ID getTargetSnapshot
func GetSnapshot(_ http.ResponseWriter, _ *http.Request) {}

// GetTargetEvents godoc
// @Summary Get target events
// @Description Get recent change events for a host
// @Tags Targets
// @Produce json
// @Param host path string true "Target host"
// @Param limit query int false "Maximum events returned" default(100)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /targets/{host}/events [get]
// @ID getTargetEvents
func GetTargetEvents(_ http.ResponseWriter, _ *http.Request) {}

// Scan godoc
// @Summary One-shot scan
// @Description Scan a host immediately without monitoring it
// @Tags Scan
// @Accept json
// @Produce json
// @Param scan body ScanRequest true "Scan request"
// @Success 200 {object} ScanResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /scan [post]
// @ID oneShotScan
func Scan(_ http.ResponseWriter, _ *http.Request) {}

// ListEvents godoc
// @Summary Event feed
// @Description Get recent change events across all monitored targets, newest first
// @Tags Events
// @Produce json
// @Param limit query int false "Maximum events returned" default(100)
// @Success 200 {object} EventFeedResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /events [get]
// @ID listEvents
func ListEvents(_ http.ResponseWriter, _ *http.Request) {}

// EventsWebSocket godoc
// @Summary Event stream
// @Description Upgrade to a WebSocket that streams change events in real time
// @Tags Events
// @Success 101 "Switching Protocols"
// @Failure 401 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /events/ws [get]
// @ID eventsWebSocket
func EventsWebSocket(_ http.ResponseWriter, _ *http.Request) {}
