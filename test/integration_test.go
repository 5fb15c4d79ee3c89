// Package test holds cross-package integration tests that exercise the
// full monitoring workflow: scan, watch, change, report.
package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfolkes/portwarden/internal"
	"github.com/mfolkes/portwarden/internal/api"
	"github.com/mfolkes/portwarden/internal/config"
	"github.com/mfolkes/portwarden/internal/diff"
	"github.com/mfolkes/portwarden/internal/logging"
	"github.com/mfolkes/portwarden/internal/monitor"
	"github.com/mfolkes/portwarden/internal/scanning"
)

const testLocalhostIP = "127.0.0.1"

// startListener opens a local TCP listener with a trivial accept loop
// and returns its port and a stop function.
func startListener(t *testing.T) (uint16, func()) {
	t.Helper()

	ln, err := net.Listen("tcp", testLocalhostIP+":0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	return port, func() { _ = ln.Close() }
}

// newTestStack builds a monitor and API server watching the given port,
// returning the HTTP handler for requests.
func newTestStack(t *testing.T, port uint16) (*monitor.Monitor, http.Handler) {
	t.Helper()

	cfg := config.Default()
	cfg.API.APIKey = ""
	cfg.Database.Enabled = false
	cfg.Scanning.Ports = strconv.Itoa(int(port))
	cfg.Scanning.ProbeTimeout = 500 * time.Millisecond

	mon := monitor.New(monitor.Config{
		Interval: time.Hour,
		Scan: scanning.ScanConfig{
			Timeout:             500 * time.Millisecond,
			MaxConcurrentProbes: 4,
			Ports:               []uint16{port},
		},
	})

	server, err := api.New(cfg, mon, logging.NewDefault().Logger)
	require.NoError(t, err)

	return mon, server.Router()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body, out interface{}) int {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if out != nil && rec.Code < http.StatusBadRequest {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestScanWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	port, stop := startListener(t)
	defer stop()

	result, err := internal.RunScan(&internal.ScanConfig{
		Target:  testLocalhostIP,
		Ports:   strconv.Itoa(int(port)),
		Timeout: time.Second,
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 1, result.OpenCount())
	assert.Contains(t, result.Snapshot.Ports, port)
	assert.NotEmpty(t, result.Snapshot.Ports[port].Service)
}

func TestMonitoringWorkflowThroughAPI(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	port, stop := startListener(t)
	mon, handler := newTestStack(t, port)

	// Add a target: the baseline scan should see the open port.
	var added struct {
		Target struct {
			ID        string `json:"id"`
			OpenPorts int    `json:"open_ports"`
		} `json:"target"`
	}
	code := doJSON(t, handler, http.MethodPost, "/api/v1/targets",
		map[string]string{"host": testLocalhostIP}, &added)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, testLocalhostIP, added.Target.ID)
	assert.Equal(t, 1, added.Target.OpenPorts)

	// Re-adding conflicts.
	code = doJSON(t, handler, http.MethodPost, "/api/v1/targets",
		map[string]string{"host": testLocalhostIP}, nil)
	assert.Equal(t, http.StatusConflict, code)

	// Close the listener and run a cycle: the port closing must be
	// recorded as a change event.
	stop()
	mon.RunCycleNow(context.Background())

	var feed struct {
		Events []diff.ChangeEvent `json:"events"`
		Count  int                `json:"count"`
	}
	code = doJSON(t, handler, http.MethodGet,
		fmt.Sprintf("/api/v1/targets/%s/events", testLocalhostIP), nil, &feed)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, feed.Count)
	assert.Equal(t, diff.PortClosed, feed.Events[0].Kind)
	assert.Equal(t, port, feed.Events[0].Port)

	// A second unchanged cycle produces no new events.
	mon.RunCycleNow(context.Background())
	code = doJSON(t, handler, http.MethodGet,
		fmt.Sprintf("/api/v1/targets/%s/events", testLocalhostIP), nil, &feed)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, feed.Count)

	// Remove the target.
	code = doJSON(t, handler, http.MethodDelete,
		fmt.Sprintf("/api/v1/targets/%s", testLocalhostIP), nil, nil)
	assert.Equal(t, http.StatusNoContent, code)

	code = doJSON(t, handler, http.MethodGet,
		fmt.Sprintf("/api/v1/targets/%s", testLocalhostIP), nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestOneShotScanThroughAPI(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	port, stop := startListener(t)
	defer stop()
	_, handler := newTestStack(t, port)

	var resp struct {
		OpenPorts int               `json:"open_ports"`
		Snapshot  scanning.Snapshot `json:"snapshot"`
	}
	code := doJSON(t, handler, http.MethodPost, "/api/v1/scan",
		map[string]string{"host": testLocalhostIP, "ports": strconv.Itoa(int(port))}, &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, resp.OpenPorts)
	assert.Contains(t, resp.Snapshot.Ports, port)
}
