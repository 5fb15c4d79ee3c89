package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfolkes/portwarden/internal/scanning"
)

func testScanHandler(ports ...uint16) *ScanHandler {
	return NewScanHandler(scanning.NewScanner(), scanning.ScanConfig{
		Timeout:             500 * time.Millisecond,
		MaxConcurrentProbes: 4,
		Ports:               ports,
	}, testLogger(), nil)
}

func TestScanOpenPort(t *testing.T) {
	_, port := startListener(t)
	h := testScanHandler(port)

	body, _ := json.Marshal(ScanRequest{Host: "127.0.0.1"})
	rec := httptest.NewRecorder()
	h.Scan(rec, httptest.NewRequest(http.MethodPost, "/scan", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.OpenPorts)
	assert.Equal(t, "127.0.0.1", resp.Snapshot.Target)
	assert.NotEmpty(t, resp.Duration)
}

func TestScanExplicitPorts(t *testing.T) {
	_, port := startListener(t)
	h := testScanHandler(1)

	body, _ := json.Marshal(ScanRequest{
		Host:  "127.0.0.1",
		Ports: fmt.Sprintf("%d", port),
	})
	rec := httptest.NewRecorder()
	h.Scan(rec, httptest.NewRequest(http.MethodPost, "/scan", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.OpenPorts)
	assert.Contains(t, resp.Snapshot.Ports, port)
}

func TestScanProfilePorts(t *testing.T) {
	h := testScanHandler(1)

	body, _ := json.Marshal(ScanRequest{Host: "127.0.0.1", Profile: "web"})
	rec := httptest.NewRecorder()
	h.Scan(rec, httptest.NewRequest(http.MethodPost, "/scan", bytes.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScanValidation(t *testing.T) {
	h := testScanHandler(1)

	cases := []struct {
		name string
		body string
	}{
		{"missing host", `{}`},
		{"invalid host", `{"host": "no spaces allowed"}`},
		{"bad port spec", `{"host": "127.0.0.1", "ports": "80-22"}`},
		{"unknown profile", `{"host": "127.0.0.1", "profile": "nope"}`},
		{"ports and profile", `{"host": "127.0.0.1", "ports": "80", "profile": "web"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Scan(rec, httptest.NewRequest(
				http.MethodPost, "/scan", bytes.NewReader([]byte(tc.body))))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
