// Package cli provides CLI authentication helpers for making API calls.
// This file implements HTTP client functionality with API key authentication
// for CLI commands that talk to a running portwarden daemon.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mfolkes/portwarden/internal/config"
)

// APIClient provides authenticated HTTP client functionality for CLI
// commands.
type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	userAgent  string
}

// apiErrorBody matches the error payload the API server returns.
type apiErrorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// APIError represents an API error response.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("API error (status %d, request %s): %s", e.StatusCode, e.RequestID, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// NewAPIClient creates a new API client pointed at the configured daemon.
func NewAPIClient() (*APIClient, error) {
	cfg, err := config.Load(getConfigFilePath())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	scheme := "http"
	if cfg.API.TLS.Enabled {
		scheme = "https"
	}
	baseURL := fmt.Sprintf("%s://%s/api/v1", scheme, cfg.GetAPIAddress())

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:    10,
			IdleConnTimeout: 30 * time.Second,
		},
	}

	return &APIClient{
		baseURL:    baseURL,
		apiKey:     getAPIKeyFromSources(cfg),
		httpClient: httpClient,
		userAgent:  "portwarden-cli/1.0",
	}, nil
}

// getAPIKeyFromSources retrieves the API key from the environment, a key
// file, or the configuration, in that order. Empty means the daemon runs
// without authentication.
func getAPIKeyFromSources(cfg *config.Config) string {
	if key := os.Getenv("PORTWARDEN_API_KEY"); key != "" {
		return key
	}

	if keyFile := os.Getenv("PORTWARDEN_API_KEY_FILE"); keyFile != "" {
		if !strings.Contains(keyFile, "..") {
			// #nosec G304 - operator-provided key file path
			if keyData, err := os.ReadFile(keyFile); err == nil {
				return strings.TrimSpace(string(keyData))
			}
		}
	}

	return cfg.API.APIKey
}

// Get performs a GET request and decodes the response into out.
func (c *APIClient) Get(endpoint string, out interface{}) error {
	return c.request(http.MethodGet, endpoint, nil, out)
}

// Post performs a POST request with a JSON payload, decoding into out.
func (c *APIClient) Post(endpoint string, payload, out interface{}) error {
	return c.request(http.MethodPost, endpoint, payload, out)
}

// Delete performs a DELETE request.
func (c *APIClient) Delete(endpoint string) error {
	return c.request(http.MethodDelete, endpoint, nil, nil)
}

// request performs the HTTP request with authentication headers and maps
// non-2xx responses to APIError.
func (c *APIClient) request(method, endpoint string, payload, out interface{}) error {
	url := c.baseURL + endpoint

	var requestBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		requestBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, requestBody)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var errBody apiErrorBody
		message := strings.TrimSpace(string(bodyBytes))
		requestID := ""
		if json.Unmarshal(bodyBytes, &errBody) == nil && errBody.Error != "" {
			message = errBody.Error
			if errBody.Message != "" {
				message = fmt.Sprintf("%s: %s", errBody.Error, errBody.Message)
			}
			requestID = errBody.RequestID
		}
		if message == "" {
			message = fmt.Sprintf("HTTP %d error", resp.StatusCode)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    message,
			RequestID:  requestID,
		}
	}

	if out != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// mustCreateAPIClient creates an API client or exits with error.
func mustCreateAPIClient() *APIClient {
	client, err := NewAPIClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return client
}

// handleAPIError provides user-friendly error handling for API errors.
func handleAPIError(err error, operation string) {
	apiErr, ok := err.(*APIError)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: %s failed: %v\n", operation, err)
		fmt.Fprintf(os.Stderr, "Is the portwarden daemon running? Start it with 'portwarden daemon start'.\n")
		return
	}

	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		fmt.Fprintf(os.Stderr, "Error: Authentication failed for %s\n", operation)
		fmt.Fprintf(os.Stderr, "Set PORTWARDEN_API_KEY or create a key with 'portwarden apikeys generate'.\n")
	case http.StatusNotFound:
		fmt.Fprintf(os.Stderr, "Error: %s: %s\n", operation, apiErr.Message)
	case http.StatusConflict:
		fmt.Fprintf(os.Stderr, "Error: %s: %s\n", operation, apiErr.Message)
	case http.StatusTooManyRequests:
		fmt.Fprintf(os.Stderr, "Error: Rate limit exceeded for %s, try again shortly\n", operation)
	default:
		fmt.Fprintf(os.Stderr, "Error: %s failed: %s\n", operation, apiErr.Message)
		if apiErr.RequestID != "" {
			fmt.Fprintf(os.Stderr, "Request ID: %s\n", apiErr.RequestID)
		}
	}
}
