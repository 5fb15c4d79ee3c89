package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestRateLimiterAllow(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("10.0.0.1"), "request %d should be allowed", i)
	}
	assert.False(t, limiter.Allow("10.0.0.1"))

	// A different client has its own window.
	assert.True(t, limiter.Allow("10.0.0.2"))
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	limiter := NewRateLimiter(1, 50*time.Millisecond)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))

	time.Sleep(80 * time.Millisecond)
	assert.True(t, limiter.Allow("10.0.0.1"))
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := NewRateLimiter(1, 10*time.Millisecond)
	limiter.Allow("10.0.0.1")

	time.Sleep(50 * time.Millisecond)
	limiter.Cleanup()

	limiter.mutex.RLock()
	defer limiter.mutex.RUnlock()
	assert.Empty(t, limiter.requests)
}

func TestLoggingSetsRequestID(t *testing.T) {
	var captured string
	handler := Logging(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	assert.True(t, strings.HasPrefix(captured, "req_"))
	assert.Equal(t, captured, rec.Header().Get("X-Request-ID"))
}

func TestRecoveryCatchesPanic(t *testing.T) {
	handler := Recovery(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}

func TestAuthenticationMissingKey(t *testing.T) {
	handler := Authentication(StaticKeyValidator("secret"), testLogger())(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/targets", http.NoBody))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authentication required")
}

func TestAuthenticationInvalidKey(t *testing.T) {
	handler := Authentication(StaticKeyValidator("secret"), testLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/targets", http.NoBody)
	req.Header.Set("X-API-Key", "wrong")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticationValidKeyHeader(t *testing.T) {
	handler := Authentication(StaticKeyValidator("secret"), testLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/targets", http.NoBody)
	req.Header.Set("X-API-Key", "secret")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticationBearerToken(t *testing.T) {
	handler := Authentication(StaticKeyValidator("secret"), testLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/targets", http.NoBody)
	req.Header.Set("Authorization", "Bearer secret")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticationPublicPaths(t *testing.T) {
	handler := Authentication(StaticKeyValidator("secret"), testLogger())(okHandler())

	for _, path := range []string{
		"/api/v1/health",
		"/api/v1/liveness",
		"/api/v1/version",
		"/api/v1/metrics",
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		assert.Equal(t, http.StatusOK, rec.Code, "path %s should be public", path)
	}
}

func TestAuthenticationCustomValidator(t *testing.T) {
	validate := func(_ context.Context, apiKey string) bool {
		return strings.HasPrefix(apiKey, "pw_")
	}
	handler := Authentication(validate, testLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/targets", http.NoBody)
	req.Header.Set("X-API-Key", "pw_abc123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimit(2, time.Minute, testLogger())(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
}

func TestContentTypeRejectsNonJSON(t *testing.T) {
	handler := ContentType()(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("data"))
	req.Header.Set("Content-Type", "text/plain")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestContentTypeAllowsJSON(t *testing.T) {
	handler := ContentType()(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestContentTypeIgnoresGET(t *testing.T) {
	handler := ContentType()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Content-Type", "text/plain")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRequestTimeoutSetsDeadline(t *testing.T) {
	var hasDeadline bool
	handler := RequestTimeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	assert.True(t, hasDeadline)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *http.Request)
		expected string
	}{
		{
			name: "x-forwarded-for single",
			setup: func(r *http.Request) {
				r.Header.Set("X-Forwarded-For", "203.0.113.7")
			},
			expected: "203.0.113.7",
		},
		{
			name: "x-forwarded-for chain takes first",
			setup: func(r *http.Request) {
				r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
			},
			expected: "203.0.113.7",
		},
		{
			name: "x-real-ip",
			setup: func(r *http.Request) {
				r.Header.Set("X-Real-IP", "198.51.100.4")
			},
			expected: "198.51.100.4",
		},
		{
			name:     "remote addr fallback",
			setup:    func(r *http.Request) { r.RemoteAddr = "192.0.2.9:5432" },
			expected: "192.0.2.9",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			tt.setup(req)
			assert.Equal(t, tt.expected, getClientIP(req))
		})
	}
}

func TestResponseWriterCapturesStatusAndSize(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusTeapot)
	n, err := rw.Write([]byte("short and stout"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusTeapot, rw.statusCode)
	assert.Equal(t, n, rw.size)
}
