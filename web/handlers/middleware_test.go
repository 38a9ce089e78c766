package handlers_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"

	"github.com/scrypster/memora/internal/config"
	"github.com/scrypster/memora/web/handlers"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func authConfig(mode, token string) *config.Config {
	return &config.Config{Security: config.SecurityConfig{SecurityMode: mode, APIToken: token}}
}

func serveWithAuth(cfg *config.Config, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	handlers.RequireAuth(okHandler, cfg).ServeHTTP(w, req)
	return w
}

func TestRequireAuth_DevelopmentWithoutTokenIsOpen(t *testing.T) {
	w := serveWithAuth(authConfig("development", ""), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_ConfiguredTokenIsAlwaysRequired(t *testing.T) {
	for _, mode := range []string{"development", "production"} {
		t.Run(mode, func(t *testing.T) {
			cfg := authConfig(mode, "secret-token")

			w := serveWithAuth(cfg, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "UNAUTHORIZED")

			assert.Equal(t, http.StatusUnauthorized, serveWithAuth(cfg, "Bearer wrong").Code)
			assert.Equal(t, http.StatusUnauthorized, serveWithAuth(cfg, "secret-token").Code, "scheme is required")
			assert.Equal(t, http.StatusOK, serveWithAuth(cfg, "Bearer secret-token").Code)
		})
	}
}

func TestRequireAuth_ProductionWithoutTokenRejects(t *testing.T) {
	w := serveWithAuth(authConfig("production", ""), "Bearer anything")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimitMiddleware_PerClientIP(t *testing.T) {
	rl := handlers.NewRateLimiter(0.001, 2)
	h := handlers.RateLimitMiddleware(okHandler, rl)

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1002"), "burst spent; port does not matter")
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000"), "other clients keep their own bucket")
}

func TestRateLimiter_ZeroRateDisablesLimiting(t *testing.T) {
	rl := handlers.NewRateLimiter(0, 1)
	for range 50 {
		assert.True(t, rl.Allow("10.0.0.1"))
	}
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	handlers.SecurityHeaders(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})

	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	w := httptest.NewRecorder()
	handlers.RequestLogger(failing, logger).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/search", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	out := buf.String()
	assert.Contains(t, out, "/api/search")
	assert.Contains(t, out, "503")
	assert.Contains(t, out, "WARN")
}
