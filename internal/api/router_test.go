package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/api/handlers"
	apimiddleware "honeypot-lab/internal/api/middleware"
	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/services"
	"honeypot-lab/internal/streaming"
	"honeypot-lab/internal/telemetry"
	"honeypot-lab/pkg/logger"
)

const testAPIKey = "secret-key"

func testConfig() config.Config {
	return config.Config{
		App:  config.AppConfig{Name: "scam-honeypot", Version: "1.0.0"},
		Auth: config.AuthConfig{APIKey: testAPIKey, Header: "X-API-Key"},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		},
		Session: config.SessionConfig{MaxTurns: 15, CallbackThreshold: 6, DuplicateWindow: 3},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func newTestServer(t *testing.T, checks map[string]handlers.Pinger) *httptest.Server {
	t.Helper()
	return newConfiguredServer(t, testConfig(), nil, checks)
}

func newConfiguredServer(t *testing.T, cfg config.Config, limiter services.RateLimiter, checks map[string]handlers.Pinger) *httptest.Server {
	t.Helper()
	log := logger.Nop()
	metrics := telemetry.NewMetrics()

	store := services.NewSessionStore(nil, metrics, log)
	hp := services.NewHoneypot(cfg.Session, services.HoneypotDeps{
		Store:   store,
		Limiter: limiter,
		Metrics: metrics,
		Logger:  log,
	})
	h := handlers.NewHandlers(handlers.Dependencies{
		Config:   cfg,
		Honeypot: hp,
		Checks:   checks,
		Logger:   log,
	})
	hub := streaming.NewWebSocketHub(streaming.NewEventBus(nil, log), log)

	srv := httptest.NewServer(NewRouter(cfg, h, metrics, hub, log).Setup())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if method != http.MethodHead {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestRouter_ScamMessageGetsReply(t *testing.T) {
	srv := newTestServer(t, nil)

	body := `{"sessionId":"abc","message":{"sender":"scammer","text":"Your bank account will be blocked today. Verify your identity immediately."}}`
	resp, out := do(t, srv, http.MethodPost, "/honeypot", body, map[string]string{"Content-Type": "application/json"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "success", out["status"])
	reply, ok := out["reply"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, reply)
}

func TestRouter_BenignMessageHasNullReply(t *testing.T) {
	srv := newTestServer(t, nil)

	_, out := do(t, srv, http.MethodPost, "/", `{"message":"Hello, how are you?"}`, nil)
	assert.Equal(t, "success", out["status"])
	assert.Contains(t, out, "reply")
	assert.Nil(t, out["reply"])
}

func TestRouter_AnyPathAnyMethod(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/some/deep/path"},
		{http.MethodPut, "/api/v1/message"},
		{http.MethodPatch, "/x"},
		{http.MethodDelete, "/y"},
		{http.MethodPost, "/health"},
	} {
		resp, out := do(t, srv, tc.method, tc.path, "urgent: send money to claim your prize", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "%s %s", tc.method, tc.path)
		assert.Equal(t, "success", out["status"], "%s %s", tc.method, tc.path)
	}
}

func TestRouter_GetStatus(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, out := do(t, srv, http.MethodGet, "/anything/here", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{
		"message": "Agentic Honeypot API Online",
		"path":    "/anything/here",
		"method":  "GET",
	}, out)

	_, root := do(t, srv, http.MethodGet, "/", "", nil)
	assert.Equal(t, "healthy", root["status"])
	assert.Equal(t, "System operational and ready for evaluation", root["message"])

	_, health := do(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, "healthy", health["status"])
	assert.NotEmpty(t, health["features"])
}

func TestRouter_Preflight(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, out := do(t, srv, http.MethodOptions, "/honeypot", "", map[string]string{
		"Origin":                        "https://evaluator.example",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, out)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRouter_APIKey(t *testing.T) {
	srv := newTestServer(t, nil)
	scam := `{"message":"Your bank account is blocked, verify now"}`

	_, out := do(t, srv, http.MethodPost, "/", scam, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, apimiddleware.APIKeyMismatchReply, out["reply"])

	_, out = do(t, srv, http.MethodPost, "/", scam, map[string]string{"X-API-Key": testAPIKey})
	assert.NotEqual(t, apimiddleware.APIKeyMismatchReply, out["reply"])

	_, out = do(t, srv, http.MethodPost, "/other", scam, nil)
	assert.NotEqual(t, apimiddleware.APIKeyMismatchReply, out["reply"])
}

func TestRouter_Ready(t *testing.T) {
	healthy := newTestServer(t, map[string]handlers.Pinger{
		"redis": handlers.PingFunc(func(context.Context) error { return nil }),
	})
	resp, out := do(t, healthy, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", out["status"])

	failing := newTestServer(t, map[string]handlers.Pinger{
		"redis": handlers.PingFunc(func(context.Context) error { return errors.New("down") }),
	})
	resp, out = do(t, failing, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "not ready", out["status"])
}

func TestRouter_Metrics(t *testing.T) {
	srv := newTestServer(t, nil)
	do(t, srv, http.MethodPost, "/", "hello", nil)

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_WebSocketRequiresKey(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := srv.Client().Get(srv.URL + "/ws/intelligence")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_ForwardingHeadersIgnoredFromUntrustedPeer(t *testing.T) {
	srv := newConfiguredServer(t, testConfig(), services.NewMemoryRateLimiter(time.Minute), nil)

	limited := 0
	for _, ip := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3", "198.51.100.4"} {
		_, out := do(t, srv, http.MethodPost, "/", "hello there", map[string]string{
			"X-Real-IP":       ip,
			"X-Forwarded-For": ip,
		})
		if out["rate_limited"] == true {
			limited++
		}
	}
	assert.Equal(t, 3, limited)
}

func TestRouter_TrustedProxyForwardsClientAddress(t *testing.T) {
	cfg := testConfig()
	cfg.Server.TrustedProxies = []string{"127.0.0.1", "::1"}
	srv := newConfiguredServer(t, cfg, services.NewMemoryRateLimiter(time.Minute), nil)

	for _, ip := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		_, out := do(t, srv, http.MethodPost, "/", "hello there", map[string]string{"X-Real-IP": ip})
		assert.NotEqual(t, true, out["rate_limited"], ip)
	}

	_, out := do(t, srv, http.MethodPost, "/", "hello again", map[string]string{"X-Real-IP": "198.51.100.1"})
	assert.Equal(t, true, out["rate_limited"])
}

func TestRouter_SessionsRequireKey(t *testing.T) {
	srv := newTestServer(t, nil)
	do(t, srv, http.MethodPost, "/", `{"sessionId":"abc","message":"Your account is blocked"}`, nil)

	resp, _ := do(t, srv, http.MethodGet, "/sessions/abc", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	key := map[string]string{"X-API-Key": testAPIKey}
	resp, out := do(t, srv, http.MethodGet, "/sessions/abc", "", key)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "memory", out["source"])

	resp, _ = do(t, srv, http.MethodGet, "/sessions/unknown", "", key)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, out = do(t, srv, http.MethodGet, "/sessions", "", key)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out, "stats")
}

func TestRouter_SessionsUnregisteredWithoutKey(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.APIKey = ""
	srv := newConfiguredServer(t, cfg, nil, nil)

	resp, out := do(t, srv, http.MethodGet, "/sessions/abc", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Agentic Honeypot API Online", out["message"])
}
