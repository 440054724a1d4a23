package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/telemetry"
	"honeypot-lab/pkg/logger"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestSoftAPIKey(t *testing.T) {
	cfg := config.AuthConfig{APIKey: "secret", Header: "X-API-Key"}

	tests := []struct {
		name       string
		method     string
		key        string
		wantCalled bool
	}{
		{"no header passes", http.MethodPost, "", true},
		{"matching key passes", http.MethodPost, "secret", true},
		{"wrong key is flagged", http.MethodPost, "nope", false},
		{"get is never checked", http.MethodGet, "nope", true},
		{"options is never checked", http.MethodOptions, "nope", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := telemetry.NewMetrics()
			called := false
			h := SoftAPIKey(cfg, metrics)(okHandler(&called))

			r := httptest.NewRequest(tt.method, "/", nil)
			if tt.key != "" {
				r.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, tt.wantCalled, called)
			assert.Equal(t, http.StatusOK, w.Code)
			if !tt.wantCalled {
				var env models.Envelope
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
				assert.Equal(t, models.StatusSuccess, env.Status)
				require.NotNil(t, env.Reply)
				assert.Equal(t, APIKeyMismatchReply, *env.Reply)
				assert.InDelta(t, 1, testutil.ToFloat64(metrics.Requests.WithLabelValues(string(models.OutcomeAuthFlagged))), 0)
			}
		})
	}
}

func TestSoftAPIKey_NoKeyConfigured(t *testing.T) {
	called := false
	h := SoftAPIKey(config.AuthConfig{}, nil)(okHandler(&called))

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-API-Key", "anything")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.True(t, called)
}

func TestRequireAPIKey(t *testing.T) {
	cfg := config.AuthConfig{APIKey: "secret"}

	tests := []struct {
		name     string
		url      string
		header   string
		wantCode int
	}{
		{"missing", "/ws", "", http.StatusUnauthorized},
		{"wrong header", "/ws", "nope", http.StatusUnauthorized},
		{"header", "/ws", "secret", http.StatusOK},
		{"query parameter", "/ws?api_key=secret", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := RequireAPIKey(cfg)(okHandler(&called))

			r := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				r.Header.Set("X-API-Key", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantCode == http.StatusOK, called)
		})
	}
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "error", Format: "json", Output: &buf})

	h := Recover(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("classifier blew up")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var env models.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, models.StatusError, env.Status)
	assert.Nil(t, env.Reply)
	assert.Contains(t, buf.String(), "handler panicked")
}

func TestRecover_AbortHandlerPropagates(t *testing.T) {
	h := Recover(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	})
}

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 127.0.0.1 ", "", "::1"})
	require.NoError(t, err)
	require.Len(t, prefixes, 3)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "127.0.0.1/32", prefixes[1].String())
	assert.Equal(t, "::1/128", prefixes[2].String())

	_, err = ParseTrustedProxies([]string{"lb.internal"})
	assert.Error(t, err)
}

func TestTrustedRealIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		trusted bool
		remote  string
		header  string
		want    string
	}{
		{"untrusted peer keeps its address", true, "203.0.113.9:4000", "1.2.3.4", "203.0.113.9:4000"},
		{"trusted proxy forwards the client", true, "10.1.2.3:4000", "1.2.3.4", "1.2.3.4"},
		{"trusted proxy without header", true, "10.1.2.3:4000", "", "10.1.2.3:4000"},
		{"no proxies configured ignores headers", false, "10.1.2.3:4000", "1.2.3.4", "10.1.2.3:4000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefixes := trusted
			if !tt.trusted {
				prefixes = nil
			}
			var got string
			h := TrustedRealIP(prefixes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.header != "" {
				r.Header.Set("X-Real-IP", tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), r)
			assert.Equal(t, tt.want, got)
		})
	}
}
