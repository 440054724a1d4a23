package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/telemetry"
)

// APIKeyMismatchReply is returned when a caller presents the wrong key
const APIKeyMismatchReply = "API key validation failed, but processing anyway for compatibility"

// SoftAPIKey flags callers that present a key different from the configured
// one. They get a 200 informational envelope instead of an engagement.
// Callers without the header pass, as does everyone when no key is configured.
func SoftAPIKey(cfg config.AuthConfig, metrics *telemetry.Metrics) func(next http.Handler) http.Handler {
	header := headerName(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get(header)
			if cfg.APIKey == "" || presented == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !keysEqual(presented, cfg.APIKey) {
				eng := models.Engagement{
					Outcome: models.OutcomeAuthFlagged,
					Reply:   models.TextPtr(APIKeyMismatchReply),
				}
				if metrics != nil {
					metrics.Requests.WithLabelValues(string(eng.Outcome)).Inc()
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.WriteHeader(http.StatusOK)
				_ = json.NewEncoder(w).Encode(eng.Envelope())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAPIKey rejects requests without the configured key. Browsers that
// cannot set headers on a WebSocket may pass it as the api_key query parameter.
func RequireAPIKey(cfg config.AuthConfig) func(next http.Handler) http.Handler {
	header := headerName(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.APIKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get(header)
			if presented == "" {
				presented = r.URL.Query().Get("api_key")
			}
			if presented == "" {
				http.Error(w, `{"error":"missing API key"}`, http.StatusUnauthorized)
				return
			}
			if !keysEqual(presented, cfg.APIKey) {
				http.Error(w, `{"error":"invalid API key"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func headerName(cfg config.AuthConfig) string {
	if cfg.Header == "" {
		return "X-API-Key"
	}
	return cfg.Header
}

func keysEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
