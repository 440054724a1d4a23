package handlers

import (
	"context"
	"net/http"
	"time"

	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services"
	"honeypot-lab/pkg/logger"
)

// Pinger is a dependency readiness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler handles health check endpoints
type HealthHandler struct {
	app       config.AppConfig
	store     *services.SessionStore
	checks    map[string]Pinger
	logger    *logger.Logger
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(app config.AppConfig, store *services.SessionStore, checks map[string]Pinger, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		app:       app,
		store:     store,
		checks:    checks,
		logger:    log.WithComponent("health"),
		startTime: time.Now(),
	}
}

// RootResponse is served on GET /
type RootResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Message string `json:"message"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string               `json:"status"`
	Service   string               `json:"service"`
	Version   string               `json:"version"`
	Uptime    string               `json:"uptime"`
	Timestamp string               `json:"timestamp"`
	Endpoints []string             `json:"endpoints,omitempty"`
	Features  []string             `json:"features,omitempty"`
	Sessions  *models.SessionStats `json:"sessions,omitempty"`
	Checks    map[string]string    `json:"checks,omitempty"`
}

// Root handles GET /
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Status:  "healthy",
		Service: h.app.Name,
		Version: h.app.Version,
		Message: "System operational and ready for evaluation",
	})
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Service:   h.app.Name,
		Version:   h.app.Version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Endpoints: []string{"/honeypot", "/health", "/ready", "/metrics"},
		Features:  []string{"scam_detection", "agent_conversation", "intelligence_extraction"},
	})
}

// Ready handles GET /ready - checks all dependencies
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checks))
	status := http.StatusOK
	overallStatus := "ready"

	for name, dep := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := dep.Ping(ctx)
		cancel()
		if err != nil {
			h.logger.Warn().Err(err).Str("dependency", name).Msg("readiness check failed")
			checks[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			overallStatus = "not ready"
			continue
		}
		checks[name] = "healthy"
	}

	stats := h.store.Stats()
	writeJSON(w, status, HealthResponse{
		Status:    overallStatus,
		Service:   h.app.Name,
		Version:   h.app.Version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Sessions:  &stats,
		Checks:    checks,
	})
}
