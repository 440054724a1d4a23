package handlers

import (
	"encoding/json"
	"net/http"

	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/services"
	"honeypot-lab/pkg/logger"
)

// Handlers holds all API handlers
type Handlers struct {
	Health   *HealthHandler
	Honeypot *HoneypotHandler
	Sessions *SessionsHandler
}

// Dependencies holds dependencies for handlers
type Dependencies struct {
	Config   config.Config
	Honeypot *services.Honeypot
	Checks   map[string]Pinger
	Logger   *logger.Logger

	// Optional transcript and report backends; leave nil when not configured
	Archive TranscriptArchive
	Files   TranscriptFiles
	Reports ReportLookup
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(deps.Config.App, deps.Honeypot.Store(), deps.Checks, deps.Logger),
		Honeypot: NewHoneypotHandler(deps.Honeypot, deps.Logger),
		Sessions: NewSessionsHandler(deps.Honeypot.Store(), deps.Archive, deps.Files, deps.Reports, deps.Logger),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
