package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services"
	"honeypot-lab/pkg/logger"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// TranscriptArchive is the durable transcript store (Postgres)
type TranscriptArchive interface {
	GetBySessionID(ctx context.Context, sessionID string) (*models.Transcript, error)
	ListRecent(ctx context.Context, limit int) ([]*models.Transcript, error)
}

// TranscriptFiles reads the per-day JSON transcript files
type TranscriptFiles interface {
	Load(sessionID string, day time.Time) (*models.Transcript, error)
}

// ReportLookup returns the last intelligence report sent for a session
type ReportLookup interface {
	LastCallback(ctx context.Context, sessionID string, dest any) error
}

// SessionsHandler serves the analyst view of captured conversations.
// Every backend but the session store is optional.
type SessionsHandler struct {
	store   *services.SessionStore
	archive TranscriptArchive
	files   TranscriptFiles
	reports ReportLookup
	logger  *logger.Logger
}

// NewSessionsHandler creates a new SessionsHandler
func NewSessionsHandler(store *services.SessionStore, archive TranscriptArchive, files TranscriptFiles, reports ReportLookup, log *logger.Logger) *SessionsHandler {
	return &SessionsHandler{
		store:   store,
		archive: archive,
		files:   files,
		reports: reports,
		logger:  log.WithComponent("sessions"),
	}
}

// SessionListResponse is served on GET /sessions
type SessionListResponse struct {
	Stats  models.SessionStats  `json:"stats"`
	Recent []*models.Transcript `json:"recent"`
}

// SessionResponse is served on GET /sessions/{sessionID}
type SessionResponse struct {
	Source     string                     `json:"source"`
	Transcript *models.Transcript         `json:"transcript"`
	LastReport *models.IntelligenceReport `json:"last_report,omitempty"`
}

// List returns in-memory counters and the most recently archived transcripts
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRecentLimit)
	}

	resp := SessionListResponse{
		Stats:  h.store.Stats(),
		Recent: []*models.Transcript{},
	}
	if h.archive != nil {
		recent, err := h.archive.ListRecent(r.Context(), limit)
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to list archived transcripts")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "archive unavailable"})
			return
		}
		if recent != nil {
			resp.Recent = recent
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get looks a session up in memory, then the archive, then the transcript
// files for ?day=YYYY-MM-DD (today in UTC by default).
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	day := time.Now().UTC()
	if raw := r.URL.Query().Get("day"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "day must be YYYY-MM-DD"})
			return
		}
		day = d
	}

	source, t := h.lookup(r.Context(), id, day)
	if t == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}

	resp := SessionResponse{Source: source, Transcript: t}
	if h.reports != nil {
		var report models.IntelligenceReport
		if err := h.reports.LastCallback(r.Context(), id, &report); err == nil {
			resp.LastReport = &report
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SessionsHandler) lookup(ctx context.Context, id string, day time.Time) (string, *models.Transcript) {
	if t, err := h.store.Get(id); err == nil {
		return "memory", t
	}
	log := h.logger.WithSession(id)
	if h.archive != nil {
		t, err := h.archive.GetBySessionID(ctx, id)
		if err == nil {
			return "postgres", t
		}
		log.Debug().Err(err).Msg("not in archive")
	}
	if h.files != nil {
		t, err := h.files.Load(id, day)
		if err == nil {
			return "file", t
		}
		log.Debug().Err(err).Msg("no transcript file")
	}
	return "", nil
}
