package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services"
	"honeypot-lab/pkg/logger"
)

const (
	maxBodyBytes = 1 << 20
	noMessage    = "No message"
	statusOnline = "Agentic Honeypot API Online"

	unknownSender = "unknown"
)

// fallback fields consulted when message is neither an object nor a string
var messageFallbackFields = []string{"message", "text", "content", "msg", "data"}

// HoneypotHandler serves the catch-all engagement endpoint
type HoneypotHandler struct {
	honeypot *services.Honeypot
	logger   *logger.Logger
}

// NewHoneypotHandler creates a new honeypot handler
func NewHoneypotHandler(hp *services.Honeypot, log *logger.Logger) *HoneypotHandler {
	return &HoneypotHandler{
		honeypot: hp,
		logger:   log.WithComponent("honeypot-handler"),
	}
}

// StatusResponse is returned for GET requests on any path
type StatusResponse struct {
	Message string `json:"message"`
	Path    string `json:"path"`
	Method  string `json:"method"`
}

// Handle answers any method on any path. It always responds 200.
func (h *HoneypotHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		writeJSON(w, http.StatusOK, struct{}{})

	case http.MethodGet, http.MethodHead:
		writeJSON(w, http.StatusOK, StatusResponse{
			Message: statusOnline,
			Path:    r.URL.Path,
			Method:  http.MethodGet,
		})

	default:
		h.engage(w, r)
	}
}

func (h *HoneypotHandler) engage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to read request body")
		eng := models.Engagement{Outcome: models.OutcomeError}
		writeJSON(w, http.StatusOK, eng.Envelope())
		return
	}

	req := ParseEngagementRequest(body)
	req.ClientAddr = ClientAddr(r)

	eng := h.honeypot.Engage(r.Context(), req)
	writeJSON(w, http.StatusOK, eng.Envelope())
}

// ClientAddr returns the caller's host without port. chi's RealIP has
// replaced RemoteAddr with the forwarded address only for trusted proxies.
func ClientAddr(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		return services.UnknownClientAddr
	}
	return addr
}

// ParseEngagementRequest accepts any body. JSON objects are read field by
// field; anything else becomes the message text verbatim.
func ParseEngagementRequest(body []byte) models.EngagementRequest {
	raw := strings.ToValidUTF8(string(body), "")
	req := models.EngagementRequest{SessionID: models.DefaultSessionID}

	data := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if !decodeObject(body, &data) {
			data = map[string]any{"message": raw}
		}
	}

	if id, ok := data["sessionId"].(string); ok && id != "" {
		req.SessionID = id
	}
	if meta, ok := data["metadata"].(map[string]any); ok {
		req.Metadata = meta
	}
	req.ConversationHistory = parseHistory(data["conversationHistory"])
	req.Text = messageText(data, raw)
	return req
}

// decodeObject succeeds only when body is exactly one JSON object,
// optionally surrounded by whitespace
func decodeObject(body []byte, dst *map[string]any) bool {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil || *dst == nil {
		return false
	}
	if _, err := dec.Token(); err != io.EOF {
		return false
	}
	return true
}

func messageText(data map[string]any, raw string) string {
	var text string
	switch m := data["message"].(type) {
	case map[string]any:
		text = scalarText(m["text"])
	case string:
		text = m
	default:
		for _, field := range messageFallbackFields {
			if text = scalarText(data[field]); text != "" {
				break
			}
		}
	}

	switch {
	case text != "":
		return text
	case raw != "":
		return raw
	}
	return noMessage
}

func parseHistory(v any) []models.HistoryEntry {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	entries := make([]models.HistoryEntry, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entry := models.HistoryEntry{
			Text:   scalarText(m["text"]),
			Sender: unknownSender,
		}
		// only an absent sender gets the default; null or "" drops the entry
		if sender, ok := m["sender"]; ok {
			entry.Sender = scalarText(sender)
		}
		switch ts := m["timestamp"].(type) {
		case json.Number:
			if n, err := ts.Int64(); err == nil {
				entry.Timestamp = n
			} else if f, err := ts.Float64(); err == nil {
				entry.Timestamp = f
			}
		case string:
			entry.Timestamp = ts
		}
		entries = append(entries, entry)
	}
	return entries
}

// scalarText renders strings, numbers and booleans; objects, arrays and null give ""
func scalarText(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case bool:
		return fmt.Sprint(s)
	}
	return ""
}
