package models

import (
	"time"
)

// Role identifies who authored a conversation message
type Role string

const (
	RoleScammer Role = "scammer"
	RoleAgent   Role = "agent"
)

// RoleFromSender normalizes a caller-supplied sender label. Only the exact
// label "scammer" maps to the scammer role.
func RoleFromSender(sender string) Role {
	if sender == string(RoleScammer) {
		return RoleScammer
	}
	return RoleAgent
}

// Message is a single immutable conversation entry
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the unit of conversational continuity
type Session struct {
	ID        string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"last_updated"`
	Version   int64     `json:"version"`
	History   []Message `json:"conversation_history"`
}

// ScammerTexts returns the text of every scammer-authored message in order
func (s *Session) ScammerTexts() []string {
	texts := make([]string, 0, len(s.History))
	for _, m := range s.History {
		if m.Role == RoleScammer {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

// Snapshot copies the session into a transcript safe to hand to other goroutines
func (s *Session) Snapshot() *Transcript {
	history := make([]Message, len(s.History))
	copy(history, s.History)
	return &Transcript{
		SessionID:     s.ID,
		StartedAt:     s.StartedAt,
		LastUpdated:   s.UpdatedAt,
		Version:       s.Version,
		TotalMessages: len(history),
		History:       history,
	}
}

// Transcript is the persisted form of a session
type Transcript struct {
	SessionID     string    `json:"session_id"`
	StartedAt     time.Time `json:"started_at"`
	LastUpdated   time.Time `json:"last_updated"`
	Version       int64     `json:"version"`
	TotalMessages int       `json:"total_messages"`
	History       []Message `json:"conversation_history"`
}

// HistoryEntry is the caller's representation of a prior conversation turn
type HistoryEntry struct {
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp any    `json:"timestamp,omitempty"`
}

// SessionStats summarizes the in-memory session state
type SessionStats struct {
	Sessions        int `json:"sessions"`
	AddressMappings int `json:"address_mappings"`
	Messages        int `json:"messages"`
}
