package streaming

import (
	"time"

	"github.com/google/uuid"

	"honeypot-lab/internal/domain/models"
)

// EventType represents the type of intelligence event
type EventType string

const (
	EventTypeIntelligenceReported EventType = "intelligence.reported"
	EventTypeSessionEnded         EventType = "session.ended"
)

// IntelligenceEvent is published for every intelligence report, delivered or not
type IntelligenceEvent struct {
	ID             uuid.UUID                    `json:"id"`
	Type           EventType                    `json:"type"`
	ReportID       uuid.UUID                    `json:"report_id"`
	SessionID      string                       `json:"session_id"`
	ClientAddr     string                       `json:"client_addr,omitempty"`
	Final          bool                         `json:"final"`
	Delivered      bool                         `json:"delivered"`
	ScamConfidence float64                      `json:"scam_confidence"`
	TotalMessages  int                          `json:"total_messages"`
	Intelligence   models.ExtractedIntelligence `json:"intelligence"`
	AgentNotes     string                       `json:"agent_notes"`
	Timestamp      time.Time                    `json:"timestamp"`
}

// NewIntelligenceEvent creates an event from a report
func NewIntelligenceEvent(report *models.IntelligenceReport) *IntelligenceEvent {
	eventType := EventTypeIntelligenceReported
	if report.Final {
		eventType = EventTypeSessionEnded
	}

	return &IntelligenceEvent{
		ID:             uuid.New(),
		Type:           eventType,
		ReportID:       report.ID,
		SessionID:      report.Payload.SessionID,
		ClientAddr:     report.ClientAddr,
		Final:          report.Final,
		Delivered:      report.Delivered,
		ScamConfidence: report.ScamConfidence,
		TotalMessages:  report.Payload.TotalMessagesExchanged,
		Intelligence:   report.Payload.ExtractedIntelligence,
		AgentNotes:     report.Payload.AgentNotes,
		Timestamp:      time.Now().UTC(),
	}
}

// Subscription represents a client's subscription preferences
type Subscription struct {
	// Only events for this session (empty = all)
	SessionID string `json:"session_id,omitempty"`

	MinConfidence float64 `json:"min_confidence,omitempty"`

	// Only reports sent when a conversation hit its turn ceiling
	FinalOnly bool `json:"final_only,omitempty"`

	// Only reports the collection endpoint accepted
	DeliveredOnly bool `json:"delivered_only,omitempty"`

	// Only reports that carry a bank account or UPI id
	PaymentOnly bool `json:"payment_only,omitempty"`
}

// Matches checks if an event matches the subscription filters
func (s *Subscription) Matches(event *IntelligenceEvent) bool {
	if s == nil {
		return true
	}
	if s.SessionID != "" && s.SessionID != event.SessionID {
		return false
	}
	if event.ScamConfidence < s.MinConfidence {
		return false
	}
	if s.FinalOnly && !event.Final {
		return false
	}
	if s.DeliveredOnly && !event.Delivered {
		return false
	}
	if s.PaymentOnly && !event.Intelligence.HasPaymentIdentifiers() {
		return false
	}
	return true
}
