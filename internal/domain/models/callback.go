package models

import (
	"time"

	"github.com/google/uuid"
)

// CallbackPayload is the body posted to the result-collection endpoint.
// Field names are fixed by the receiving service.
type CallbackPayload struct {
	SessionID              string                `json:"sessionId"`
	ScamDetected           bool                  `json:"scamDetected"`
	TotalMessagesExchanged int                   `json:"totalMessagesExchanged"`
	ExtractedIntelligence  ExtractedIntelligence `json:"extractedIntelligence"`
	AgentNotes             string                `json:"agentNotes"`
}

// IntelligenceReport is a callback payload plus delivery bookkeeping
type IntelligenceReport struct {
	ID             uuid.UUID       `json:"id"`
	Payload        CallbackPayload `json:"payload"`
	Final          bool            `json:"final"`
	Delivered      bool            `json:"delivered"`
	ReportedAt     time.Time       `json:"reported_at"`
	ClientAddr     string          `json:"client_addr,omitempty"`
	ScamConfidence float64         `json:"scam_confidence"`
}
