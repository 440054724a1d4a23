package models

// Stage is the persona's conversational posture for one reply
type Stage string

const (
	StageInitialConcern        Stage = "initial_concern"
	StageSeekingClarification  Stage = "seeking_clarification"
	StagePaymentDiscussion     Stage = "payment_discussion"
	StageConfirmingDetails     Stage = "confirming_details"
	StageExtractingInformation Stage = "extracting_information"
	StagePreparingExit         Stage = "preparing_exit"
)

// AllStages lists every stage in conversational order
var AllStages = []Stage{
	StageInitialConcern,
	StageSeekingClarification,
	StagePaymentDiscussion,
	StageConfirmingDetails,
	StageExtractingInformation,
	StagePreparingExit,
}

// DefaultSessionID is the placeholder callers send when they have no session id
const DefaultSessionID = "default-session"

// EngagementRequest is one inbound message after permissive parsing
type EngagementRequest struct {
	ClientAddr          string
	SessionID           string
	Text                string
	ConversationHistory []HistoryEntry
	Metadata            map[string]any
}

// Outcome classifies how a request was handled
type Outcome string

const (
	OutcomeReplied     Outcome = "replied"
	OutcomeIgnored     Outcome = "ignored"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeEnded       Outcome = "ended"
	OutcomeAuthFlagged Outcome = "auth_flagged"
	OutcomeError       Outcome = "error"
)

// Engagement is the full result of handling one message
type Engagement struct {
	Outcome        Outcome
	SessionID      string
	Stage          Stage
	Reply          *string
	Classification Classification
	Intelligence   ExtractedIntelligence
	TotalMessages  int
	CallbackSent   bool
}

// Reply envelope statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the JSON body returned for every non-GET request
type Envelope struct {
	Status            string  `json:"status"`
	Reply             *string `json:"reply"`
	RateLimited       bool    `json:"rate_limited,omitempty"`
	DuplicateDetected bool    `json:"duplicate_detected,omitempty"`
	ConversationEnded bool    `json:"conversation_ended,omitempty"`
	Reason            string  `json:"reason,omitempty"`
}

// Envelope converts the engagement into the caller-visible reply
func (e *Engagement) Envelope() Envelope {
	env := Envelope{Status: StatusSuccess, Reply: e.Reply}
	switch e.Outcome {
	case OutcomeRateLimited:
		env.RateLimited = true
	case OutcomeDuplicate:
		env.DuplicateDetected = true
	case OutcomeEnded:
		env.ConversationEnded = true
		env.Reason = "Maximum conversation turns reached"
	case OutcomeError:
		env.Status = StatusError
		env.Reply = nil
	}
	return env
}

// TextPtr returns a pointer to s, for building replies
func TextPtr(s string) *string {
	return &s
}
