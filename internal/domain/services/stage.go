package services

import (
	"strings"

	"honeypot-lab/internal/domain/models"
)

var (
	paymentWords = []string{"pay", "payment", "transfer", "send", "money"}
	urgencyWords = []string{"urgent", "immediate", "now", "quickly", "today"}
)

// ConversationSignals are the content cues the stage selector and templates react to.
// Token slices keep order of appearance so the most recent one is last.
type ConversationSignals struct {
	BankAccounts    []string
	UPIIDs          []string
	Amounts         []string
	MentionsPayment bool
	MentionsUrgency bool
}

// AnalyzeConversation computes signals over the prior scammer texts plus the current one
func AnalyzeConversation(previous []string, current string) ConversationSignals {
	all := strings.Join(append(append([]string{}, previous...), current), " ")
	lower := strings.ToLower(all)
	return ConversationSignals{
		BankAccounts:    FindBankAccounts(all),
		UPIIDs:          FindUPIIDs(all),
		Amounts:         FindAmounts(all),
		MentionsPayment: containsAny(lower, paymentWords),
		MentionsUrgency: containsAny(lower, urgencyWords),
	}
}

// HasPaymentToken reports whether a bank account or UPI id appeared anywhere
func (s ConversationSignals) HasPaymentToken() bool {
	return len(s.BankAccounts) > 0 || len(s.UPIIDs) > 0
}

// LatestBankAccount returns the most recently mentioned account number
func (s ConversationSignals) LatestBankAccount() string {
	return last(s.BankAccounts)
}

// LatestUPIID returns the most recently mentioned UPI id
func (s ConversationSignals) LatestUPIID() string {
	return last(s.UPIIDs)
}

// FirstAmount returns the first amount the scammer asked for
func (s ConversationSignals) FirstAmount() string {
	if len(s.Amounts) == 0 {
		return ""
	}
	return s.Amounts[0]
}

// SelectStage picks the conversation stage from the number of stored
// messages and the content signals. It is a pure function.
func SelectStage(messageCount int, signals ConversationSignals) models.Stage {
	switch {
	case messageCount <= 2:
		return models.StageInitialConcern
	case messageCount <= 6:
		if signals.MentionsPayment {
			return models.StagePaymentDiscussion
		}
		return models.StageSeekingClarification
	case messageCount <= 12:
		if signals.HasPaymentToken() {
			return models.StageConfirmingDetails
		}
		return models.StageExtractingInformation
	default:
		return models.StagePreparingExit
	}
}

func last(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}
