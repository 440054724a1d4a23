package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/telemetry"
	"honeypot-lab/pkg/logger"
)

const suspensionScam = "Your bank account will be blocked today. Verify your identity immediately."

type fakeNotifier struct {
	mu      sync.Mutex
	reports []*models.IntelligenceReport
}

func (n *fakeNotifier) Notify(_ context.Context, r *models.IntelligenceReport) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, r)
	return true
}

func (n *fakeNotifier) Reports() []*models.IntelligenceReport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*models.IntelligenceReport(nil), n.reports...)
}

type honeypotFixture struct {
	hp         *Honeypot
	store      *SessionStore
	notifier   *fakeNotifier
	supervisor *Supervisor
	metrics    *telemetry.Metrics
}

func newHoneypotFixture(t *testing.T, cfg config.SessionConfig, limiter RateLimiter) *honeypotFixture {
	t.Helper()
	metrics := telemetry.NewMetrics()
	sup := NewSupervisor(context.Background(), metrics, logger.Nop())
	store := NewSessionStore(sup, metrics, logger.Nop())
	notifier := &fakeNotifier{}

	hp := NewHoneypot(cfg, HoneypotDeps{
		Store:      store,
		Limiter:    limiter,
		Responder:  NewResponseGenerator(fixedPicker(0)),
		Notifier:   notifier,
		Supervisor: sup,
		Metrics:    metrics,
		Logger:     logger.Nop(),
	})
	return &honeypotFixture{hp: hp, store: store, notifier: notifier, supervisor: sup, metrics: metrics}
}

func defaultSessionConfig() config.SessionConfig {
	return config.SessionConfig{MaxTurns: 15, CallbackThreshold: 6, DuplicateWindow: 3}
}

func (f *honeypotFixture) engage(addr, sessionID, text string) *models.Engagement {
	return f.hp.Engage(context.Background(), models.EngagementRequest{
		ClientAddr: addr,
		SessionID:  sessionID,
		Text:       text,
	})
}

func TestHoneypot_FirstScamMessage(t *testing.T) {
	f := newHoneypotFixture(t, defaultSessionConfig(), nil)

	eng := f.engage("10.0.0.1", "abc", suspensionScam)

	assert.Equal(t, models.OutcomeReplied, eng.Outcome)
	assert.Equal(t, "abc", eng.SessionID)
	assert.Equal(t, models.StageInitialConcern, eng.Stage)
	require.NotNil(t, eng.Reply)
	assert.Equal(t, initialConcernReplies[0], *eng.Reply)
	assert.True(t, eng.Classification.IsScam)
	assert.Equal(t, 2, eng.TotalMessages)
	assert.False(t, eng.CallbackSent)

	env := eng.Envelope()
	assert.Equal(t, models.StatusSuccess, env.Status)
	assert.False(t, env.ConversationEnded)

	history := f.store.History("abc")
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleScammer, history[0].Role)
	assert.Equal(t, suspensionScam, history[0].Text)
	assert.Equal(t, models.RoleAgent, history[1].Role)
}

func TestHoneypot_BenignMessageIsStoredWithoutReply(t *testing.T) {
	f := newHoneypotFixture(t, defaultSessionConfig(), nil)

	eng := f.engage("10.0.0.1", "", "Hello, how are you?")

	assert.Equal(t, models.OutcomeIgnored, eng.Outcome)
	assert.Nil(t, eng.Reply)
	assert.Nil(t, eng.Envelope().Reply)
	assert.Equal(t, 1, eng.TotalMessages)
	assert.Equal(t, "ip-session-10-0-0-1", eng.SessionID)
}

func TestHoneypot_DuplicateSuppressed(t *testing.T) {
	f := newHoneypotFixture(t, defaultSessionConfig(), nil)

	f.engage("10.0.0.1", "", suspensionScam)
	eng := f.engage("10.0.0.1", "", suspensionScam)

	assert.Equal(t, models.OutcomeDuplicate, eng.Outcome)
	require.NotNil(t, eng.Reply)
	assert.Equal(t, DuplicateReply, *eng.Reply)
	assert.True(t, eng.Envelope().DuplicateDetected)
	assert.Equal(t, 2, f.store.Len(eng.SessionID))
}

func TestHoneypot_DuplicateWindow(t *testing.T) {
	f := newHoneypotFixture(t, config.SessionConfig{MaxTurns: 50, CallbackThreshold: 100, DuplicateWindow: 2}, nil)

	f.engage("10.0.0.1", "", "urgent bank transfer one")
	f.engage("10.0.0.1", "", "urgent bank transfer two")
	f.engage("10.0.0.1", "", "urgent bank transfer three")

	// "one" has left the window of the last two scammer texts
	eng := f.engage("10.0.0.1", "", "urgent bank transfer one")
	assert.Equal(t, models.OutcomeReplied, eng.Outcome)

	eng = f.engage("10.0.0.1", "", "urgent bank transfer three")
	assert.Equal(t, models.OutcomeDuplicate, eng.Outcome)
}

func TestHoneypot_CallbackAtThreshold(t *testing.T) {
	f := newHoneypotFixture(t, defaultSessionConfig(), nil)

	f.engage("10.0.0.1", "s1", suspensionScam)
	f.engage("10.0.0.1", "s1", "Pay the fee to fraud@ybl urgently")
	eng := f.engage("10.0.0.1", "s1", "Or transfer money to account 123456789012")
	f.supervisor.Wait()

	assert.Equal(t, 6, eng.TotalMessages)
	assert.True(t, eng.CallbackSent)

	reports := f.notifier.Reports()
	require.Len(t, reports, 1)
	r := reports[0]
	assert.False(t, r.Final)
	assert.Equal(t, "10.0.0.1", r.ClientAddr)
	assert.Equal(t, "s1", r.Payload.SessionID)
	assert.True(t, r.Payload.ScamDetected)
	assert.Equal(t, 6, r.Payload.TotalMessagesExchanged)
	assert.Equal(t, []string{"fraud@ybl"}, r.Payload.ExtractedIntelligence.UPIIDs)
	assert.Equal(t, []string{"123456789012"}, r.Payload.ExtractedIntelligence.BankAccounts)
	assert.Contains(t, r.Payload.AgentNotes, "Engaged scammer for 6 messages.")

	// current-message intelligence only
	assert.Empty(t, eng.Intelligence.UPIIDs)
	assert.Equal(t, []string{"123456789012"}, eng.Intelligence.BankAccounts)
}

func TestHoneypot_TurnCeiling(t *testing.T) {
	f := newHoneypotFixture(t, config.SessionConfig{MaxTurns: 4, CallbackThreshold: 100, DuplicateWindow: 3}, nil)

	first := f.engage("10.0.0.1", "s1", suspensionScam)
	assert.Equal(t, models.OutcomeReplied, first.Outcome)

	second := f.engage("10.0.0.1", "s1", "Send money to fraud@ybl now")
	assert.Equal(t, models.OutcomeEnded, second.Outcome)
	require.NotNil(t, second.Reply)
	assert.Equal(t, ClosingReply, *second.Reply)
	assert.True(t, second.CallbackSent)

	env := second.Envelope()
	assert.True(t, env.ConversationEnded)
	assert.Equal(t, "Maximum conversation turns reached", env.Reason)

	third := f.engage("10.0.0.1", "s1", "Hello? Are you there? Pay now")
	assert.Equal(t, models.OutcomeEnded, third.Outcome)
	assert.Equal(t, ClosingReply, *third.Reply)
	assert.False(t, third.CallbackSent)
	assert.Equal(t, 4, f.store.Len("s1"))

	f.supervisor.Wait()
	reports := f.notifier.Reports()
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Final)
	assert.Equal(t, "Conversation ended after 4 turns. Intelligence extracted successfully.", reports[0].Payload.AgentNotes)
}

func TestHoneypot_CeilingWithoutScamSendsNoCallback(t *testing.T) {
	f := newHoneypotFixture(t, config.SessionConfig{MaxTurns: 2, CallbackThreshold: 1, DuplicateWindow: 3}, nil)

	f.engage("10.0.0.1", "", "Hello there")
	eng := f.engage("10.0.0.1", "", "How is the weather?")
	f.supervisor.Wait()

	assert.Equal(t, models.OutcomeEnded, eng.Outcome)
	assert.False(t, eng.CallbackSent)
	assert.Empty(t, f.notifier.Reports())
}

func TestHoneypot_RateLimited(t *testing.T) {
	clock := newFakeClock()
	limiter := NewMemoryRateLimiter(2 * time.Second).WithClock(clock.Now)
	f := newHoneypotFixture(t, defaultSessionConfig(), limiter)

	f.engage("10.0.0.1", "", suspensionScam)
	eng := f.engage("10.0.0.1", "", "Pay the fee now")

	assert.Equal(t, models.OutcomeRateLimited, eng.Outcome)
	require.NotNil(t, eng.Reply)
	assert.Equal(t, RateLimitedReply, *eng.Reply)
	assert.True(t, eng.Envelope().RateLimited)
	assert.Equal(t, 2, f.store.Len("ip-session-10-0-0-1"))

	other := f.engage("10.0.0.2", "", "Pay the fee now")
	assert.NotEqual(t, models.OutcomeRateLimited, other.Outcome)

	clock.Advance(2 * time.Second)
	eng = f.engage("10.0.0.1", "", "Pay the fee now to fraud@ybl")
	assert.Equal(t, models.OutcomeReplied, eng.Outcome)

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Requests.WithLabelValues(string(models.OutcomeRateLimited))), 0)
}

func TestHoneypot_SessionContinuityPerAddress(t *testing.T) {
	f := newHoneypotFixture(t, defaultSessionConfig(), nil)

	first := f.engage("10.0.0.1", "first", suspensionScam)
	second := f.engage("10.0.0.1", "second", "Pay the fee to fraud@ybl")

	assert.Equal(t, "first", first.SessionID)
	assert.Equal(t, "first", second.SessionID)
	assert.Equal(t, 4, second.TotalMessages)
	assert.Zero(t, f.store.Len("second"))
}

func TestHoneypot_CallerHistoryReplacesStoredHistory(t *testing.T) {
	f := newHoneypotFixture(t, defaultSessionConfig(), nil)

	eng := f.hp.Engage(context.Background(), models.EngagementRequest{
		ClientAddr: "10.0.0.1",
		SessionID:  "hist",
		Text:       "Now pay 500 rupees to fraud@ybl",
		ConversationHistory: []models.HistoryEntry{
			{Text: suspensionScam, Sender: "scammer", Timestamp: int64(1700000000000)},
			{Text: "Oh no, what should I do?", Sender: "user", Timestamp: int64(1700000001000)},
			{Text: "Verify by paying a small fee", Sender: "scammer", Timestamp: int64(1700000002000)},
			{Text: "How much is it?", Sender: "user", Timestamp: int64(1700000003000)},
		},
	})

	assert.Equal(t, models.OutcomeReplied, eng.Outcome)
	assert.Equal(t, models.StagePaymentDiscussion, eng.Stage)
	assert.Equal(t, "I'm ready to pay 500 rupees but nervous... can you please give me the exact details again?", *eng.Reply)
	assert.Equal(t, 6, eng.TotalMessages)
	assert.True(t, eng.CallbackSent)
	f.supervisor.Wait()
}

func TestHoneypot_PanicBecomesErrorOutcome(t *testing.T) {
	metrics := telemetry.NewMetrics()
	hp := NewHoneypot(defaultSessionConfig(), HoneypotDeps{
		Metrics: metrics,
		Logger:  logger.Nop(),
	})

	eng := hp.Engage(context.Background(), models.EngagementRequest{ClientAddr: "10.0.0.1", Text: "hi"})

	assert.Equal(t, models.OutcomeError, eng.Outcome)
	env := eng.Envelope()
	assert.Equal(t, models.StatusError, env.Status)
	assert.Nil(t, env.Reply)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Requests.WithLabelValues(string(models.OutcomeError))), 0)
}

func TestHoneypot_ConcurrentMessagesKeepHistoryConsistent(t *testing.T) {
	f := newHoneypotFixture(t, config.SessionConfig{MaxTurns: 1000, CallbackThreshold: 1000, DuplicateWindow: 0}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.engage("10.0.0.1", "", suspensionScam)
		}()
	}
	wg.Wait()

	history := f.store.History("ip-session-10-0-0-1")
	require.Len(t, history, 40)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, models.RoleScammer, history[i].Role)
		assert.Equal(t, models.RoleAgent, history[i+1].Role)
	}
}
