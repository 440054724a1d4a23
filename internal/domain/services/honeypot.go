package services

import (
	"context"
	"slices"

	"github.com/sourcegraph/conc/panics"

	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/telemetry"
	"honeypot-lab/pkg/logger"
)

// Informational replies for requests that are absorbed rather than engaged
const (
	RateLimitedReply  = "Please wait a moment before sending another message."
	DuplicateReply    = "I already responded to this message. Please continue the conversation."
	UnknownClientAddr = "unknown"
)

// Notifier delivers intelligence reports
type Notifier interface {
	Notify(ctx context.Context, report *models.IntelligenceReport) bool
}

// Honeypot runs one inbound message through rate limiting, session
// resolution, classification, persona reply and intelligence reporting.
type Honeypot struct {
	store      *SessionStore
	limiter    RateLimiter
	classifier *ScamClassifier
	extractor  *IntelligenceExtractor
	responder  *ResponseGenerator
	notifier   Notifier
	supervisor *Supervisor
	metrics    *telemetry.Metrics
	logger     *logger.Logger

	maxTurns          int
	callbackThreshold int
	duplicateWindow   int
}

// HoneypotDeps are the collaborators of a Honeypot. Limiter and Notifier may be nil.
type HoneypotDeps struct {
	Store      *SessionStore
	Limiter    RateLimiter
	Classifier *ScamClassifier
	Extractor  *IntelligenceExtractor
	Responder  *ResponseGenerator
	Notifier   Notifier
	Supervisor *Supervisor
	Metrics    *telemetry.Metrics
	Logger     *logger.Logger
}

// NewHoneypot wires the engagement pipeline
func NewHoneypot(cfg config.SessionConfig, deps HoneypotDeps) *Honeypot {
	km := NewScamKeywordMatcher()
	if deps.Classifier == nil {
		deps.Classifier = NewScamClassifier(km)
	}
	if deps.Extractor == nil {
		deps.Extractor = NewIntelligenceExtractor(km)
	}
	if deps.Responder == nil {
		deps.Responder = NewResponseGenerator(nil)
	}

	return &Honeypot{
		store:             deps.Store,
		limiter:           deps.Limiter,
		classifier:        deps.Classifier,
		extractor:         deps.Extractor,
		responder:         deps.Responder,
		notifier:          deps.Notifier,
		supervisor:        deps.Supervisor,
		metrics:           deps.Metrics,
		logger:            deps.Logger.WithComponent("honeypot"),
		maxTurns:          cfg.MaxTurns,
		callbackThreshold: cfg.CallbackThreshold,
		duplicateWindow:   cfg.DuplicateWindow,
	}
}

// Engage handles one message and never fails: anything unexpected becomes
// an error outcome.
func (h *Honeypot) Engage(ctx context.Context, req models.EngagementRequest) *models.Engagement {
	var (
		pc  panics.Catcher
		eng *models.Engagement
	)
	pc.Try(func() { eng = h.engage(ctx, req) })
	if r := pc.Recovered(); r != nil {
		h.logger.Error().
			Str("client", req.ClientAddr).
			Str("panic", r.String()).
			Msg("engagement panicked")
		eng = &models.Engagement{Outcome: models.OutcomeError, SessionID: req.SessionID}
	}

	h.metrics.Requests.WithLabelValues(string(eng.Outcome)).Inc()
	return eng
}

func (h *Honeypot) engage(ctx context.Context, req models.EngagementRequest) *models.Engagement {
	addr := req.ClientAddr
	if addr == "" {
		addr = UnknownClientAddr
	}

	// address lock covers the rate limit and session resolution, the session
	// lock covers the read-modify-write on the history
	unlockAddr := h.store.Lock("addr:" + addr)
	defer unlockAddr()

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(ctx, addr)
		if err == nil && !allowed {
			h.logger.Debug().Str("client", addr).Msg("rate limited")
			return &models.Engagement{
				Outcome: models.OutcomeRateLimited,
				Reply:   models.TextPtr(RateLimitedReply),
			}
		}
	}

	sessionID := h.store.ResolveSession(addr, req.SessionID)
	unlockSession := h.store.Lock("session:" + sessionID)
	defer unlockSession()

	log := h.logger.WithSession(sessionID).WithClient(addr)

	if stored := h.store.Len(sessionID); stored >= h.maxTurns {
		log.Debug().Int("messages", stored).Msg("session already closed")
		return &models.Engagement{
			Outcome:       models.OutcomeEnded,
			SessionID:     sessionID,
			Reply:         models.TextPtr(ClosingReply),
			TotalMessages: stored,
		}
	}

	if slices.Contains(h.store.RecentScammerTexts(sessionID, h.duplicateWindow), req.Text) {
		log.Debug().Msg("duplicate message suppressed")
		return &models.Engagement{
			Outcome:       models.OutcomeDuplicate,
			SessionID:     sessionID,
			Reply:         models.TextPtr(DuplicateReply),
			TotalMessages: h.store.Len(sessionID),
		}
	}

	if len(req.ConversationHistory) > 0 {
		h.store.ReplaceHistory(sessionID, req.ConversationHistory)
	}

	messageCount := h.store.Len(sessionID)
	previous := h.store.ScammerTexts(sessionID)

	cls := h.classifier.Classify(req.Text)
	h.metrics.ScamConfidence.Observe(cls.Confidence)
	if cls.IsScam {
		h.metrics.ScamDetections.Inc()
	}

	h.store.Append(sessionID, models.RoleScammer, req.Text)

	eng := &models.Engagement{
		Outcome:        models.OutcomeIgnored,
		SessionID:      sessionID,
		Classification: cls,
	}

	if gen := h.responder.Generate(cls.IsScam, messageCount, previous, req.Text); gen != nil {
		h.store.Append(sessionID, models.RoleAgent, gen.Text)
		h.metrics.Stages.WithLabelValues(string(gen.Stage)).Inc()
		eng.Outcome = models.OutcomeReplied
		eng.Stage = gen.Stage
		eng.Reply = models.TextPtr(gen.Text)
	}

	eng.Intelligence = h.extractor.Extract(req.Text)
	eng.TotalMessages = h.store.Len(sessionID)

	log.Info().
		Bool("scam", cls.IsScam).
		Float64("confidence", cls.Confidence).
		Int("keywords", cls.KeywordMatches).
		Str("stage", string(eng.Stage)).
		Int("messages", eng.TotalMessages).
		Msg("message engaged")

	if eng.TotalMessages >= h.maxTurns {
		if cls.IsScam {
			eng.CallbackSent = h.report(sessionID, addr, eng.TotalMessages, cls, true)
		}
		eng.Outcome = models.OutcomeEnded
		eng.Reply = models.TextPtr(ClosingReply)
		log.Info().Int("messages", eng.TotalMessages).Msg("conversation ended at turn ceiling")
		return eng
	}

	if cls.IsScam && eng.TotalMessages >= h.callbackThreshold {
		eng.CallbackSent = h.report(sessionID, addr, eng.TotalMessages, cls, false)
	}

	return eng
}

// report schedules a callback with the intelligence accumulated over the
// whole session. It returns whether the callback was scheduled.
func (h *Honeypot) report(sessionID, addr string, total int, cls models.Classification, final bool) bool {
	if h.notifier == nil || h.supervisor == nil {
		return false
	}

	intel := h.extractor.ExtractAll(h.store.ScammerTexts(sessionID))
	notes := EngagementAgentNotes(total, cls.Confidence, intel)
	if final {
		notes = FinalAgentNotes(total)
	}

	report := NewIntelligenceReport(models.CallbackPayload{
		SessionID:              sessionID,
		ScamDetected:           true,
		TotalMessagesExchanged: total,
		ExtractedIntelligence:  intel,
		AgentNotes:             notes,
	}, final, addr, cls.Confidence)

	err := h.supervisor.Go("callback", func(ctx context.Context) error {
		h.notifier.Notify(ctx, report)
		return nil
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("callback not scheduled")
		return false
	}
	return true
}

// Store exposes the session store for read-only handlers
func (h *Honeypot) Store() *SessionStore {
	return h.store
}
