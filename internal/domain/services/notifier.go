package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/telemetry"
	"honeypot-lab/pkg/logger"
)

// ErrCallbackDisabled is returned by Send when callbacks are switched off
var ErrCallbackDisabled = errors.New("result callback disabled")

// EventPublisher mirrors intelligence reports onto an event stream
type EventPublisher interface {
	PublishIntelligence(ctx context.Context, report *models.IntelligenceReport) error
}

// ReportCache remembers the last report delivered for each session
type ReportCache interface {
	RememberCallback(ctx context.Context, sessionID string, report any, ttl time.Duration) error
}

const reportCacheTTL = 24 * time.Hour

// CallbackNotifier posts intelligence reports to the result-collection endpoint
type CallbackNotifier struct {
	enabled    bool
	url        string
	httpClient *http.Client
	publisher  EventPublisher
	reports    ReportCache
	metrics    *telemetry.Metrics
	logger     *logger.Logger
}

// NotifierOption configures a CallbackNotifier
type NotifierOption func(*CallbackNotifier)

// WithEventPublisher mirrors every report, delivered or not, to p
func WithEventPublisher(p EventPublisher) NotifierOption {
	return func(n *CallbackNotifier) { n.publisher = p }
}

// WithReportCache records delivered reports in c
func WithReportCache(c ReportCache) NotifierOption {
	return func(n *CallbackNotifier) { n.reports = c }
}

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) NotifierOption {
	return func(n *CallbackNotifier) { n.httpClient = c }
}

// NewCallbackNotifier creates a notifier from config
func NewCallbackNotifier(cfg config.CallbackConfig, metrics *telemetry.Metrics, log *logger.Logger, opts ...NotifierOption) *CallbackNotifier {
	n := &CallbackNotifier{
		enabled: cfg.Enabled,
		url:     cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		metrics: metrics,
		logger:  log.WithComponent("callback"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NewIntelligenceReport wraps a payload with a fresh report id
func NewIntelligenceReport(payload models.CallbackPayload, final bool, clientAddr string, confidence float64) *models.IntelligenceReport {
	return &models.IntelligenceReport{
		ID:             uuid.New(),
		Payload:        payload,
		Final:          final,
		ReportedAt:     time.Now().UTC(),
		ClientAddr:     clientAddr,
		ScamConfidence: confidence,
	}
}

// FinalAgentNotes describes a conversation closed at the turn ceiling
func FinalAgentNotes(totalMessages int) string {
	return fmt.Sprintf("Conversation ended after %d turns. Intelligence extracted successfully.", totalMessages)
}

// EngagementAgentNotes summarizes an ongoing engagement
func EngagementAgentNotes(totalMessages int, confidence float64, intel models.ExtractedIntelligence) string {
	notes := fmt.Sprintf("Engaged scammer for %d messages. Confidence: %.2f. ", totalMessages, confidence)
	if intel.HasPaymentIdentifiers() {
		notes += fmt.Sprintf("Extracted %d bank accounts, %d UPI IDs. ", len(intel.BankAccounts), len(intel.UPIIDs))
	}
	return notes + "Scammer used urgency tactics and payment redirection."
}

// Notify delivers the report and reports whether the endpoint accepted it.
// Failures are logged and counted, never retried.
func (n *CallbackNotifier) Notify(ctx context.Context, report *models.IntelligenceReport) bool {
	log := n.logger.WithSession(report.Payload.SessionID)

	err := n.Send(ctx, report.Payload)
	switch {
	case err == nil:
		report.Delivered = true
		n.metrics.Callbacks.WithLabelValues("delivered").Inc()
		log.Info().
			Str("report_id", report.ID.String()).
			Int("total_messages", report.Payload.TotalMessagesExchanged).
			Bool("final", report.Final).
			Msg("intelligence report delivered")
	case errors.Is(err, ErrCallbackDisabled):
		n.metrics.Callbacks.WithLabelValues("disabled").Inc()
		log.Debug().Str("report_id", report.ID.String()).Msg("callback disabled, report not sent")
	default:
		n.metrics.Callbacks.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Str("report_id", report.ID.String()).Msg("intelligence report not delivered")
	}

	if n.publisher != nil {
		if perr := n.publisher.PublishIntelligence(ctx, report); perr != nil {
			log.Warn().Err(perr).Msg("failed to publish intelligence event")
		}
	}
	if report.Delivered && n.reports != nil {
		if cerr := n.reports.RememberCallback(ctx, report.Payload.SessionID, report, reportCacheTTL); cerr != nil {
			log.Debug().Err(cerr).Msg("failed to cache delivered report")
		}
	}

	return report.Delivered
}

// Send posts one payload. Only HTTP 200 counts as success.
func (n *CallbackNotifier) Send(ctx context.Context, payload models.CallbackPayload) error {
	if !n.enabled || n.url == "" {
		return ErrCallbackDisabled
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ScamHoneypot/1.0")

	start := time.Now()
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	n.logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("callback response received")

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("callback returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
