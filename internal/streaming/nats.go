package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"honeypot-lab/internal/config"
	"honeypot-lab/pkg/logger"
)

// ErrNotConnected is returned when publishing without a live NATS connection
var ErrNotConnected = errors.New("NATS not connected")

const (
	defaultStreamName = "HONEYPOT_INTEL"
	defaultSubject    = "honeypot.intelligence.reported"

	headerSessionID = "Honeypot-Session-Id"
	headerEventType = "Honeypot-Event-Type"
)

// NATSPublisher mirrors intelligence events onto a JetStream stream so
// downstream consumers can replay them
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
	logger  *logger.Logger
}

// NewNATSPublisher connects and creates or updates the stream
func NewNATSPublisher(ctx context.Context, cfg config.NATSConfig, log *logger.Logger) (*NATSPublisher, error) {
	log = log.WithComponent("nats")

	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	streamName := cfg.StreamName
	if streamName == "" {
		streamName = defaultStreamName
	}
	subject := cfg.Subject
	if subject == "" {
		subject = defaultSubject
	}

	conn, err := nats.Connect(url,
		nats.Name("scam-honeypot"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        streamName,
		Description: "Scam honeypot intelligence reports",
		Subjects:    []string{streamSubjects(subject)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     100000,
		Discard:     jetstream.DiscardOld,
		Storage:     jetstream.FileStorage,
		Duplicates:  10 * time.Minute,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create stream %s: %w", streamName, err)
	}

	log.Info().Str("url", url).Str("stream", streamName).Str("subject", subject).Msg("NATS stream ready")

	return &NATSPublisher{conn: conn, js: js, subject: subject, logger: log}, nil
}

// streamSubjects widens the configured subject to its first token so the
// stream also captures the session.ended variant
func streamSubjects(subject string) string {
	root, _, _ := strings.Cut(subject, ".")
	return root + ".>"
}

// SubjectFor returns the subject an event is published on. Final reports
// go to the sibling "session.ended" subject under the same root.
func SubjectFor(base string, event *IntelligenceEvent) string {
	if event.Type != EventTypeSessionEnded {
		return base
	}
	root, _, _ := strings.Cut(base, ".")
	return root + "." + string(EventTypeSessionEnded)
}

// IsConnected reports whether the connection is currently usable
func (p *NATSPublisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Close drains pending publishes and closes the connection
func (p *NATSPublisher) Close() {
	if p.conn == nil || p.conn.IsClosed() {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn().Err(err).Msg("NATS drain failed")
		p.conn.Close()
	}
}

// PublishEvent publishes and waits for the stream ack. The event id is
// the JetStream message id, so a retried publish is stored once.
func (p *NATSPublisher) PublishEvent(ctx context.Context, event *IntelligenceEvent) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := nats.NewMsg(SubjectFor(p.subject, event))
	msg.Data = data
	msg.Header.Set(headerSessionID, event.SessionID)
	msg.Header.Set(headerEventType, string(event.Type))

	ack, err := p.js.PublishMsg(ctx, msg, jetstream.WithMsgID(event.ID.String()))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug().
		Str("subject", msg.Subject).
		Str("session_id", event.SessionID).
		Uint64("seq", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published intelligence event")
	return nil
}
