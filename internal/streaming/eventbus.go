package streaming

import (
	"context"
	"strconv"
	"sync"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

const subscriberBuffer = 100

type subscriber struct {
	ch  chan *IntelligenceEvent
	sub *Subscription
}

// EventBus distributes intelligence events to local subscribers and,
// when configured, to NATS
type EventBus struct {
	nats   *NATSPublisher
	logger *logger.Logger

	mu          sync.RWMutex
	subscribers map[string]*subscriber
	nextID      uint64
	closed      bool
}

// NewEventBus creates a new event bus. nats may be nil.
func NewEventBus(nats *NATSPublisher, log *logger.Logger) *EventBus {
	return &EventBus{
		nats:        nats,
		logger:      log.WithComponent("event-bus"),
		subscribers: make(map[string]*subscriber),
	}
}

// PublishIntelligence converts a report into an event and publishes it
func (eb *EventBus) PublishIntelligence(ctx context.Context, report *models.IntelligenceReport) error {
	return eb.Publish(ctx, NewIntelligenceEvent(report))
}

// Publish sends the event to NATS if available and to every matching local subscriber.
// Slow subscribers lose events rather than blocking the publisher.
func (eb *EventBus) Publish(ctx context.Context, event *IntelligenceEvent) error {
	var natsErr error
	if eb.nats != nil {
		if natsErr = eb.nats.PublishEvent(ctx, event); natsErr != nil {
			eb.logger.Warn().Err(natsErr).Msg("failed to publish to NATS, using local broadcast only")
		}
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for id, s := range eb.subscribers {
		if !s.sub.Matches(event) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			eb.logger.Debug().Str("subscriber", id).Msg("subscriber channel full, dropping event")
		}
	}

	return natsErr
}

// Subscribe registers a subscriber and returns its channel and an unsubscribe func.
// The channel is closed on unsubscribe, on ctx cancellation or when the bus closes.
func (eb *EventBus) Subscribe(ctx context.Context, sub *Subscription) (<-chan *IntelligenceEvent, func()) {
	eb.mu.Lock()
	eb.nextID++
	id := strconv.FormatUint(eb.nextID, 10)
	ch := make(chan *IntelligenceEvent, subscriberBuffer)
	if eb.closed {
		close(ch)
		eb.mu.Unlock()
		return ch, func() {}
	}
	eb.subscribers[id] = &subscriber{ch: ch, sub: sub}
	eb.mu.Unlock()

	eb.logger.Debug().Str("subscriber_id", id).Msg("new subscriber")

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()
			if s, ok := eb.subscribers[id]; ok {
				close(s.ch)
				delete(eb.subscribers, id)
				eb.logger.Debug().Str("subscriber_id", id).Msg("subscriber removed")
			}
		})
	}

	stop := context.AfterFunc(ctx, unsubscribe)
	return ch, func() {
		stop()
		unsubscribe()
	}
}

// SubscriberCount returns the number of active subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Close closes every subscriber and the NATS connection
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.closed = true
	for id, s := range eb.subscribers {
		close(s.ch)
		delete(eb.subscribers, id)
	}

	if eb.nats != nil {
		eb.nats.Close()
	}
}
