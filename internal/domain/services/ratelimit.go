package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"honeypot-lab/pkg/logger"
)

// RateLimiter enforces the minimum interval between messages from one client
type RateLimiter interface {
	Allow(ctx context.Context, clientAddr string) (bool, error)
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryRateLimiter keeps one token bucket per client address. Each bucket
// holds a single token refilled once per interval.
type MemoryRateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*limiterEntry
	interval time.Duration
	now      func() time.Time
}

// NewMemoryRateLimiter creates a limiter allowing one message per interval.
// A zero interval allows everything.
func NewMemoryRateLimiter(interval time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		clients:  make(map[string]*limiterEntry),
		interval: interval,
		now:      time.Now,
	}
}

// WithClock overrides the limiter's time source
func (m *MemoryRateLimiter) WithClock(now func() time.Time) *MemoryRateLimiter {
	m.now = now
	return m
}

// Allow reports whether clientAddr may send now and records the attempt
// when it may. Rejected attempts do not push the window forward.
func (m *MemoryRateLimiter) Allow(_ context.Context, clientAddr string) (bool, error) {
	if m.interval <= 0 {
		return true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.clients[clientAddr]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(m.interval), 1)}
		m.clients[clientAddr] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1), nil
}

// Sweep forgets clients not seen for longer than idle
func (m *MemoryRateLimiter) Sweep(idle time.Duration) int {
	if idle < m.interval {
		idle = m.interval
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idle)
	removed := 0
	for addr, entry := range m.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(m.clients, addr)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients
func (m *MemoryRateLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// IntervalStore claims interval slots shared between instances
type IntervalStore interface {
	AcquireInterval(ctx context.Context, id string, interval time.Duration) (bool, error)
}

// RedisRateLimiter shares the interval between every instance behind the same Redis
type RedisRateLimiter struct {
	store    IntervalStore
	interval time.Duration
	logger   *logger.Logger
}

// NewRedisRateLimiter creates a limiter backed by store
func NewRedisRateLimiter(store IntervalStore, interval time.Duration, log *logger.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		store:    store,
		interval: interval,
		logger:   log.WithComponent("rate-limiter"),
	}
}

// Allow fails open: when Redis is unreachable the message is let through
// and the error returned for logging.
func (r *RedisRateLimiter) Allow(ctx context.Context, clientAddr string) (bool, error) {
	ok, err := r.store.AcquireInterval(ctx, clientAddr, r.interval)
	if err != nil {
		r.logger.Warn().Err(err).Str("client", clientAddr).Msg("rate limit check failed, allowing request")
		return true, err
	}
	return ok, nil
}
