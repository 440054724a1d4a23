package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/telemetry"
	"honeypot-lab/pkg/logger"
)

// ErrSessionNotFound is returned when a session id has no stored history
var ErrSessionNotFound = errors.New("session not found")

const synthesizedSessionPrefix = "ip-session-"

// TranscriptSink persists session snapshots. Implementations must tolerate
// snapshots arriving out of order and keep the highest version.
type TranscriptSink interface {
	Name() string
	SaveTranscript(ctx context.Context, t *models.Transcript) error
}

// SessionForgetter is implemented by sinks that keep per-session state and
// must release it when the store evicts the session
type SessionForgetter interface {
	Forget(sessionID string)
}

// SessionStore holds conversation sessions and the client-address mapping
// for the lifetime of the process. Idle sessions are dropped by Sweep.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	byAddr   map[string]string

	keys       *keyedMutex
	idleTTL    time.Duration
	sinks      []TranscriptSink
	supervisor *Supervisor
	metrics    *telemetry.Metrics
	logger     *logger.Logger
	now        func() time.Time
}

// SessionStoreOption configures a SessionStore
type SessionStoreOption func(*SessionStore)

// WithTranscriptSinks persists every mutation to the given sinks in the background
func WithTranscriptSinks(sinks ...TranscriptSink) SessionStoreOption {
	return func(s *SessionStore) {
		for _, sink := range sinks {
			if sink != nil {
				s.sinks = append(s.sinks, sink)
			}
		}
	}
}

// WithIdleTTL sets how long a session may go without messages before Sweep drops it
func WithIdleTTL(ttl time.Duration) SessionStoreOption {
	return func(s *SessionStore) { s.idleTTL = ttl }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) { s.now = now }
}

// NewSessionStore creates an empty store
func NewSessionStore(sup *Supervisor, metrics *telemetry.Metrics, log *logger.Logger, opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		sessions:   make(map[string]*models.Session),
		byAddr:     make(map[string]string),
		keys:       newKeyedMutex(),
		supervisor: sup,
		metrics:    metrics,
		logger:     log.WithComponent("session-store"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SynthesizeSessionID derives a stable identifier-safe session id from an address
func SynthesizeSessionID(clientAddr string) string {
	token := strings.NewReplacer(".", "-", ":", "-").Replace(clientAddr)
	return synthesizedSessionPrefix + token
}

// ResolveSession picks the session for a request. Continuity per address
// wins over caller-supplied ids once the address has a non-empty history.
func (s *SessionStore) ResolveSession(clientAddr, suppliedID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapped, hasMapping := s.byAddr[clientAddr]

	if suppliedID != "" && suppliedID != models.DefaultSessionID {
		if hasMapping {
			if sess, ok := s.sessions[mapped]; ok && len(sess.History) > 0 {
				return mapped
			}
		}
		s.byAddr[clientAddr] = suppliedID
		return suppliedID
	}

	if hasMapping {
		return mapped
	}

	id := SynthesizeSessionID(clientAddr)
	s.byAddr[clientAddr] = id
	return id
}

// Append adds a message to the session, creating it if needed, and
// schedules a transcript write. It returns the new history length.
func (s *SessionStore) Append(sessionID string, role models.Role, text string) int {
	s.mu.Lock()
	now := s.now()
	sess := s.getOrCreateLocked(sessionID, now)
	sess.History = append(sess.History, models.Message{
		Role:      role,
		Text:      text,
		Timestamp: now.UTC(),
	})
	sess.UpdatedAt = now.UTC()
	sess.Version++
	n := len(sess.History)
	snap := sess.Snapshot()
	s.mu.Unlock()

	s.persist(snap)
	return n
}

// ReplaceHistory overwrites the session's history with the caller's
// prior conversation. Entries without text or sender are skipped.
func (s *SessionStore) ReplaceHistory(sessionID string, entries []models.HistoryEntry) int {
	s.mu.Lock()
	now := s.now()
	sess := s.getOrCreateLocked(sessionID, now)

	history := make([]models.Message, 0, len(entries))
	for _, e := range entries {
		if e.Text == "" || e.Sender == "" {
			continue
		}
		history = append(history, models.Message{
			Role:      models.RoleFromSender(e.Sender),
			Text:      e.Text,
			Timestamp: parseTimestamp(e.Timestamp, now),
		})
	}
	sess.History = history
	sess.UpdatedAt = now.UTC()
	sess.Version++
	n := len(history)
	snap := sess.Snapshot()
	s.mu.Unlock()

	s.logger.Debug().Str("session_id", sessionID).Int("messages", n).Msg("history replaced from caller")
	s.persist(snap)
	return n
}

func (s *SessionStore) getOrCreateLocked(id string, now time.Time) *models.Session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &models.Session{
			ID:        id,
			StartedAt: now.UTC(),
			UpdatedAt: now.UTC(),
		}
		s.sessions[id] = sess
		s.metrics.ActiveSessions.Set(float64(len(s.sessions)))
	}
	return sess
}

// Get returns a snapshot of the session
func (s *SessionStore) Get(sessionID string) (*models.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Snapshot(), nil
}

// History returns a copy of the session's messages, empty if unknown
func (s *SessionStore) History(sessionID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return []models.Message{}
	}
	out := make([]models.Message, len(sess.History))
	copy(out, sess.History)
	return out
}

// Len returns the number of stored messages for the session
func (s *SessionStore) Len(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return len(sess.History)
	}
	return 0
}

// ScammerTexts returns every scammer-authored text in the session
func (s *SessionStore) ScammerTexts(sessionID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess.ScammerTexts()
	}
	return []string{}
}

// RecentScammerTexts returns up to n of the latest scammer-authored texts, oldest first
func (s *SessionStore) RecentScammerTexts(sessionID string, n int) []string {
	texts := s.ScammerTexts(sessionID)
	if n <= 0 {
		return []string{}
	}
	if len(texts) > n {
		texts = texts[len(texts)-n:]
	}
	return texts
}

// Lock serializes request handling for one key and returns the unlock func
func (s *SessionStore) Lock(key string) func() {
	return s.keys.Lock(key)
}

// Stats summarizes current memory use
func (s *SessionStore) Stats() models.SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := models.SessionStats{
		Sessions:        len(s.sessions),
		AddressMappings: len(s.byAddr),
	}
	for _, sess := range s.sessions {
		stats.Messages += len(sess.History)
	}
	return stats
}

// Sweep drops sessions idle for longer than the TTL along with address
// mappings that point at them. A zero TTL disables eviction.
func (s *SessionStore) Sweep() int {
	if s.idleTTL <= 0 {
		return 0
	}

	s.mu.Lock()
	cutoff := s.now().Add(-s.idleTTL)
	var evictedIDs []string
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			evictedIDs = append(evictedIDs, id)
		}
	}
	evicted := len(evictedIDs)
	for addr, id := range s.byAddr {
		if _, ok := s.sessions[id]; !ok {
			// mappings to sessions that never received a message age out with the sweep too
			delete(s.byAddr, addr)
		}
	}
	remaining := len(s.sessions)
	s.mu.Unlock()

	for _, sink := range s.sinks {
		if f, ok := sink.(SessionForgetter); ok {
			for _, id := range evictedIDs {
				f.Forget(id)
			}
		}
	}

	s.metrics.ActiveSessions.Set(float64(remaining))
	s.metrics.EvictedSessions.Add(float64(evicted))
	if evicted > 0 {
		s.logger.Info().Int("evicted", evicted).Int("remaining", remaining).Msg("idle sessions evicted")
	}
	return evicted
}

func (s *SessionStore) persist(snap *models.Transcript) {
	if s.supervisor == nil {
		return
	}
	for _, sink := range s.sinks {
		err := s.supervisor.Go("transcript:"+sink.Name(), func(ctx context.Context) error {
			err := sink.SaveTranscript(ctx, snap)
			result := "ok"
			if err != nil {
				result = "error"
			}
			s.metrics.TranscriptWrites.WithLabelValues(sink.Name(), result).Inc()
			return err
		})
		if err != nil {
			s.logger.Debug().Err(err).Str("sink", sink.Name()).Msg("transcript write not scheduled")
		}
	}
}

// parseTimestamp accepts RFC 3339 strings and epoch milliseconds
func parseTimestamp(v any, fallback time.Time) time.Time {
	switch ts := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return t.UTC()
		}
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	case float64:
		return time.UnixMilli(int64(ts)).UTC()
	case int64:
		return time.UnixMilli(ts).UTC()
	case int:
		return time.UnixMilli(int64(ts)).UTC()
	}
	return fallback.UTC()
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
