package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"honeypot-lab/pkg/logger"
)

// Janitor periodically evicts idle sessions and rate limiter entries
type Janitor struct {
	cron     *cron.Cron
	store    *SessionStore
	limiter  *MemoryRateLimiter
	idleTTL  time.Duration
	schedule string
	logger   *logger.Logger
}

// NewJanitor creates a janitor. limiter may be nil when the Redis backend is used.
func NewJanitor(store *SessionStore, limiter *MemoryRateLimiter, schedule string, idleTTL time.Duration, log *logger.Logger) *Janitor {
	log = log.WithComponent("janitor")
	clog := cronLogger{log: log}
	return &Janitor{
		cron: cron.New(
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		store:    store,
		limiter:  limiter,
		idleTTL:  idleTTL,
		schedule: schedule,
		logger:   log,
	}
}

// Start registers the sweep and starts the scheduler
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.Sweep() }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	j.logger.Info().Str("schedule", j.schedule).Dur("idle_ttl", j.idleTTL).Msg("janitor started")
	return nil
}

// Sweep runs one eviction pass and returns the number of sessions dropped
func (j *Janitor) Sweep() int {
	start := time.Now()
	sessions := j.store.Sweep()
	clients := 0
	if j.limiter != nil {
		// an entry idle for a full interval has a full bucket again
		clients = j.limiter.Sweep(0)
	}
	j.logger.Debug().
		Int("sessions", sessions).
		Int("rate_limit_entries", clients).
		Dur("duration", time.Since(start)).
		Msg("sweep complete")
	return sessions
}

// Stop halts the scheduler and waits for a running sweep to finish
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info().Msg("janitor stopped")
}

// cronLogger routes scheduler output (including recovered job panics) to zerolog
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
