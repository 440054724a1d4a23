package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"honeypot-lab/internal/telemetry"
	"honeypot-lab/pkg/logger"
)

// ErrSupervisorClosed is returned by Go once Shutdown has started
var ErrSupervisorClosed = errors.New("supervisor is shut down")

// Task is a unit of background work. It receives the supervisor's context,
// which is canceled when the drain deadline passes.
type Task func(ctx context.Context) error

// Supervisor runs fire-and-forget background tasks. The request path never
// waits on them; failures and panics are logged and counted instead.
type Supervisor struct {
	ctx     context.Context
	cancel  context.CancelFunc
	metrics *telemetry.Metrics
	logger  *logger.Logger

	mu       sync.Mutex
	closed   bool
	wg       conc.WaitGroup
	inFlight int
}

// NewSupervisor creates a supervisor whose tasks inherit parent's values
func NewSupervisor(parent context.Context, metrics *telemetry.Metrics, log *logger.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &Supervisor{
		ctx:     ctx,
		cancel:  cancel,
		metrics: metrics,
		logger:  log.WithComponent("supervisor"),
	}
}

// Go schedules task under name. It never blocks on the task itself.
func (s *Supervisor) Go(name string, task Task) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSupervisorClosed
	}
	s.inFlight++
	// registered under mu so Shutdown never waits on a group that can still grow
	s.wg.Go(func() { s.run(name, task) })
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) run(name string, task Task) {
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	err := s.safeRun(task)
	if err == nil {
		return
	}

	s.metrics.TaskFailed(name)
	s.logger.Warn().Err(err).Str("task", name).Msg("background task failed")
}

func (s *Supervisor) safeRun(task Task) error {
	var (
		pc  panics.Catcher
		err error
	)
	pc.Try(func() { err = task(s.ctx) })
	if r := pc.Recovered(); r != nil {
		return r.AsError()
	}
	return err
}

// InFlight returns the number of tasks that have not finished yet
func (s *Supervisor) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Wait blocks until every scheduled task has finished
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting tasks and waits for running ones. When ctx
// expires first the remaining tasks' context is canceled and ctx.Err is returned.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	pending := s.inFlight
	s.mu.Unlock()

	s.logger.Info().Int("pending", pending).Msg("draining background tasks")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		// give canceled tasks a moment to observe cancellation
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
		return fmt.Errorf("drain background tasks: %w", ctx.Err())
	}
}
