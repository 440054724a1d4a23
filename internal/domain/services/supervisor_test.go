package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/telemetry"
	"honeypot-lab/pkg/logger"
)

func TestSupervisor_RunsTasks(t *testing.T) {
	sup := NewSupervisor(context.Background(), telemetry.NewMetrics(), logger.Nop())

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, sup.Go("count", func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	sup.Wait()

	assert.Equal(t, int32(10), ran.Load())
	assert.Zero(t, sup.InFlight())
}

func TestSupervisor_RecoversPanicsAndCountsFailures(t *testing.T) {
	metrics := telemetry.NewMetrics()
	sup := NewSupervisor(context.Background(), metrics, logger.Nop())

	require.NoError(t, sup.Go("boom", func(context.Context) error {
		panic("callback exploded")
	}))
	require.NoError(t, sup.Go("fail", func(context.Context) error {
		return errors.New("endpoint down")
	}))
	sup.Wait()

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.TaskFailures.WithLabelValues("boom")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.TaskFailures.WithLabelValues("fail")), 0)

	// still usable afterwards
	require.NoError(t, sup.Go("ok", func(context.Context) error { return nil }))
	sup.Wait()
}

func TestSupervisor_ShutdownDrains(t *testing.T) {
	sup := NewSupervisor(context.Background(), telemetry.NewMetrics(), logger.Nop())

	var finished atomic.Bool
	require.NoError(t, sup.Go("slow", func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sup.Shutdown(ctx))
	assert.True(t, finished.Load())

	assert.ErrorIs(t, sup.Go("late", func(context.Context) error { return nil }), ErrSupervisorClosed)
}

func TestSupervisor_ShutdownDeadlineCancelsTasks(t *testing.T) {
	sup := NewSupervisor(context.Background(), telemetry.NewMetrics(), logger.Nop())

	canceled := make(chan struct{})
	require.NoError(t, sup.Go("stuck", func(ctx context.Context) error {
		<-ctx.Done()
		close(canceled)
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := sup.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("task context was not canceled")
	}
}

func TestSupervisor_ParentCancelDoesNotStopTasks(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	sup := NewSupervisor(parent, telemetry.NewMetrics(), logger.Nop())
	cancel()

	var taskErr error
	require.NoError(t, sup.Go("after-cancel", func(ctx context.Context) error {
		taskErr = ctx.Err()
		return nil
	}))
	sup.Wait()
	assert.NoError(t, taskErr)
}
