package recovery_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/automod/recovery"
)

func TestSchedulerFiresOnce(t *testing.T) {
	t.Parallel()

	s := recovery.NewScheduler(time.Second, zap.NewNop())
	defer s.Close()

	var calls atomic.Int32

	s.ScheduleReversal("slowmode:1:2", 10*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	assert.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// No second firing.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSchedulerReplacesPendingKey(t *testing.T) {
	t.Parallel()

	s := recovery.NewScheduler(time.Second, zap.NewNop())
	defer s.Close()

	var first, second atomic.Int32

	s.ScheduleReversal("slowmode:1:2", 20*time.Millisecond, func(context.Context) error {
		first.Add(1)
		return nil
	})

	// Rescheduling the same key drops the earlier timer.
	s.ScheduleReversal("slowmode:1:2", 20*time.Millisecond, func(context.Context) error {
		second.Add(1)
		return nil
	})

	assert.Eventually(t, func() bool {
		return second.Load() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestSchedulerCancel(t *testing.T) {
	t.Parallel()

	s := recovery.NewScheduler(time.Second, zap.NewNop())
	defer s.Close()

	var calls atomic.Int32

	s.ScheduleReversal("slowmode:1:2", 20*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	s.Cancel("slowmode:1:2")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestSchedulerCancelPrefix(t *testing.T) {
	t.Parallel()

	s := recovery.NewScheduler(time.Second, zap.NewNop())
	defer s.Close()

	var guild1, guild2 atomic.Int32

	s.ScheduleReversal("slowmode:1:10", 20*time.Millisecond, func(context.Context) error {
		guild1.Add(1)
		return nil
	})
	s.ScheduleReversal("slowmode:1:11", 20*time.Millisecond, func(context.Context) error {
		guild1.Add(1)
		return nil
	})
	s.ScheduleReversal("slowmode:2:10", 20*time.Millisecond, func(context.Context) error {
		guild2.Add(1)
		return nil
	})

	s.CancelPrefix("slowmode:1:")

	assert.Eventually(t, func() bool {
		return guild2.Load() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), guild1.Load())
}

func TestSchedulerCloseRejectsNewWork(t *testing.T) {
	t.Parallel()

	s := recovery.NewScheduler(time.Second, zap.NewNop())

	var calls atomic.Int32

	s.ScheduleReversal("slowmode:1:2", 20*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	s.Close()

	s.ScheduleReversal("slowmode:1:3", time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestSchedulerToleratesFailures(t *testing.T) {
	t.Parallel()

	s := recovery.NewScheduler(time.Second, zap.NewNop())
	defer s.Close()

	fired := make(chan struct{})

	// Failures are logged and dropped; the scheduler stays usable.
	s.ScheduleReversal("slowmode:1:2", time.Millisecond, func(context.Context) error {
		close(fired)
		return assert.AnError
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("reversal did not fire")
	}

	var ok atomic.Int32

	s.ScheduleReversal("slowmode:1:3", time.Millisecond, func(context.Context) error {
		ok.Add(1)
		return nil
	})

	assert.Eventually(t, func() bool {
		return ok.Load() == 1
	}, time.Second, 5*time.Millisecond)
}
