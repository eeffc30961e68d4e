// Package recovery schedules delayed reversal of temporary enforcement side
// effects, such as resetting an automatic slowmode. Reversals are best-effort:
// the target may have been deleted or reconfigured by the time they fire.
package recovery

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReversalFunc undoes a temporary side effect. A "not found" outcome must be
// swallowed by the implementation; anything else is logged and dropped.
type ReversalFunc func(ctx context.Context) error

// Scheduler runs reversal functions after a delay unless they are cancelled
// first. One pending reversal exists per key; scheduling the same key again
// replaces the earlier timer.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool

	timeout time.Duration
	logger  *zap.Logger
}

// NewScheduler creates a scheduler. timeout bounds each reversal attempt.
func NewScheduler(timeout time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		pending: make(map[string]*time.Timer),
		timeout: timeout,
		logger:  logger.Named("recovery"),
	}
}

// ScheduleReversal arranges for fn to run once after delay. The key should
// identify the reversible side effect, e.g. "slowmode:<guild>:<channel>".
func (s *Scheduler) ScheduleReversal(key string, delay time.Duration, fn ReversalFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if timer, ok := s.pending[key]; ok {
		timer.Stop()
	}

	s.pending[key] = time.AfterFunc(delay, func() {
		s.fire(key, fn)
	})

	s.logger.Debug("Scheduled reversal",
		zap.String("key", key), zap.Duration("delay", delay))
}

// Cancel drops a pending reversal if one exists.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.pending[key]; ok {
		timer.Stop()
		delete(s.pending, key)
	}
}

// CancelPrefix drops every pending reversal whose key starts with the prefix.
// Used when a guild disables its filters so reversals cannot act on stale
// configuration.
func (s *Scheduler) CancelPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, timer := range s.pending {
		if strings.HasPrefix(key, prefix) {
			timer.Stop()
			delete(s.pending, key)
		}
	}
}

// Close cancels all pending reversals and rejects further scheduling.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	for key, timer := range s.pending {
		timer.Stop()
		delete(s.pending, key)
	}
}

func (s *Scheduler) fire(key string, fn ReversalFunc) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		// Best-effort: the channel may be gone or reconfigured.
		s.logger.Warn("Reversal attempt failed",
			zap.String("key", key), zap.Error(err))

		return
	}

	s.logger.Debug("Reversal applied", zap.String("key", key))
}
