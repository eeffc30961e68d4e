// Package rate paces outbound Discord REST calls so bursts of enforcement
// actions do not hit the API in lockstep.
package rate

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter spaces requests by a base interval plus random jitter. A negative
// jitter sample can shorten the gap, never below zero.
type Limiter struct {
	mu       sync.Mutex
	lastSlot time.Time
	interval time.Duration
	jitter   time.Duration
	rng      *rand.Rand
}

// New creates a limiter. With interval=250ms and jitter=100ms, consecutive
// requests are spaced 150ms-350ms apart.
func New(interval, jitter time.Duration) *Limiter {
	return &Limiter{
		lastSlot: time.Now().Add(-interval),
		interval: interval,
		jitter:   jitter,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WaitForNextSlot blocks until the caller may issue the next request, or until
// the context is done.
func (l *Limiter) WaitForNextSlot(ctx context.Context) error {
	l.mu.Lock()

	gap := l.interval
	if l.jitter > 0 {
		gap += time.Duration(l.rng.Int63n(int64(l.jitter)*2)) - l.jitter
	}

	wait := gap - time.Since(l.lastSlot)
	l.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.mu.Lock()
	l.lastSlot = time.Now()
	l.mu.Unlock()

	return nil
}
