package window

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// Longest window any caller may query; events older than this are
	// always pruned.
	maxRetention = 10 * time.Minute

	// Hard cap on timestamps retained per key so a flooding subject cannot
	// grow an entry without bound.
	maxEventsPerKey = 256

	// Entries untouched for this long are removed by the sweep.
	idleTTL = 15 * time.Minute

	sweepInterval = time.Minute
)

// entry holds the per-key state: a pruned slice of event timestamps for count
// queries and a single last-fired timestamp for FireOnce. The entry mutex is
// the per-key synchronization point required for FireOnce atomicity. gone is
// set under the mutex before the entry is removed from the map; a caller that
// raced the removal and locked the orphaned entry must discard it, otherwise
// two FireOnce calls for the same key could both fire against different
// entries.
type entry struct {
	mu        sync.Mutex
	events    []time.Time
	lastFired time.Time
	touched   time.Time
	gone      bool
}

// MemoryStore is the in-process Store implementation. All operations are safe
// under concurrent invocation for the same key; memory stays bounded through
// pruning on touch plus a periodic sweep of idle entries.
type MemoryStore struct {
	entries *xsync.MapOf[string, *entry]
	done    chan struct{}

	// Overridable in tests.
	now func() time.Time
}

// NewMemoryStore creates a memory store and starts its sweep goroutine.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: xsync.NewMapOf[string, *entry](),
		done:    make(chan struct{}),
		now:     time.Now,
	}

	go s.sweep()

	return s
}

// Increment records an event for the key and returns the retained event count.
func (s *MemoryStore) Increment(_ context.Context, key string) (int, error) {
	e := s.acquire(key)
	defer e.mu.Unlock()

	now := s.now()
	e.touched = now
	e.events = append(e.events, now)
	e.prune(now)

	return len(e.events), nil
}

// CountInWindow returns the number of events within the trailing window.
func (s *MemoryStore) CountInWindow(_ context.Context, key string, window time.Duration) (int, error) {
	e, ok := s.entries.Load(key)
	if !ok {
		return 0, nil
	}

	now := s.now()
	cutoff := now.Add(-window)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gone {
		return 0, nil
	}

	e.prune(now)

	count := 0
	for _, ts := range e.events {
		if ts.After(cutoff) {
			count++
		}
	}

	return count, nil
}

// FireOnce marks the key fired unless it already fired within the cooldown.
func (s *MemoryStore) FireOnce(_ context.Context, key string, cooldown time.Duration) (bool, error) {
	e := s.acquire(key)
	defer e.mu.Unlock()

	now := s.now()
	e.touched = now

	if !e.lastFired.IsZero() && now.Sub(e.lastFired) < cooldown {
		return false, nil
	}

	e.lastFired = now

	return true, nil
}

// ResetGuild clears all counters and fired markers belonging to the guild.
func (s *MemoryStore) ResetGuild(_ context.Context, guildID uint64) error {
	prefix := GuildPrefix(guildID)

	s.entries.Range(func(key string, e *entry) bool {
		if strings.HasPrefix(key, prefix) {
			s.remove(key, e)
		}

		return true
	})

	return nil
}

// Close stops the sweep goroutine.
func (s *MemoryStore) Close() {
	close(s.done)
}

// SetNowFunc overrides the store clock. Test hook.
func (s *MemoryStore) SetNowFunc(now func() time.Time) {
	s.now = now
}

// acquire returns the live entry for the key with its mutex held. An entry
// tombstoned by the sweep or a reset between the map load and the lock is
// discarded and the load retried.
func (s *MemoryStore) acquire(key string) *entry {
	for {
		e, _ := s.entries.LoadOrStore(key, &entry{})

		e.mu.Lock()
		if !e.gone {
			return e
		}
		e.mu.Unlock()
	}
}

// remove tombstones the entry and drops it from the map under one lock, so a
// caller holding a stale pointer cannot resurrect it.
func (s *MemoryStore) remove(key string, e *entry) {
	e.mu.Lock()
	e.gone = true
	s.entries.Delete(key)
	e.mu.Unlock()
}

// prune drops events outside the retention horizon and enforces the per-key
// cap. Callers must hold the entry mutex.
func (e *entry) prune(now time.Time) {
	cutoff := now.Add(-maxRetention)

	i := 0
	for i < len(e.events) && !e.events[i].After(cutoff) {
		i++
	}

	if i > 0 {
		e.events = append(e.events[:0], e.events[i:]...)
	}

	if len(e.events) > maxEventsPerKey {
		e.events = append(e.events[:0], e.events[len(e.events)-maxEventsPerKey:]...)
	}
}

// sweep periodically removes entries with no recent activity.
func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

// sweepOnce removes entries with no recent activity. The idle check and the
// tombstone happen under one lock so a concurrent touch cannot land in
// between.
func (s *MemoryStore) sweepOnce() {
	cutoff := s.now().Add(-idleTTL)

	s.entries.Range(func(key string, e *entry) bool {
		e.mu.Lock()
		if e.touched.Before(cutoff) && !e.gone {
			e.gone = true
			s.entries.Delete(key)
		}
		e.mu.Unlock()

		return true
	})
}
