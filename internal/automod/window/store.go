// Package window provides the sliding-window counter shared by rule
// evaluation and enforcement debounce. It is the only mutable state in the
// moderation core; everything else operates on per-call snapshots.
package window

import (
	"context"
	"fmt"
	"time"
)

// Store is the counter contract. Keys are opaque composite strings built with
// Key; entries expire on their own once inactive.
type Store interface {
	// Increment records an event for the key and returns the number of
	// events currently retained for it.
	Increment(ctx context.Context, key string) (int, error)
	// CountInWindow returns the number of events recorded for the key
	// within the trailing window.
	CountInWindow(ctx context.Context, key string, window time.Duration) (int, error)
	// FireOnce atomically marks the key as fired and returns true, unless
	// the key already fired within the cooldown, in which case it returns
	// false without side effects. Two concurrent callers for the same key
	// can never both observe true within one cooldown.
	FireOnce(ctx context.Context, key string, cooldown time.Duration) (bool, error)
	// ResetGuild drops every counter belonging to the guild. Used when a
	// guild's filters are torn down so stale counts cannot feed rules that
	// are re-enabled later.
	ResetGuild(ctx context.Context, guildID uint64) error
}

// Key builds a composite counter key. Keys start with the guild ID so that
// ResetGuild can match a guild's state by prefix. Subject is a user or channel
// ID depending on the rule's granularity.
func Key(rule string, guildID, subject uint64) string {
	return fmt.Sprintf("%d:%s:%d", guildID, rule, subject)
}

// GuildKey builds a counter key scoped to the whole guild.
func GuildKey(rule string, guildID uint64) string {
	return fmt.Sprintf("%d:%s", guildID, rule)
}

// GuildPrefix matches every counter key belonging to a guild.
func GuildPrefix(guildID uint64) string {
	return fmt.Sprintf("%d:", guildID)
}
