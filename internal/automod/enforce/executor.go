package enforce

import (
	"context"
	"errors"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Executor issues moderation actions against the chat platform. All calls are
// fallible, never retried, and bounded by the caller's context deadline; a
// timeout counts as an enforcement failure, not as "no violation".
type Executor interface {
	// Mute times out the actor for the given duration.
	Mute(ctx context.Context, guildID, userID snowflake.ID, duration time.Duration) error
	// DeleteMessage removes a single message.
	DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error
	// SetSlowmode sets the channel's per-user message interval. Zero
	// disables slowmode.
	SetSlowmode(ctx context.Context, channelID snowflake.ID, seconds int) error
}

// ResetHook tears down a guild's filter configuration. Invoked when the
// platform denies an enforcement action: a filter that cannot enforce is worse
// than none.
type ResetHook interface {
	ResetFilterConfiguration(ctx context.Context, guildID snowflake.ID) error
}

// ErrPermissionDenied is returned by an Executor when the platform rejects an
// action for lack of authorization. The coordinator escalates it by resetting
// the guild's filters.
var ErrPermissionDenied = errors.New("platform denied the enforcement action")

// ErrTargetNotFound is returned by an Executor when the target of an action no
// longer exists. Reversal attempts swallow it.
var ErrTargetNotFound = errors.New("enforcement target not found")
