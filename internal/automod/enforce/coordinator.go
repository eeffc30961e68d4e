// Package enforce turns rule verdicts into bounded moderation actions. The
// coordinator owns the anti-duplication gate: for any subject and rule kind,
// at most one action is issued per cooldown window, under arbitrary
// concurrency.
package enforce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/automod/event"
	"github.com/wardenlabs/warden/internal/automod/exemption"
	"github.com/wardenlabs/warden/internal/automod/recovery"
	"github.com/wardenlabs/warden/internal/automod/rules"
	"github.com/wardenlabs/warden/internal/automod/window"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/setup/config"
)

// ActionKind identifies the moderation action issued for a violation.
type ActionKind string

const (
	ActionNone     ActionKind = "none"
	ActionMute     ActionKind = "mute"
	ActionSlowmode ActionKind = "slowmode"
)

// Outcome reports what the coordinator did with a verdict.
type Outcome struct {
	// Attempted is true when an action was selected and issued against the
	// platform; the cooldown slot is consumed either way.
	Attempted bool
	// Applied is true when the primary platform call succeeded. A failed
	// call is logged and left unapplied; the next violation retries
	// naturally once the cooldown lapses.
	Applied bool
	Action  ActionKind
	// DeletedMessage is true when the offending message was removed in
	// addition to the primary action.
	DeletedMessage bool
	// RecordID correlates log lines emitted for this enforcement.
	RecordID uuid.UUID
}

// FloodKeyPrefix scopes the guild-wide message counter consulted for slowmode
// escalation. The engine increments it for every evaluated message.
const FloodKeyPrefix = "flood"

// Coordinator applies the cooldown gate, consults the exemption guard, issues
// the selected action, and schedules reversal of temporary side effects.
type Coordinator struct {
	counters window.Store
	guard    *exemption.Guard
	executor Executor
	resetter ResetHook
	recovery *recovery.Scheduler
	defaults config.Automod
	timeout  time.Duration
	logger   *zap.Logger
}

// NewCoordinator creates an enforcement coordinator. timeout bounds each
// executor call.
func NewCoordinator(
	counters window.Store,
	guard *exemption.Guard,
	executor Executor,
	resetter ResetHook,
	scheduler *recovery.Scheduler,
	defaults config.Automod,
	timeout time.Duration,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		counters: counters,
		guard:    guard,
		executor: executor,
		resetter: resetter,
		recovery: scheduler,
		defaults: defaults,
		timeout:  timeout,
		logger:   logger.Named("enforce"),
	}
}

// Enforce handles one positive verdict. Repeating the call for the same
// subject and rule inside the cooldown window is a no-op.
func (c *Coordinator) Enforce(
	ctx context.Context,
	view *event.MessageView,
	verdict rules.Verdict,
	snap *exemption.Snapshot,
	settings *types.GuildSettings,
) Outcome {
	if !verdict.Matched {
		return Outcome{Action: ActionNone}
	}

	// Exemption and hierarchy checks come first so privileged actors never
	// consume a cooldown slot.
	if c.guard.IsExempt(snap, settings, types.SubsystemForRule(verdict.Kind)) {
		return Outcome{Action: ActionNone}
	}

	cfg, ok := settings.Rule(verdict.Kind)
	if !ok {
		return Outcome{Action: ActionNone}
	}

	subjectKey := c.subjectKey(view, verdict.Kind)
	cooldown := c.cooldown(verdict.Kind, cfg)

	// The critical anti-duplication gate: concurrent verdicts for the same
	// subject resolve to exactly one action per window.
	fired, err := c.counters.FireOnce(ctx, subjectKey, cooldown)
	if err != nil {
		c.logger.Warn("Failed to check enforcement cooldown",
			zap.String("subjectKey", subjectKey), zap.Error(err))

		return Outcome{Action: ActionNone}
	}

	if !fired {
		return Outcome{Action: ActionNone}
	}

	outcome := c.apply(ctx, view, verdict, cfg)

	c.logger.Info("Enforcement decided",
		zap.String("recordID", outcome.RecordID.String()),
		zap.String("rule", verdict.Kind.String()),
		zap.String("reason", verdict.Reason),
		zap.String("action", string(outcome.Action)),
		zap.Bool("applied", outcome.Applied),
		zap.Uint64("guildID", uint64(view.GuildID)),
		zap.Uint64("channelID", uint64(view.ChannelID)),
		zap.Uint64("authorID", uint64(view.AuthorID)))

	return outcome
}

// apply selects and issues the action for a fired verdict.
func (c *Coordinator) apply(
	ctx context.Context, view *event.MessageView, verdict rules.Verdict, cfg *types.RuleConfig,
) Outcome {
	outcome := Outcome{Attempted: true, RecordID: uuid.New()}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch verdict.Kind {
	case types.RuleImages:
		// Media flooding is a channel-scoped violation; the channel gets
		// a temporary slowmode instead of the uploader a mute.
		outcome.Action = ActionSlowmode
		outcome.Applied = c.applySlowmode(ctx, view)

	default:
		outcome.Action = ActionMute

		if verdict.Kind == types.RuleWords {
			// The blacklisted message itself is removed; failures only
			// cost the deletion, not the mute.
			if err := c.executor.DeleteMessage(ctx, view.ChannelID, view.MessageID); err != nil {
				c.handleExecutorError(ctx, view.GuildID, "delete", err)
			} else {
				outcome.DeletedMessage = true
			}
		}

		duration := cfg.MuteDuration(c.muteDefault(verdict.Kind))
		if err := c.executor.Mute(ctx, view.GuildID, view.AuthorID, duration); err != nil {
			c.handleExecutorError(ctx, view.GuildID, "mute", err)
		} else {
			outcome.Applied = true
		}

		// A guild-wide message flood escalates a spam violation into a
		// channel slowmode on top of the mute.
		if verdict.Kind == types.RuleSpam && c.floodExceeded(ctx, view.GuildID) {
			c.applySlowmode(ctx, view)
		}
	}

	return outcome
}

// applySlowmode sets the temporary slowmode and schedules its reversal. It
// reports whether the slowmode was actually set.
func (c *Coordinator) applySlowmode(ctx context.Context, view *event.MessageView) bool {
	seconds := c.defaults.SlowmodeSeconds

	if err := c.executor.SetSlowmode(ctx, view.ChannelID, seconds); err != nil {
		c.handleExecutorError(ctx, view.GuildID, "slowmode", err)
		return false
	}

	channelID := view.ChannelID
	revertAfter := time.Duration(c.defaults.SlowmodeRevert) * time.Second

	c.recovery.ScheduleReversal(SlowmodeKey(view.GuildID, view.ChannelID), revertAfter,
		func(ctx context.Context) error {
			err := c.executor.SetSlowmode(ctx, channelID, 0)
			if errors.Is(err, ErrTargetNotFound) {
				// Channel is gone; nothing to revert.
				return nil
			}

			return err
		})

	return true
}

// handleExecutorError contains all executor failures. Authorization failures
// escalate into a full filter reset for the guild; transient failures and
// timeouts are logged and dropped, the next violation retries naturally.
func (c *Coordinator) handleExecutorError(ctx context.Context, guildID snowflake.ID, action string, err error) {
	if errors.Is(err, ErrPermissionDenied) {
		c.logger.Error("Platform denied enforcement, resetting guild filters",
			zap.Uint64("guildID", uint64(guildID)),
			zap.String("action", action),
			zap.Error(err))

		if resetErr := c.resetter.ResetFilterConfiguration(ctx, guildID); resetErr != nil {
			c.logger.Error("Failed to reset guild filter configuration",
				zap.Uint64("guildID", uint64(guildID)), zap.Error(resetErr))
		}

		return
	}

	c.logger.Warn("Enforcement action failed",
		zap.Uint64("guildID", uint64(guildID)),
		zap.String("action", action),
		zap.Error(err))
}

// floodExceeded consults the coarse guild-wide message counter.
func (c *Coordinator) floodExceeded(ctx context.Context, guildID snowflake.ID) bool {
	key := window.GuildKey(FloodKeyPrefix, uint64(guildID))
	floodWindow := time.Duration(c.defaults.FloodWindow) * time.Second

	count, err := c.counters.CountInWindow(ctx, key, floodWindow)
	if err != nil {
		c.logger.Warn("Failed to read flood counter",
			zap.Uint64("guildID", uint64(guildID)), zap.Error(err))

		return false
	}

	return count > c.defaults.FloodThreshold
}

// subjectKey identifies the debounce subject for a rule kind.
func (c *Coordinator) subjectKey(view *event.MessageView, kind types.RuleKind) string {
	if kind == types.RuleImages {
		return window.Key("fired:"+kind.String(), uint64(view.GuildID), uint64(view.ChannelID))
	}

	return window.Key("fired:"+kind.String(), uint64(view.GuildID), uint64(view.AuthorID))
}

// cooldown is the debounce window for a rule: the mute duration for targeted
// rules (a muted actor cannot re-violate anyway), the slowmode revert delay
// for channel-scoped rules, floored by the deployment fire cooldown.
func (c *Coordinator) cooldown(kind types.RuleKind, cfg *types.RuleConfig) time.Duration {
	floor := time.Duration(c.defaults.FireCooldown) * time.Second

	var d time.Duration

	switch kind {
	case types.RuleImages:
		d = time.Duration(c.defaults.SlowmodeRevert) * time.Second
	default:
		d = cfg.MuteDuration(c.muteDefault(kind))
	}

	if d < floor {
		return floor
	}

	return d
}

// muteDefault is the deployment default mute duration for a rule kind.
func (c *Coordinator) muteDefault(kind types.RuleKind) time.Duration {
	switch kind {
	case types.RuleSpam, types.RuleRepeat:
		return time.Duration(c.defaults.SpamMuteDuration) * time.Second
	default:
		return time.Duration(c.defaults.MuteDuration) * time.Second
	}
}

// SlowmodeKey identifies a pending slowmode reversal.
func SlowmodeKey(guildID, channelID snowflake.ID) string {
	return fmt.Sprintf("slowmode:%d:%d", uint64(guildID), uint64(channelID))
}

// GuildRecoveryPrefix matches every pending reversal belonging to a guild.
func GuildRecoveryPrefix(guildID snowflake.ID) string {
	return fmt.Sprintf("slowmode:%d:", uint64(guildID))
}
