// Package automod is the real-time moderation core: for every inbound message
// it decides, without blocking other traffic, whether a configured rule is
// violated and applies a bounded enforcement action at most once per cooldown
// window.
package automod

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/automod/enforce"
	"github.com/wardenlabs/warden/internal/automod/event"
	"github.com/wardenlabs/warden/internal/automod/exemption"
	"github.com/wardenlabs/warden/internal/automod/recovery"
	"github.com/wardenlabs/warden/internal/automod/rules"
	"github.com/wardenlabs/warden/internal/automod/window"
)

// Disposition is the terminal state of one pipeline run.
type Disposition string

const (
	// DispositionClean means no enabled rule matched.
	DispositionClean Disposition = "clean"
	// DispositionSuppressed means a rule matched but exemption or cooldown
	// prevented an action.
	DispositionSuppressed Disposition = "suppressed"
	// DispositionEnforced means an action was attempted, regardless of the
	// platform call's success.
	DispositionEnforced Disposition = "enforced"
)

// Engine runs the moderation pipeline: normalized message view in, at most one
// enforcement action out. Evaluators run in a fixed order and stop at the
// first actionable verdict.
type Engine struct {
	cache       *ConfigCache
	evaluators  []rules.Evaluator
	coordinator *enforce.Coordinator
	counters    window.Store
	recovery    *recovery.Scheduler
	workers     *pool.Pool
	logger      *zap.Logger
}

// NewEngine assembles the pipeline. maxWorkers bounds the number of messages
// processed concurrently; one subject's enforcement latency never stalls
// another's.
func NewEngine(
	cache *ConfigCache,
	evaluators []rules.Evaluator,
	coordinator *enforce.Coordinator,
	counters window.Store,
	scheduler *recovery.Scheduler,
	maxWorkers int,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		cache:       cache,
		evaluators:  evaluators,
		coordinator: coordinator,
		counters:    counters,
		recovery:    scheduler,
		workers:     pool.New().WithMaxGoroutines(maxWorkers),
		logger:      logger.Named("automod"),
	}
}

// ForgetGuild drops all runtime state held for a guild: cached settings,
// counters, and pending reversals. Called when the bot leaves a guild, where a
// scheduled reversal could no longer be applied anyway.
func (e *Engine) ForgetGuild(ctx context.Context, guildID snowflake.ID) {
	e.cache.Invalidate(uint64(guildID))
	e.recovery.CancelPrefix(enforce.GuildRecoveryPrefix(guildID))

	if err := e.counters.ResetGuild(ctx, uint64(guildID)); err != nil {
		e.logger.Warn("Failed to clear guild counters",
			zap.Uint64("guildID", uint64(guildID)), zap.Error(err))
	}

	e.logger.Debug("Dropped guild state", zap.Uint64("guildID", uint64(guildID)))
}

// Submit queues a message for asynchronous processing on the worker pool.
func (e *Engine) Submit(ctx context.Context, view *event.MessageView, snap *exemption.Snapshot) {
	e.workers.Go(func() {
		e.Process(ctx, view, snap)
	})
}

// Process runs the pipeline synchronously and returns its terminal state.
// It never propagates failures to the caller; unprocessable input is dropped
// with a diagnostic.
func (e *Engine) Process(ctx context.Context, view *event.MessageView, snap *exemption.Snapshot) Disposition {
	// Rule execution must never take down the event loop.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic during message evaluation",
				zap.Any("panic", r),
				zap.Uint64("guildID", uint64(view.GuildID)),
				zap.Uint64("messageID", uint64(view.MessageID)))
		}
	}()

	start := time.Now()
	eventType := "create"
	if view.Edited {
		eventType = "update"
	}

	defer func() {
		eventProcessDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		eventProcessCount.WithLabelValues(eventType).Inc()
	}()

	settings, err := e.cache.Get(ctx, uint64(view.GuildID))
	if err != nil {
		e.logger.Warn("Failed to load guild settings, dropping message",
			zap.Uint64("guildID", uint64(view.GuildID)), zap.Error(err))

		return DispositionClean
	}

	if settings == nil || !settings.HasEnabledRules() {
		return DispositionClean
	}

	// Feed the coarse guild-wide counter consulted for slowmode escalation.
	floodKey := window.GuildKey(enforce.FloodKeyPrefix, uint64(view.GuildID))
	if _, err := e.counters.Increment(ctx, floodKey); err != nil {
		e.logger.Warn("Failed to record guild flood counter",
			zap.Uint64("guildID", uint64(view.GuildID)), zap.Error(err))
	}

	for _, evaluator := range e.evaluators {
		cfg, ok := settings.Rule(evaluator.Kind())
		if !ok {
			continue
		}

		// Misconfigured thresholds degrade the rule to disabled rather
		// than matching everything.
		if evaluator.Kind().Thresholded() && cfg.Threshold <= 0 {
			e.logger.Warn("Rule has an invalid threshold, skipping",
				zap.String("rule", evaluator.Kind().String()),
				zap.Int("threshold", cfg.Threshold),
				zap.Uint64("guildID", uint64(view.GuildID)))

			continue
		}

		verdict := evaluator.Evaluate(ctx, view, cfg)
		if !verdict.Matched {
			continue
		}

		verdictCount.WithLabelValues(verdict.Kind.String()).Inc()

		outcome := e.coordinator.Enforce(ctx, view, verdict, snap, settings)
		if !outcome.Attempted {
			suppressedCount.WithLabelValues(verdict.Kind.String()).Inc()
			return DispositionSuppressed
		}

		if outcome.Applied {
			enforcementCount.WithLabelValues(verdict.Kind.String(), string(outcome.Action)).Inc()
		}

		e.logger.Debug("Message enforced",
			zap.String("rule", verdict.Kind.String()),
			zap.String("action", string(outcome.Action)),
			zap.Bool("applied", outcome.Applied),
			zap.Duration("took", time.Since(start)),
			zap.Uint64("guildID", uint64(view.GuildID)),
			zap.Uint64("messageID", uint64(view.MessageID)))

		// A single message receives at most one enforcement action.
		return DispositionEnforced
	}

	return DispositionClean
}

// Close waits for in-flight message processing to finish.
func (e *Engine) Close() {
	e.workers.Wait()
}
