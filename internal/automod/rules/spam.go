package rules

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/automod/event"
	"github.com/wardenlabs/warden/internal/automod/window"
	"github.com/wardenlabs/warden/internal/database/types"
)

// SpamRule flags a user sending more messages than the threshold within the
// sliding window. Every evaluated message is recorded against the user's
// counter key before the count is compared.
type SpamRule struct {
	counters window.Store
	deps     Deps
	logger   *zap.Logger
}

func NewSpam(deps Deps) *SpamRule {
	return &SpamRule{
		counters: deps.Counters,
		deps:     deps,
		logger:   deps.Logger.Named("rule_spam"),
	}
}

func (r *SpamRule) Kind() types.RuleKind { return types.RuleSpam }

func (r *SpamRule) Evaluate(ctx context.Context, view *event.MessageView, cfg *types.RuleConfig) Verdict {
	key := window.Key(r.Kind().String(), uint64(view.GuildID), uint64(view.AuthorID))

	if _, err := r.counters.Increment(ctx, key); err != nil {
		// Counter failures degrade the rule to disabled rather than
		// crashing the pipeline.
		r.logger.Warn("Failed to record message for spam counter",
			zap.String("key", key), zap.Error(err))

		return Verdict{Kind: r.Kind()}
	}

	count, err := r.counters.CountInWindow(ctx, key, cfg.Window(r.deps.defaultWindow()))
	if err != nil {
		r.logger.Warn("Failed to read spam counter",
			zap.String("key", key), zap.Error(err))

		return Verdict{Kind: r.Kind()}
	}

	if count <= cfg.Threshold {
		return Verdict{Kind: r.Kind()}
	}

	return Verdict{
		Matched: true,
		Kind:    r.Kind(),
		Reason:  fmt.Sprintf("%d messages within the window (limit %d)", count, cfg.Threshold),
	}
}

// RepeatRule flags a user repeating near-identical content within the sliding
// window. Counting is keyed by a normalized content hash, so a changed message
// starts a fresh run.
type RepeatRule struct {
	counters window.Store
	deps     Deps
	logger   *zap.Logger
}

func NewRepeat(deps Deps) *RepeatRule {
	return &RepeatRule{
		counters: deps.Counters,
		deps:     deps,
		logger:   deps.Logger.Named("rule_repeat"),
	}
}

func (r *RepeatRule) Kind() types.RuleKind { return types.RuleRepeat }

func (r *RepeatRule) Evaluate(ctx context.Context, view *event.MessageView, cfg *types.RuleConfig) Verdict {
	if view.Content == "" {
		return Verdict{Kind: r.Kind()}
	}

	key := fmt.Sprintf("%s:%s",
		window.Key(r.Kind().String(), uint64(view.GuildID), uint64(view.AuthorID)),
		repeatHash(view.Content))

	if _, err := r.counters.Increment(ctx, key); err != nil {
		r.logger.Warn("Failed to record message for repeat counter",
			zap.String("key", key), zap.Error(err))

		return Verdict{Kind: r.Kind()}
	}

	count, err := r.counters.CountInWindow(ctx, key, cfg.Window(r.deps.defaultWindow()))
	if err != nil {
		r.logger.Warn("Failed to read repeat counter",
			zap.String("key", key), zap.Error(err))

		return Verdict{Kind: r.Kind()}
	}

	if count <= cfg.Threshold {
		return Verdict{Kind: r.Kind()}
	}

	return Verdict{
		Matched: true,
		Kind:    r.Kind(),
		Reason:  fmt.Sprintf("%d near-identical messages within the window (limit %d)", count, cfg.Threshold),
	}
}

// ImagesRule flags media attachment flooding: more image or video uploads in
// the channel than the threshold within the sliding window. A single large
// upload does not trigger it.
type ImagesRule struct {
	counters window.Store
	deps     Deps
	logger   *zap.Logger
}

func NewImages(deps Deps) *ImagesRule {
	return &ImagesRule{
		counters: deps.Counters,
		deps:     deps,
		logger:   deps.Logger.Named("rule_images"),
	}
}

func (r *ImagesRule) Kind() types.RuleKind { return types.RuleImages }

func (r *ImagesRule) Evaluate(ctx context.Context, view *event.MessageView, cfg *types.RuleConfig) Verdict {
	media := view.MediaCount()
	if media == 0 {
		return Verdict{Kind: r.Kind()}
	}

	key := window.Key(r.Kind().String(), uint64(view.GuildID), uint64(view.ChannelID))

	for i := 0; i < media; i++ {
		if _, err := r.counters.Increment(ctx, key); err != nil {
			r.logger.Warn("Failed to record media upload",
				zap.String("key", key), zap.Error(err))

			return Verdict{Kind: r.Kind()}
		}
	}

	count, err := r.counters.CountInWindow(ctx, key, cfg.Window(r.deps.defaultWindow()))
	if err != nil {
		r.logger.Warn("Failed to read media counter",
			zap.String("key", key), zap.Error(err))

		return Verdict{Kind: r.Kind()}
	}

	if count <= cfg.Threshold {
		return Verdict{Kind: r.Kind()}
	}

	return Verdict{
		Matched: true,
		Kind:    r.Kind(),
		Reason:  fmt.Sprintf("%d media uploads within the window (limit %d)", count, cfg.Threshold),
	}
}
