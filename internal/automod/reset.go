package automod

import (
	"context"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/automod/window"
)

// GuildConfigStore is the write path the reset hook needs from the
// configuration store.
type GuildConfigStore interface {
	ResetGuildConfiguration(ctx context.Context, guildID uint64) error
}

// FilterResetter implements the coordinator's reset hook: it tears down a
// guild's filter configuration, invalidates the cache so no further message is
// evaluated against the stale rules, and clears the guild's counters so stale
// counts cannot feed rules that are re-enabled later. Pending slowmode
// reversals are left alone; a slowmode this bot applied must revert even after
// the configuration that caused it is gone.
type FilterResetter struct {
	store    GuildConfigStore
	cache    *ConfigCache
	counters window.Store
	logger   *zap.Logger
}

// NewFilterResetter creates the reset hook.
func NewFilterResetter(
	store GuildConfigStore, cache *ConfigCache, counters window.Store, logger *zap.Logger,
) *FilterResetter {
	return &FilterResetter{
		store:    store,
		cache:    cache,
		counters: counters,
		logger:   logger.Named("filter_reset"),
	}
}

// ResetFilterConfiguration removes every rule and exemption for the guild.
func (r *FilterResetter) ResetFilterConfiguration(ctx context.Context, guildID snowflake.ID) error {
	if err := r.store.ResetGuildConfiguration(ctx, uint64(guildID)); err != nil {
		return fmt.Errorf("failed to reset guild configuration: %w", err)
	}

	r.cache.Invalidate(uint64(guildID))

	if err := r.counters.ResetGuild(ctx, uint64(guildID)); err != nil {
		r.logger.Warn("Failed to clear guild counters after reset",
			zap.Uint64("guildID", uint64(guildID)), zap.Error(err))
	}

	r.logger.Warn("Guild filters torn down after enforcement failure",
		zap.Uint64("guildID", uint64(guildID)))

	return nil
}
