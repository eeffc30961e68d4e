package automod

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/pkg/utils"
)

// SettingsStore is the read API of the external configuration store.
type SettingsStore interface {
	GetGuildSettings(ctx context.Context, guildID uint64) (*types.GuildSettings, error)
}

// ConfigCache caches guild settings in memory. It is injected explicitly
// rather than held as a process singleton; configuration writers invalidate
// the affected guild, so cached entries never outlive a write by more than
// the TTL.
type ConfigCache struct {
	store  SettingsStore
	cache  *utils.TTLMap[uint64, *types.GuildSettings]
	group  singleflight.Group
	logger *zap.Logger
}

// NewConfigCache creates a cache over the given store with the given TTL.
func NewConfigCache(store SettingsStore, ttl time.Duration, logger *zap.Logger) *ConfigCache {
	return &ConfigCache{
		store:  store,
		cache:  utils.NewTTLMap[uint64, *types.GuildSettings](ttl),
		logger: logger.Named("config_cache"),
	}
}

// Get returns the guild's settings, loading them from the store on a miss.
// Concurrent misses for the same guild share one load.
func (c *ConfigCache) Get(ctx context.Context, guildID uint64) (*types.GuildSettings, error) {
	if settings, ok := c.cache.Get(guildID); ok {
		configCacheHits.Inc()
		return settings, nil
	}

	configCacheMisses.Inc()

	result, err, _ := c.group.Do(strconv.FormatUint(guildID, 10), func() (any, error) {
		settings, err := c.store.GetGuildSettings(ctx, guildID)
		if err != nil {
			return nil, fmt.Errorf("failed to load guild settings: %w", err)
		}

		c.cache.Set(guildID, settings)

		return settings, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*types.GuildSettings), nil
}

// Invalidate drops the cached settings for a guild. Called on every
// configuration write.
func (c *ConfigCache) Invalidate(guildID uint64) {
	c.cache.Delete(guildID)
	c.logger.Debug("Invalidated guild settings", zap.Uint64("guildID", guildID))
}

// Close stops the cache's background cleanup.
func (c *ConfigCache) Close() {
	c.cache.Stop()
}
