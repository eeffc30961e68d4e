package automod_test

import (
	"context"

	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/automod"
	"github.com/wardenlabs/warden/internal/database/types"
)

func TestConfigCacheLoadsOnce(t *testing.T) {
	t.Parallel()

	store := &fakeSettingsStore{settings: map[uint64]*types.GuildSettings{}}
	cache := automod.NewConfigCache(store, time.Minute, zap.NewNop())
	defer cache.Close()

	ctx := context.Background()

	first, err := cache.Get(ctx, 300)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := cache.Get(ctx, 300)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, store.loadCount())

	// Different guilds load separately.
	_, err = cache.Get(ctx, 301)
	require.NoError(t, err)
	assert.Equal(t, 2, store.loadCount())
}

func TestConfigCacheConcurrentMissesShareOneLoad(t *testing.T) {
	t.Parallel()

	store := &fakeSettingsStore{settings: map[uint64]*types.GuildSettings{}}
	cache := automod.NewConfigCache(store, time.Minute, zap.NewNop())
	defer cache.Close()

	ctx := context.Background()

	const callers = 16

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
	)

	for _i := 0; _i < callers; _i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			<-start

			_, err := cache.Get(ctx, 300)
			assert.NoError(t, err)
		}()
	}

	close(start)
	wg.Wait()

	// Concurrent misses for the same guild collapse into very few store
	// reads. Callers that race ahead of the singleflight join may add one
	// or two extra loads, never one per caller.
	assert.Less(t, store.loadCount(), callers/2)
}

func TestConfigCacheInvalidate(t *testing.T) {
	t.Parallel()

	store := &fakeSettingsStore{settings: map[uint64]*types.GuildSettings{}}
	cache := automod.NewConfigCache(store, time.Minute, zap.NewNop())
	defer cache.Close()

	ctx := context.Background()

	_, err := cache.Get(ctx, 300)
	require.NoError(t, err)
	require.Equal(t, 1, store.loadCount())

	cache.Invalidate(300)

	// The next read goes back to the store.
	_, err = cache.Get(ctx, 300)
	require.NoError(t, err)
	assert.Equal(t, 2, store.loadCount())
}

func TestConfigCacheStoreErrorPropagates(t *testing.T) {
	t.Parallel()

	store := &fakeSettingsStore{settings: map[uint64]*types.GuildSettings{}, err: assert.AnError}
	cache := automod.NewConfigCache(store, time.Minute, zap.NewNop())
	defer cache.Close()

	_, err := cache.Get(context.Background(), 300)
	assert.Error(t, err)
}
