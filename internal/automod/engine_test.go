package automod_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/automod"
	"github.com/wardenlabs/warden/internal/automod/enforce"
	"github.com/wardenlabs/warden/internal/automod/event"
	"github.com/wardenlabs/warden/internal/automod/exemption"
	"github.com/wardenlabs/warden/internal/automod/recovery"
	"github.com/wardenlabs/warden/internal/automod/rules"
	"github.com/wardenlabs/warden/internal/automod/window"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/setup/config"
)

type fakeSettingsStore struct {
	mu       sync.Mutex
	settings map[uint64]*types.GuildSettings
	loads    int
	err      error
}

func (f *fakeSettingsStore) GetGuildSettings(_ context.Context, guildID uint64) (*types.GuildSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loads++
	if f.err != nil {
		return nil, f.err
	}

	if settings, ok := f.settings[guildID]; ok {
		return settings, nil
	}

	return &types.GuildSettings{
		GuildID:    guildID,
		Rules:      map[types.RuleKind]*types.RuleConfig{},
		Exemptions: map[types.ExemptionSubsystem]*types.ExemptionSet{},
	}, nil
}

func (f *fakeSettingsStore) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.loads
}

type recordingExecutor struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingExecutor) Mute(_ context.Context, guildID, userID snowflake.ID, duration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, fmt.Sprintf("mute:%d:%d:%s", guildID, userID, duration))

	return nil
}

func (r *recordingExecutor) DeleteMessage(_ context.Context, channelID, messageID snowflake.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, fmt.Sprintf("delete:%d:%d", channelID, messageID))

	return nil
}

func (r *recordingExecutor) SetSlowmode(_ context.Context, channelID snowflake.ID, seconds int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, fmt.Sprintf("slowmode:%d:%d", channelID, seconds))

	return nil
}

func (r *recordingExecutor) callList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

type noopResetter struct{}

func (noopResetter) ResetFilterConfiguration(context.Context, snowflake.ID) error { return nil }

type engineFixture struct {
	engine   *automod.Engine
	store    *fakeSettingsStore
	executor *recordingExecutor
	counters *window.MemoryStore
}

func setupEngine(t *testing.T, settings *types.GuildSettings) *engineFixture {
	t.Helper()

	store := &fakeSettingsStore{settings: map[uint64]*types.GuildSettings{}}
	if settings != nil {
		store.settings[settings.GuildID] = settings
	}

	logger := zap.NewNop()
	counters := window.NewMemoryStore()
	t.Cleanup(counters.Close)

	scheduler := recovery.NewScheduler(time.Second, logger)
	t.Cleanup(scheduler.Close)

	cache := automod.NewConfigCache(store, time.Minute, logger)
	t.Cleanup(cache.Close)

	defaults := config.Automod{
		DefaultWindow:    10,
		FireCooldown:     20,
		MuteDuration:     20,
		SpamMuteDuration: 120,
		SlowmodeSeconds:  5,
		SlowmodeRevert:   300,
		FloodThreshold:   30,
		FloodWindow:      10,
	}

	executor := &recordingExecutor{}
	coordinator := enforce.NewCoordinator(
		counters,
		exemption.NewGuard(logger),
		executor,
		noopResetter{},
		scheduler,
		defaults,
		time.Second,
		logger,
	)

	evaluators := rules.NewSet(rules.Deps{
		Counters: counters,
		Defaults: defaults,
		Logger:   logger,
	})

	engine := automod.NewEngine(cache, evaluators, coordinator, counters, scheduler, 4, logger)
	t.Cleanup(engine.Close)

	return &engineFixture{engine: engine, store: store, executor: executor, counters: counters}
}

func guildSettings(rules ...*types.RuleConfig) *types.GuildSettings {
	settings := &types.GuildSettings{
		GuildID:    300,
		Rules:      map[types.RuleKind]*types.RuleConfig{},
		Exemptions: map[types.ExemptionSubsystem]*types.ExemptionSet{},
	}
	for _, cfg := range rules {
		cfg.GuildID = 300
		settings.Rules[cfg.Kind] = cfg
	}

	return settings
}

func message(id uint64, content string) *event.MessageView {
	return &event.MessageView{
		MessageID: snowflake.ID(id),
		AuthorID:  100,
		ChannelID: 200,
		GuildID:   300,
		Content:   content,
		Timestamp: time.Now(),
	}
}

func memberSnapshot() *exemption.Snapshot {
	return &exemption.Snapshot{
		Actor:              exemption.Actor{ID: 100, TopRolePosition: 1},
		ChannelID:          200,
		GuildID:            300,
		BotUserID:          999,
		BotTopRolePosition: 10,
	}
}

func TestEngineSpamBurst(t *testing.T) {
	t.Parallel()

	f := setupEngine(t, guildSettings(
		&types.RuleConfig{Kind: types.RuleSpam, Enabled: true, Threshold: 8},
	))

	ctx := context.Background()

	// Eight messages inside the window pass; the ninth crosses the
	// threshold and mutes the author once.
	for i := 0; i < 8; i++ {
		disposition := f.engine.Process(ctx, message(uint64(i+1), "spam spam"), memberSnapshot())
		require.Equal(t, automod.DispositionClean, disposition, "message %d", i+1)
	}

	disposition := f.engine.Process(ctx, message(9, "spam spam"), memberSnapshot())
	assert.Equal(t, automod.DispositionEnforced, disposition)
	assert.Equal(t, []string{"mute:300:100:2m0s"}, f.executor.callList())

	// Further messages in the burst are inside the cooldown.
	disposition = f.engine.Process(ctx, message(10, "spam spam"), memberSnapshot())
	assert.Equal(t, automod.DispositionSuppressed, disposition)
	assert.Len(t, f.executor.callList(), 1)
}

func TestEngineExemptActorNeverActioned(t *testing.T) {
	t.Parallel()

	settings := guildSettings(
		&types.RuleConfig{Kind: types.RuleWords, Enabled: true, Words: []string{"badword"}},
		&types.RuleConfig{Kind: types.RuleSpam, Enabled: true, Threshold: 3},
	)
	f := setupEngine(t, settings)

	ctx := context.Background()
	snap := memberSnapshot()
	snap.Actor.IsOwner = true

	// A privileged actor flooding blacklisted content produces zero
	// platform actions.
	for i := 0; i < 10; i++ {
		disposition := f.engine.Process(ctx, message(uint64(i+1), "badword flood"), snap)
		assert.Equal(t, automod.DispositionSuppressed, disposition)
	}

	assert.Empty(t, f.executor.callList())
}

func TestEngineImageFloodSlowsChannel(t *testing.T) {
	t.Parallel()

	f := setupEngine(t, guildSettings(
		&types.RuleConfig{Kind: types.RuleImages, Enabled: true, Threshold: 5},
	))

	ctx := context.Background()

	upload := func(id uint64, n int) *event.MessageView {
		v := message(id, "")
		for _i := 0; _i < n; _i++ {
			v.Attachments = append(v.Attachments, event.Attachment{ContentType: "image/png"})
		}

		return v
	}

	require.Equal(t, automod.DispositionClean,
		f.engine.Process(ctx, upload(1, 3), memberSnapshot()))

	disposition := f.engine.Process(ctx, upload(2, 3), memberSnapshot())
	assert.Equal(t, automod.DispositionEnforced, disposition)
	assert.Equal(t, []string{"slowmode:200:5"}, f.executor.callList())
}

func TestEngineWordsPrecedeOtherRules(t *testing.T) {
	t.Parallel()

	f := setupEngine(t, guildSettings(
		&types.RuleConfig{Kind: types.RuleWords, Enabled: true, Words: []string{"badword"}},
		&types.RuleConfig{Kind: types.RuleLinks, Enabled: true},
	))

	ctx := context.Background()

	// A message violating both the blacklist and the link rule receives the
	// blacklist treatment: deletion plus mute, exactly one action chain.
	disposition := f.engine.Process(ctx,
		message(1, "badword https://example.com"), memberSnapshot())
	assert.Equal(t, automod.DispositionEnforced, disposition)
	assert.Equal(t, []string{"delete:200:1", "mute:300:100:20s"}, f.executor.callList())
}

func TestEngineNoEnabledRules(t *testing.T) {
	t.Parallel()

	f := setupEngine(t, nil)

	disposition := f.engine.Process(context.Background(), message(1, "anything"), memberSnapshot())
	assert.Equal(t, automod.DispositionClean, disposition)
	assert.Empty(t, f.executor.callList())
}

func TestEngineSettingsLoadFailureDropsMessage(t *testing.T) {
	t.Parallel()

	f := setupEngine(t, nil)
	f.store.err = errors.New("database unavailable")

	disposition := f.engine.Process(context.Background(), message(1, "anything"), memberSnapshot())
	assert.Equal(t, automod.DispositionClean, disposition)
	assert.Empty(t, f.executor.callList())
}

func TestEngineInvalidThresholdDisablesRule(t *testing.T) {
	t.Parallel()

	f := setupEngine(t, guildSettings(
		&types.RuleConfig{Kind: types.RuleCaps, Enabled: true, Threshold: 0},
	))

	disposition := f.engine.Process(context.Background(),
		message(1, "ALL CAPS EVERYTHING"), memberSnapshot())
	assert.Equal(t, automod.DispositionClean, disposition)
	assert.Empty(t, f.executor.callList())
}

func TestEngineForgetGuildDropsCachedSettings(t *testing.T) {
	t.Parallel()

	f := setupEngine(t, guildSettings(
		&types.RuleConfig{Kind: types.RuleLinks, Enabled: true},
	))

	ctx := context.Background()

	f.engine.Process(ctx, message(1, "hello"), memberSnapshot())
	f.engine.Process(ctx, message(2, "hello"), memberSnapshot())
	require.Equal(t, 1, f.store.loadCount())

	floodKey := window.GuildKey(enforce.FloodKeyPrefix, 300)
	count, err := f.counters.CountInWindow(ctx, floodKey, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	f.engine.ForgetGuild(ctx, 300)

	// Cached settings and counters both drop with the guild.
	count, err = f.counters.CountInWindow(ctx, floodKey, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	f.engine.Process(ctx, message(3, "hello"), memberSnapshot())
	assert.Equal(t, 2, f.store.loadCount())
}

func TestEngineSubmitProcessesAsynchronously(t *testing.T) {
	t.Parallel()

	f := setupEngine(t, guildSettings(
		&types.RuleConfig{Kind: types.RuleWords, Enabled: true, Words: []string{"badword"}},
	))

	ctx := context.Background()

	for i := 0; i < 4; i++ {
		f.engine.Submit(ctx, message(uint64(i+1), "badword"), memberSnapshot())
	}

	assert.Eventually(t, func() bool {
		return len(f.executor.callList()) > 0
	}, time.Second, 5*time.Millisecond)
}
