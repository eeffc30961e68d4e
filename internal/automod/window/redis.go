package window

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

const counterKeyPrefix = "automod:counter:"

// RedisStore implements Store on top of Redis so that multiple bot processes
// observe one shared enforcement state. FireOnce relies on SET NX with expiry,
// count queries on a sorted set of event timestamps trimmed on every write.
type RedisStore struct {
	client rueidis.Client

	// Overridable in tests.
	now func() time.Time
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(client rueidis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		now:    time.Now,
	}
}

// SetNowFunc overrides the store clock. Test hook.
func (s *RedisStore) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Increment records an event for the key and returns the retained event count.
func (s *RedisStore) Increment(ctx context.Context, key string) (int, error) {
	now := s.now()
	redisKey := counterKeyPrefix + key
	cutoff := now.Add(-maxRetention)

	// Members carry a random suffix so events in the same millisecond are
	// retained individually.
	member := fmt.Sprintf("%d:%s", now.UnixMilli(), uuid.New().String())

	resps := s.client.DoMulti(ctx,
		s.client.B().Zadd().Key(redisKey).ScoreMember().
			ScoreMember(float64(now.UnixMilli()), member).Build(),
		s.client.B().Zremrangebyscore().Key(redisKey).
			Min("-inf").Max(fmt.Sprintf("%d", cutoff.UnixMilli())).Build(),
		s.client.B().Expire().Key(redisKey).Seconds(int64(idleTTL.Seconds())).Build(),
		s.client.B().Zcard().Key(redisKey).Build(),
	)
	for _, resp := range resps[:3] {
		if err := resp.Error(); err != nil {
			return 0, fmt.Errorf("failed to record counter event: %w", err)
		}
	}

	count, err := resps[3].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("failed to read counter size: %w", err)
	}

	return int(count), nil
}

// CountInWindow returns the number of events within the trailing window.
func (s *RedisStore) CountInWindow(ctx context.Context, key string, window time.Duration) (int, error) {
	redisKey := counterKeyPrefix + key
	cutoff := s.now().Add(-window)

	count, err := s.client.Do(ctx, s.client.B().Zcount().Key(redisKey).
		Min(fmt.Sprintf("(%d", cutoff.UnixMilli())).Max("+inf").Build()).AsInt64()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to count window events: %w", err)
	}

	return int(count), nil
}

// FireOnce marks the key fired unless it already fired within the cooldown.
// SET NX with expiry makes the check-and-mark a single atomic Redis operation.
func (s *RedisStore) FireOnce(ctx context.Context, key string, cooldown time.Duration) (bool, error) {
	redisKey := counterKeyPrefix + key

	resp := s.client.Do(ctx, s.client.B().Set().Key(redisKey).Value("1").
		Nx().Px(cooldown).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			// NX miss: the key already fired within the cooldown.
			return false, nil
		}

		return false, fmt.Errorf("failed to mark key fired: %w", err)
	}

	return true, nil
}

// ResetGuild clears all counters and fired markers belonging to the guild.
// Counter keys start with the guild ID, so one SCAN pattern covers them all.
func (s *RedisStore) ResetGuild(ctx context.Context, guildID uint64) error {
	pattern := counterKeyPrefix + GuildPrefix(guildID) + "*"

	var cursor uint64
	for {
		scan, err := s.client.Do(ctx, s.client.B().Scan().Cursor(cursor).
			Match(pattern).Count(100).Build()).AsScanEntry()
		if err != nil {
			return fmt.Errorf("failed to scan guild counters: %w", err)
		}

		if len(scan.Elements) > 0 {
			if err := s.client.Do(ctx,
				s.client.B().Del().Key(scan.Elements...).Build()).Error(); err != nil {
				return fmt.Errorf("failed to delete guild counters: %w", err)
			}
		}

		cursor = scan.Cursor
		if cursor == 0 {
			return nil
		}
	}
}
