package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/automod/enforce"
	"github.com/wardenlabs/warden/internal/discord/rate"
)

// Executor issues moderation actions through the Discord REST API. Calls are
// paced by a jittered limiter and bounded by the caller's context; they are
// never retried here, the next violation retries naturally.
type Executor struct {
	client  bot.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewExecutor creates the Discord enforcement executor.
func NewExecutor(client bot.Client, logger *zap.Logger) *Executor {
	return &Executor{
		client:  client,
		limiter: rate.New(250*time.Millisecond, 100*time.Millisecond),
		logger:  logger.Named("executor"),
	}
}

// Mute times out the member using Discord's communication-disabled flag.
func (e *Executor) Mute(ctx context.Context, guildID, userID snowflake.ID, duration time.Duration) error {
	if err := e.limiter.WaitForNextSlot(ctx); err != nil {
		return fmt.Errorf("failed to acquire request slot: %w", err)
	}

	until := json.NewNullable(time.Now().Add(duration))

	_, err := e.client.Rest().UpdateMember(guildID, userID, discord.MemberUpdate{
		CommunicationDisabledUntil: &until,
	}, rest.WithCtx(ctx))
	if err != nil {
		return e.mapError("mute", err)
	}

	e.logger.Debug("Muted member",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Uint64("userID", uint64(userID)),
		zap.Duration("duration", duration))

	return nil
}

// DeleteMessage removes a single message.
func (e *Executor) DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error {
	if err := e.limiter.WaitForNextSlot(ctx); err != nil {
		return fmt.Errorf("failed to acquire request slot: %w", err)
	}

	if err := e.client.Rest().DeleteMessage(channelID, messageID, rest.WithCtx(ctx)); err != nil {
		return e.mapError("delete", err)
	}

	return nil
}

// SetSlowmode updates the channel's per-user message interval.
func (e *Executor) SetSlowmode(ctx context.Context, channelID snowflake.ID, seconds int) error {
	if err := e.limiter.WaitForNextSlot(ctx); err != nil {
		return fmt.Errorf("failed to acquire request slot: %w", err)
	}

	_, err := e.client.Rest().UpdateChannel(channelID, discord.GuildTextChannelUpdate{
		RateLimitPerUser: &seconds,
	}, rest.WithCtx(ctx))
	if err != nil {
		return e.mapError("slowmode", err)
	}

	e.logger.Debug("Updated channel slowmode",
		zap.Uint64("channelID", uint64(channelID)),
		zap.Int("seconds", seconds))

	return nil
}

// mapError translates Discord REST failures into the coordinator's error
// taxonomy: authorization failures escalate, missing targets are swallowed by
// reversal paths, everything else stays transient.
func (e *Executor) mapError(action string, err error) error {
	var restErr *rest.Error
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", action, enforce.ErrPermissionDenied)
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", action, enforce.ErrTargetNotFound)
		}
	}

	return fmt.Errorf("%s request failed: %w", action, err)
}
