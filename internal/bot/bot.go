// Package bot wires the moderation engine to the Discord gateway: it builds
// normalized message views and exemption snapshots from gateway events and
// hands them to the automod engine.
package bot

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/automod"
)

// Bot owns the Discord client and forwards message traffic to the engine.
type Bot struct {
	client bot.Client
	engine *automod.Engine
	logger *zap.Logger
}

// New initializes a Bot instance and configures the Discord client with the
// gateway intents and caches the moderation pipeline needs. The message
// content intent is required for rule evaluation; guild, role, and member
// caches feed the exemption snapshots. The engine is attached separately
// because its executor needs the client this constructor creates.
func New(token string, logger *zap.Logger) (*Bot, error) {
	b := &Bot{
		logger: logger.Named("bot"),
	}

	client, err := disgo.New(token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentGuildMembers,
				gateway.IntentMessageContent,
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(
				cache.FlagGuilds,
				cache.FlagRoles,
				cache.FlagMembers,
				cache.FlagChannels,
			),
		),
		bot.WithEventListeners(&events.ListenerAdapter{
			OnGuildMessageCreate: b.handleMessageCreate,
			OnGuildMessageUpdate: b.handleMessageUpdate,
			OnGuildLeave:         b.handleGuildLeave,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord client: %w", err)
	}

	b.client = client

	return b, nil
}

// AttachEngine wires the moderation engine. Must be called before Start.
func (b *Bot) AttachEngine(engine *automod.Engine) {
	b.engine = engine
}

// Client exposes the underlying Discord client for executor construction.
func (b *Bot) Client() bot.Client {
	return b.client
}

// Start opens the gateway connection.
func (b *Bot) Start(ctx context.Context) error {
	if b.engine == nil {
		return fmt.Errorf("no engine attached")
	}

	b.logger.Info("Starting bot")
	return b.client.OpenGateway(ctx)
}

// Close gracefully shuts down the gateway connection and waits for in-flight
// message processing to finish.
func (b *Bot) Close() {
	b.logger.Info("Closing bot")
	b.client.Close(context.Background())
	b.engine.Close()
}
