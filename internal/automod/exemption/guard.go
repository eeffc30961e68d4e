// Package exemption decides whether an actor is immune to enforcement. The
// guard is a pure function over snapshots assembled by the gateway layer; it
// performs no I/O and holds no state of its own.
package exemption

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/database/types"
)

// Actor is a point-in-time snapshot of the member being evaluated.
type Actor struct {
	ID      snowflake.ID
	IsBot   bool
	IsOwner bool
	// Effective guild-level permissions of the actor.
	Permissions discord.Permissions
	RoleIDs     []snowflake.ID
	// Position of the actor's highest role. Higher means more senior.
	TopRolePosition int
}

// Snapshot carries everything the guard needs for one decision.
type Snapshot struct {
	Actor     Actor
	ChannelID snowflake.ID
	GuildID   snowflake.ID

	// The enforcing bot's own identity and rank in this guild.
	BotUserID          snowflake.ID
	BotTopRolePosition int
}

// Guard evaluates exemption and hierarchy protection.
type Guard struct {
	logger *zap.Logger
}

// NewGuard creates an exemption guard.
func NewGuard(logger *zap.Logger) *Guard {
	return &Guard{
		logger: logger.Named("exemption"),
	}
}

// IsExempt reports whether the actor, channel, or any of the actor's roles is
// immune to enforcement by the given subsystem. Hierarchy protection is a hard
// platform constraint: the bot may never act against an actor ranked at or
// above itself, regardless of configuration.
func (g *Guard) IsExempt(snap *Snapshot, settings *types.GuildSettings, subsystem types.ExemptionSubsystem) bool {
	actor := snap.Actor

	// The bot never enforces against itself, the guild owner, or other bots.
	if actor.ID == snap.BotUserID || actor.IsOwner || actor.IsBot {
		return true
	}

	// Moderation-bypass permissions.
	if actor.Permissions.Has(discord.PermissionAdministrator) ||
		actor.Permissions.Has(discord.PermissionManageGuild) {
		return true
	}

	// Hierarchy protection.
	if actor.TopRolePosition >= snap.BotTopRolePosition {
		g.logger.Debug("Actor outranks bot, skipping enforcement",
			zap.Uint64("guildID", uint64(snap.GuildID)),
			zap.Uint64("actorID", uint64(actor.ID)),
			zap.Int("actorRank", actor.TopRolePosition),
			zap.Int("botRank", snap.BotTopRolePosition))

		return true
	}

	set, ok := settings.Exemptions[subsystem]
	if !ok || set == nil {
		return false
	}

	if set.ContainsUser(uint64(actor.ID)) || set.ContainsChannel(uint64(snap.ChannelID)) {
		return true
	}

	roleIDs := make([]uint64, len(actor.RoleIDs))
	for i, id := range actor.RoleIDs {
		roleIDs[i] = uint64(id)
	}

	return set.ContainsAnyRole(roleIDs)
}
