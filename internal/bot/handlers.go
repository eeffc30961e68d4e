package bot

import (
	"context"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/automod/event"
	"github.com/wardenlabs/warden/internal/automod/exemption"
)

// handleMessageCreate feeds new guild messages into the pipeline.
func (b *Bot) handleMessageCreate(e *events.GuildMessageCreate) {
	b.submit(e.GuildID, e.ChannelID, e.Message, false)
}

// handleMessageUpdate re-runs the pipeline over edited content.
func (b *Bot) handleMessageUpdate(e *events.GuildMessageUpdate) {
	b.submit(e.GuildID, e.ChannelID, e.Message, true)
}

// handleGuildLeave drops runtime state for a guild the bot can no longer act
// in. Pending slowmode reversals would fail without membership.
func (b *Bot) handleGuildLeave(e *events.GuildLeave) {
	b.engine.ForgetGuild(context.Background(), e.GuildID)
}

func (b *Bot) submit(guildID, channelID snowflake.ID, msg discord.Message, edited bool) {
	// The bot's own traffic is never evaluated.
	if selfUser, ok := b.client.Caches().SelfUser(); ok && msg.Author.ID == selfUser.ID {
		return
	}

	snap, ok := b.buildSnapshot(guildID, channelID, msg)
	if !ok {
		// Webhook traffic and uncached members cannot be evaluated
		// against the permission hierarchy; drop with a diagnostic.
		b.logger.Debug("Dropping message without resolvable member",
			zap.Uint64("guildID", uint64(guildID)),
			zap.Uint64("messageID", uint64(msg.ID)))

		return
	}

	b.engine.Submit(context.Background(), buildView(guildID, channelID, msg, edited), snap)
}

// buildView normalizes a gateway message into the ephemeral view the rule
// evaluators consume.
func buildView(guildID, channelID snowflake.ID, msg discord.Message, edited bool) *event.MessageView {
	attachments := make([]event.Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		contentType := ""
		if a.ContentType != nil {
			contentType = *a.ContentType
		}

		attachments = append(attachments, event.Attachment{ContentType: contentType})
	}

	return &event.MessageView{
		MessageID:    msg.ID,
		AuthorID:     msg.Author.ID,
		ChannelID:    channelID,
		GuildID:      guildID,
		Content:      msg.Content,
		Attachments:  attachments,
		MentionCount: len(msg.Mentions),
		Timestamp:    msg.ID.Time(),
		Edited:       edited,
	}
}

// buildSnapshot captures the actor's permissions and rank plus the bot's own
// rank so the exemption guard can run as a pure function.
func (b *Bot) buildSnapshot(guildID, channelID snowflake.ID, msg discord.Message) (*exemption.Snapshot, bool) {
	caches := b.client.Caches()

	member := msg.Member
	if member == nil {
		if cached, ok := caches.Member(guildID, msg.Author.ID); ok {
			member = &cached
		} else {
			return nil, false
		}
	}

	selfUser, ok := caches.SelfUser()
	if !ok {
		return nil, false
	}

	isOwner := false
	if guild, ok := caches.Guild(guildID); ok {
		isOwner = guild.OwnerID == msg.Author.ID
	}

	botRank := 0
	if botMember, ok := caches.Member(guildID, selfUser.ID); ok {
		botRank = b.topRolePosition(guildID, botMember.RoleIDs)
	}

	actorMember := *member
	actorMember.GuildID = guildID

	return &exemption.Snapshot{
		Actor: exemption.Actor{
			ID:              msg.Author.ID,
			IsBot:           msg.Author.Bot,
			IsOwner:         isOwner,
			Permissions:     caches.MemberPermissions(actorMember),
			RoleIDs:         member.RoleIDs,
			TopRolePosition: b.topRolePosition(guildID, member.RoleIDs),
		},
		ChannelID:          channelID,
		GuildID:            guildID,
		BotUserID:          selfUser.ID,
		BotTopRolePosition: botRank,
	}, true
}

// topRolePosition returns the position of the member's highest role.
func (b *Bot) topRolePosition(guildID snowflake.ID, roleIDs []snowflake.ID) int {
	top := 0
	for _, roleID := range roleIDs {
		if role, ok := b.client.Caches().Role(guildID, roleID); ok && role.Position > top {
			top = role.Position
		}
	}

	return top
}
