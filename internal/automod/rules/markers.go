package rules

import (
	"context"

	"github.com/wardenlabs/warden/internal/automod/event"
	"github.com/wardenlabs/warden/internal/database/types"
)

// InvitesRule flags messages containing a Discord invite marker. The match is
// binary; the threshold is unused.
type InvitesRule struct{}

func NewInvites() *InvitesRule { return &InvitesRule{} }

func (r *InvitesRule) Kind() types.RuleKind { return types.RuleInvites }

func (r *InvitesRule) Evaluate(_ context.Context, view *event.MessageView, _ *types.RuleConfig) Verdict {
	if !containsAnyMarker(foldContent(view.Content), inviteMarkers) {
		return Verdict{Kind: r.Kind()}
	}

	return Verdict{
		Matched: true,
		Kind:    r.Kind(),
		Reason:  "message contains a server invite",
	}
}

// LinksRule flags messages containing a URL marker. The match is binary; the
// threshold is unused. Invite links are matched by the invites rule first, so
// a guild that allows links can still block invites.
type LinksRule struct{}

func NewLinks() *LinksRule { return &LinksRule{} }

func (r *LinksRule) Kind() types.RuleKind { return types.RuleLinks }

func (r *LinksRule) Evaluate(_ context.Context, view *event.MessageView, _ *types.RuleConfig) Verdict {
	if !containsAnyMarker(foldContent(view.Content), linkMarkers) {
		return Verdict{Kind: r.Kind()}
	}

	return Verdict{
		Matched: true,
		Kind:    r.Kind(),
		Reason:  "message contains a link",
	}
}
