package rules

import (
	"context"
	"fmt"

	"github.com/wardenlabs/warden/internal/automod/event"
	"github.com/wardenlabs/warden/internal/database/types"
)

// CapsRule flags messages with more uppercase characters than the threshold.
type CapsRule struct{}

func NewCaps() *CapsRule { return &CapsRule{} }

func (r *CapsRule) Kind() types.RuleKind { return types.RuleCaps }

func (r *CapsRule) Evaluate(_ context.Context, view *event.MessageView, cfg *types.RuleConfig) Verdict {
	count := countUppercase(view.Content)
	if count <= cfg.Threshold {
		return Verdict{Kind: r.Kind()}
	}

	return Verdict{
		Matched: true,
		Kind:    r.Kind(),
		Reason:  fmt.Sprintf("%d uppercase characters (limit %d)", count, cfg.Threshold),
	}
}

// MentionsRule flags messages mentioning more users than the threshold.
type MentionsRule struct{}

func NewMentions() *MentionsRule { return &MentionsRule{} }

func (r *MentionsRule) Kind() types.RuleKind { return types.RuleMentions }

func (r *MentionsRule) Evaluate(_ context.Context, view *event.MessageView, cfg *types.RuleConfig) Verdict {
	if view.MentionCount <= cfg.Threshold {
		return Verdict{Kind: r.Kind()}
	}

	return Verdict{
		Matched: true,
		Kind:    r.Kind(),
		Reason:  fmt.Sprintf("%d mentions (limit %d)", view.MentionCount, cfg.Threshold),
	}
}

// EmojisRule flags messages with more emojis than the threshold.
type EmojisRule struct{}

func NewEmojis() *EmojisRule { return &EmojisRule{} }

func (r *EmojisRule) Kind() types.RuleKind { return types.RuleEmojis }

func (r *EmojisRule) Evaluate(_ context.Context, view *event.MessageView, cfg *types.RuleConfig) Verdict {
	count := countEmojis(view.Content)
	if count <= cfg.Threshold {
		return Verdict{Kind: r.Kind()}
	}

	return Verdict{
		Matched: true,
		Kind:    r.Kind(),
		Reason:  fmt.Sprintf("%d emojis (limit %d)", count, cfg.Threshold),
	}
}

// SpoilersRule flags messages with more spoiler pairs than the threshold.
type SpoilersRule struct{}

func NewSpoilers() *SpoilersRule { return &SpoilersRule{} }

func (r *SpoilersRule) Kind() types.RuleKind { return types.RuleSpoilers }

func (r *SpoilersRule) Evaluate(_ context.Context, view *event.MessageView, cfg *types.RuleConfig) Verdict {
	count := countSpoilerPairs(view.Content)
	if count <= cfg.Threshold {
		return Verdict{Kind: r.Kind()}
	}

	return Verdict{
		Matched: true,
		Kind:    r.Kind(),
		Reason:  fmt.Sprintf("%d spoiler tags (limit %d)", count, cfg.Threshold),
	}
}

// HeadersRule flags messages with more markdown heading lines than the
// threshold.
type HeadersRule struct{}

func NewHeaders() *HeadersRule { return &HeadersRule{} }

func (r *HeadersRule) Kind() types.RuleKind { return types.RuleHeaders }

func (r *HeadersRule) Evaluate(_ context.Context, view *event.MessageView, cfg *types.RuleConfig) Verdict {
	count := countHeaders(view.Content)
	if count <= cfg.Threshold {
		return Verdict{Kind: r.Kind()}
	}

	return Verdict{
		Matched: true,
		Kind:    r.Kind(),
		Reason:  fmt.Sprintf("%d heading lines (limit %d)", count, cfg.Threshold),
	}
}
