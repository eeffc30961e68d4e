package rules

import (
	"context"

	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/automod/event"
	"github.com/wardenlabs/warden/internal/database/types"
)

// WordsRule matches message content against the guild's word blacklist. It is
// evaluated before every other rule because a blacklisted message must also be
// blocked from command execution.
type WordsRule struct {
	logger *zap.Logger
}

func NewWords(deps Deps) *WordsRule {
	return &WordsRule{
		logger: deps.Logger.Named("rule_words"),
	}
}

func (r *WordsRule) Kind() types.RuleKind { return types.RuleWords }

func (r *WordsRule) Evaluate(_ context.Context, view *event.MessageView, cfg *types.RuleConfig) Verdict {
	if len(cfg.Words) == 0 {
		return Verdict{Kind: r.Kind()}
	}

	folded := foldContent(view.Content)

	for _, word := range cfg.Words {
		foldedWord := foldContent(word)
		if foldedWord == "" {
			continue
		}

		if containsAnyMarker(folded, []string{foldedWord}) {
			return Verdict{
				Matched: true,
				Kind:    r.Kind(),
				Reason:  "message contains a blacklisted word",
			}
		}
	}

	return Verdict{Kind: r.Kind()}
}
