// Package rules implements the closed set of rule evaluators. Each evaluator
// consumes a normalized message view plus the guild's configuration for its
// rule kind and returns a verdict; evaluators are pure except for the rate
// rules, which read and write the shared sliding-window counter.
package rules

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/automod/event"
	"github.com/wardenlabs/warden/internal/automod/window"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/setup/config"
)

// Verdict is the outcome of evaluating one rule against one message.
type Verdict struct {
	Matched bool
	Kind    types.RuleKind
	Reason  string
}

// Evaluator is implemented by every rule kind.
type Evaluator interface {
	// Kind identifies the rule this evaluator implements.
	Kind() types.RuleKind
	// Evaluate applies the rule to the message. cfg is the enabled guild
	// configuration for this rule kind and is never nil.
	Evaluate(ctx context.Context, view *event.MessageView, cfg *types.RuleConfig) Verdict
}

// Deps carries the shared dependencies handed to evaluators at construction.
type Deps struct {
	Counters window.Store
	Defaults config.Automod
	Logger   *zap.Logger
}

// NewSet builds the full evaluator set in fixed evaluation order. The word
// blacklist comes first since it also gates command execution; binary content
// rules precede the rate rules so a message receives at most one action.
func NewSet(deps Deps) []Evaluator {
	return []Evaluator{
		NewWords(deps),
		NewInvites(),
		NewLinks(),
		NewSpam(deps),
		NewRepeat(deps),
		NewCaps(),
		NewMentions(),
		NewEmojis(),
		NewImages(deps),
		NewSpoilers(),
		NewHeaders(),
	}
}

// defaultWindow returns the deployment default sliding window.
func (d Deps) defaultWindow() time.Duration {
	return time.Duration(d.Defaults.DefaultWindow) * time.Second
}
