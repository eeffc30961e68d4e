package types

import (
	"time"

	"github.com/uptrace/bun"
)

// RuleKind identifies one automod rule subsystem.
type RuleKind string

const (
	RuleWords    RuleKind = "words"
	RuleInvites  RuleKind = "invites"
	RuleLinks    RuleKind = "links"
	RuleSpam     RuleKind = "spam"
	RuleRepeat   RuleKind = "repeat"
	RuleCaps     RuleKind = "caps"
	RuleMentions RuleKind = "mentions"
	RuleEmojis   RuleKind = "emojis"
	RuleImages   RuleKind = "images"
	RuleSpoilers RuleKind = "spoilers"
	RuleHeaders  RuleKind = "headers"
)

// AllRuleKinds lists every rule kind in fixed evaluation order. The word
// blacklist runs first because it also gates command execution; the remaining
// order is stable so a message always receives at most one enforcement action.
var AllRuleKinds = []RuleKind{
	RuleWords,
	RuleInvites,
	RuleLinks,
	RuleSpam,
	RuleRepeat,
	RuleCaps,
	RuleMentions,
	RuleEmojis,
	RuleImages,
	RuleSpoilers,
	RuleHeaders,
}

func (r RuleKind) String() string {
	return string(r)
}

// Thresholded reports whether the rule kind compares against a numeric
// threshold. The words, invites, and links rules match binarily.
func (r RuleKind) Thresholded() bool {
	switch r {
	case RuleWords, RuleInvites, RuleLinks:
		return false
	default:
		return true
	}
}

// RuleConfig stores the per-guild configuration of a single rule.
type RuleConfig struct {
	bun.BaseModel `bun:"table:guild_rules"`

	GuildID uint64   `bun:"guild_id,pk"`
	Kind    RuleKind `bun:"kind,pk"`
	Enabled bool     `bun:"enabled,notnull"`
	// Meaning depends on the rule kind: message count for rate rules,
	// character count for caps, token count for mentions/emojis, and so on.
	Threshold int `bun:"threshold,notnull"`
	// Sliding window for rate rules in seconds. Zero means the deployment
	// default applies.
	WindowSeconds int `bun:"window_seconds,notnull,default:0"`
	// Mute duration override in seconds. Zero means the deployment default.
	MuteSeconds int `bun:"mute_seconds,notnull,default:0"`
	// Blacklisted words; only used by the words rule.
	Words     []string  `bun:"words,array"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Window returns the rule's sliding window, falling back to the given default
// when the guild has not set one.
func (c *RuleConfig) Window(def time.Duration) time.Duration {
	if c.WindowSeconds <= 0 {
		return def
	}

	return time.Duration(c.WindowSeconds) * time.Second
}

// MuteDuration returns the rule's mute duration, falling back to the given
// default when the guild has not set one.
func (c *RuleConfig) MuteDuration(def time.Duration) time.Duration {
	if c.MuteSeconds <= 0 {
		return def
	}

	return time.Duration(c.MuteSeconds) * time.Second
}

// GuildSettings is the immutable-per-call snapshot of a guild's automod
// configuration handed to the evaluation pipeline. It is assembled from the
// database by the config cache and never mutated by the core.
type GuildSettings struct {
	GuildID    uint64
	Rules      map[RuleKind]*RuleConfig
	Exemptions map[ExemptionSubsystem]*ExemptionSet
}

// Rule returns the configuration for a rule kind if it is enabled.
func (s *GuildSettings) Rule(kind RuleKind) (*RuleConfig, bool) {
	cfg, ok := s.Rules[kind]
	if !ok || !cfg.Enabled {
		return nil, false
	}

	return cfg, true
}

// HasEnabledRules reports whether any rule is enabled for the guild.
func (s *GuildSettings) HasEnabledRules() bool {
	for _, cfg := range s.Rules {
		if cfg.Enabled {
			return true
		}
	}

	return false
}
