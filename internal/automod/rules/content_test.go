package rules_test

import (
	"context"

	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/automod/event"
	"github.com/wardenlabs/warden/internal/automod/rules"
	"github.com/wardenlabs/warden/internal/automod/window"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/setup/config"
)

func testDeps(t *testing.T) rules.Deps {
	t.Helper()

	store := window.NewMemoryStore()
	t.Cleanup(store.Close)

	return rules.Deps{
		Counters: store,
		Defaults: config.Automod{DefaultWindow: 10},
		Logger:   zap.NewNop(),
	}
}

func view(content string) *event.MessageView {
	return &event.MessageView{
		MessageID: 1,
		AuthorID:  2,
		ChannelID: 3,
		GuildID:   4,
		Content:   content,
	}
}

func TestCapsRule(t *testing.T) {
	t.Parallel()

	rule := rules.NewCaps()
	cfg := &types.RuleConfig{Kind: types.RuleCaps, Enabled: true, Threshold: 10}

	tests := []struct {
		name    string
		content string
		matched bool
	}{
		{"lowercase message", "hello there, nothing shouty", false},
		{"exactly at threshold", "ABCDEFGHIJ", false},
		{"over threshold", "STOP SHOUTING AT EVERYONE", true},
		{"uppercase spread through text", "ThIs Is MiXeD BUT HAS LOTS", true},
		{"non-letter characters ignored", "1234567890!!!???", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verdict := rule.Evaluate(context.Background(), view(tt.content), cfg)
			assert.Equal(t, tt.matched, verdict.Matched)
			assert.Equal(t, types.RuleCaps, verdict.Kind)
		})
	}
}

func TestMentionsRule(t *testing.T) {
	t.Parallel()

	rule := rules.NewMentions()
	cfg := &types.RuleConfig{Kind: types.RuleMentions, Enabled: true, Threshold: 3}

	v := view("hi everyone")
	v.MentionCount = 3
	assert.False(t, rule.Evaluate(context.Background(), v, cfg).Matched)

	v.MentionCount = 4
	assert.True(t, rule.Evaluate(context.Background(), v, cfg).Matched)
}

func TestEmojisRule(t *testing.T) {
	t.Parallel()

	rule := rules.NewEmojis()
	cfg := &types.RuleConfig{Kind: types.RuleEmojis, Enabled: true, Threshold: 4}

	tests := []struct {
		name    string
		content string
		matched bool
	}{
		{"no emojis", "plain text only", false},
		{"few unicode emojis", "nice 😀😀😀", false},
		{"many unicode emojis", "😀😁😂🤣😃😄", true},
		{"custom emojis counted", "<:pog:123><:pog:123><:pog:123><a:spin:456><a:spin:456>", true},
		{"mixed custom and unicode", "😀😀<:pog:123><:pog:123><:pog:123>", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verdict := rule.Evaluate(context.Background(), view(tt.content), cfg)
			assert.Equal(t, tt.matched, verdict.Matched)
		})
	}
}

func TestSpoilersRule(t *testing.T) {
	t.Parallel()

	rule := rules.NewSpoilers()
	cfg := &types.RuleConfig{Kind: types.RuleSpoilers, Enabled: true, Threshold: 2}

	tests := []struct {
		name    string
		content string
		matched bool
	}{
		{"no spoilers", "nothing hidden here", false},
		{"at threshold", "||one|| and ||two||", false},
		{"over threshold", "||a|| ||b|| ||c||", true},
		{"unclosed delimiter does not count", "||a|| ||b|| ||dangling", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verdict := rule.Evaluate(context.Background(), view(tt.content), cfg)
			assert.Equal(t, tt.matched, verdict.Matched)
		})
	}
}

func TestHeadersRule(t *testing.T) {
	t.Parallel()

	rule := rules.NewHeaders()
	cfg := &types.RuleConfig{Kind: types.RuleHeaders, Enabled: true, Threshold: 2}

	tests := []struct {
		name    string
		content string
		matched bool
	}{
		{"no headings", "regular prose\nacross lines", false},
		{"at threshold", "# one\n## two", false},
		{"over threshold", "# one\n## two\n### three", true},
		{"hash without space is not a heading", "#tag\n#another\n#third", false},
		{"mid-line hash is not a heading", "see issue # 1\nsee issue # 2\nsee issue # 3", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verdict := rule.Evaluate(context.Background(), view(tt.content), cfg)
			assert.Equal(t, tt.matched, verdict.Matched)
		})
	}
}

func TestInvitesRule(t *testing.T) {
	t.Parallel()

	rule := rules.NewInvites()
	cfg := &types.RuleConfig{Kind: types.RuleInvites, Enabled: true}

	tests := []struct {
		name    string
		content string
		matched bool
	}{
		{"plain text", "join us some day", false},
		{"discord.gg invite", "join discord.gg/abcdef now", true},
		{"long invite url", "https://discord.com/invite/abcdef", true},
		{"legacy domain", "discordapp.com/invite/xyz", true},
		{"uppercase dodged by folding", "DISCORD.GG/LOUD", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verdict := rule.Evaluate(context.Background(), view(tt.content), cfg)
			assert.Equal(t, tt.matched, verdict.Matched)
		})
	}
}

func TestLinksRule(t *testing.T) {
	t.Parallel()

	rule := rules.NewLinks()
	cfg := &types.RuleConfig{Kind: types.RuleLinks, Enabled: true}

	tests := []struct {
		name    string
		content string
		matched bool
	}{
		{"plain text", "no links here", false},
		{"https url", "see https://example.com/page", true},
		{"http url", "see http://example.com", true},
		{"bare www", "check www.example.com out", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verdict := rule.Evaluate(context.Background(), view(tt.content), cfg)
			assert.Equal(t, tt.matched, verdict.Matched)
		})
	}
}

func TestWordsRule(t *testing.T) {
	t.Parallel()

	rule := rules.NewWords(testDeps(t))
	cfg := &types.RuleConfig{
		Kind:    types.RuleWords,
		Enabled: true,
		Words:   []string{"badword", "Verboten"},
	}

	tests := []struct {
		name    string
		content string
		matched bool
	}{
		{"clean message", "perfectly fine message", false},
		{"exact blacklisted word", "that is a badword here", true},
		{"case folded match", "BADWORD in caps", true},
		{"blacklist entry is folded too", "this is verboten", true},
		{"substring match", "superbadwordish", true},
		{"fullwidth characters normalized", "ｂａｄｗｏｒｄ", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verdict := rule.Evaluate(context.Background(), view(tt.content), cfg)
			assert.Equal(t, tt.matched, verdict.Matched)
		})
	}

	t.Run("empty blacklist never matches", func(t *testing.T) {
		t.Parallel()

		empty := &types.RuleConfig{Kind: types.RuleWords, Enabled: true}
		assert.False(t, rule.Evaluate(context.Background(), view("badword"), empty).Matched)
	})
}
