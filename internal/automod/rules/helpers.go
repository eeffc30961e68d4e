package rules

import (
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	customEmojiPattern = regexp.MustCompile(`<a?:\w+:\d+>`)
	headerPattern      = regexp.MustCompile(`(?m)^#{1,3} \S`)

	inviteMarkers = []string{
		"discord.gg/",
		"discord.com/invite/",
		"discordapp.com/invite/",
		".gg/",
	}

	linkMarkers = []string{
		"http://",
		"https://",
		"www.",
	}

	foldCaser = cases.Fold()
)

// foldContent lowercases and normalizes content for marker and blacklist
// matching. NFKC first so fullwidth and compatibility characters cannot dodge
// substring checks.
func foldContent(s string) string {
	return foldCaser.String(norm.NFKC.String(s))
}

// countUppercase returns the number of uppercase letters in the content.
func countUppercase(s string) int {
	count := 0
	for _, r := range s {
		if unicode.IsUpper(r) {
			count++
		}
	}

	return count
}

// countEmojis counts unicode emoji runes plus custom Discord emoji tokens.
func countEmojis(s string) int {
	count := len(customEmojiPattern.FindAllString(s, -1))

	for _, r := range s {
		if isEmojiRune(r) {
			count++
		}
	}

	return count
}

// isEmojiRune covers the common emoji blocks. Skin tone and joiner sequences
// count their components individually, which overcounts slightly; the rule
// threshold is coarse enough that this does not matter.
func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	default:
		return false
	}
}

// countHeaders counts markdown heading lines.
func countHeaders(s string) int {
	return len(headerPattern.FindAllString(s, -1))
}

// countSpoilerPairs counts closed spoiler delimiter pairs.
func countSpoilerPairs(s string) int {
	return strings.Count(s, "||") / 2
}

// containsAnyMarker reports whether the folded content contains any of the
// given literal markers.
func containsAnyMarker(folded string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(folded, m) {
			return true
		}
	}

	return false
}

// repeatHash produces a stable hash of near-identical content: the message is
// normalized, case-folded, and whitespace-collapsed before hashing, so casing
// and spacing tweaks map to the same bucket.
func repeatHash(s string) string {
	collapsed := strings.Join(strings.Fields(foldContent(s)), " ")

	h := fnv.New64a()
	_, _ = h.Write([]byte(collapsed))

	return strconv.FormatUint(h.Sum64(), 16)
}
