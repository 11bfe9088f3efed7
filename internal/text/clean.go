package text

import (
	"regexp"
	"strings"
)

var (
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// CleanForEmbedding normalizes raw chunk text before it is sent to the
// embedding model: markup stripped, emoji removed, whitespace collapsed,
// undecodable bytes replaced instead of failing the batch.
func CleanForEmbedding(s string) string {
	s = strings.ToValidUTF8(s, "�")
	s = tagRe.ReplaceAllString(s, " ")
	s = stripEmoji(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// stripEmoji removes pictographic characters. They carry no cross-lingual
// semantic signal and inflate the token count.
func stripEmoji(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isEmoji(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // symbols, pictographs, supplemental
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators (flags)
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r == 0xFE0F || r == 0xFE0E: // variation selectors
		return true
	case r == 0x200D: // zero-width joiner
		return true
	}
	return false
}
