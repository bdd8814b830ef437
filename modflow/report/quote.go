package report

import (
	"strings"

	"github.com/rivo/uniseg"
)

// Longest message body Discord accepts.
const MaxMessageRunes = 2000

// Room for quoted content inside a chat reply, leaving space for the surrounding lines.
const QuoteLimit = 1500

// Cuts s to at most max runes without splitting a grapheme cluster, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	if len([]rune(s)) <= max {
		return s
	}
	var sb strings.Builder
	n := 0
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		cluster := gr.Runes()
		if n+len(cluster) > max-1 {
			break
		}
		n += len(cluster)
		sb.WriteString(gr.Str())
	}
	sb.WriteString("…")
	return sb.String()
}

// Member-supplied text can neither open nor close a code block.
func defuse(s string) string {
	return strings.ReplaceAll(s, "`", "'")
}

// Renders flagged content as a code block, with the text cut to max runes.
func Quote(authorName, text string, max int) string {
	return "```" + defuse(authorName) + ": " + defuse(Truncate(text, max)) + "```"
}
