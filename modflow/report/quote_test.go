package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("short", Truncate("short", 10))
	assert.Equal("abcd…", Truncate("abcdefgh", 5))

	// e + combining acute is one cluster of two runes; it is dropped whole rather than split
	assert.Equal("ab…", Truncate("abe\u0301cd", 4))
}

func TestQuote(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("```bob: hi```", Quote("bob", "hi", QuoteLimit))
	assert.Equal("```b'ob: '''@everyone'''```", Quote("b`ob", "```@everyone```", QuoteLimit))

	long := strings.Repeat("a", 1990) + "```@everyone"
	q := Quote("poster", long, QuoteLimit)
	assert.Equal(2, strings.Count(q, "```"))
	assert.True(strings.HasSuffix(q, "…```"))
	assert.LessOrEqual(len([]rune(q)), QuoteLimit+len("```poster: ```"))
}
