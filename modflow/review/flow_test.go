package review

import (
	"strings"
	"testing"

	"github.com/groupmod/modbot/modflow/report"

	"github.com/stretchr/testify/assert"
)

func testReport() *report.Report {
	r := report.NewAutomated(report.Snapshot{
		AuthorID:   "444",
		AuthorName: "poster",
		Text:       "look at this",
		GuildID:    "1",
		ChannelID:  "2",
		MessageID:  "3",
	}, 0.8)
	r.ID = "9001"
	return r
}

func TestParseCommand(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		text   string
		isCmd  bool
		id     string
		expErr error
	}{
		{"review 9001", true, "9001", nil},
		{"Review https://discord.com/channels/1/2/12345", true, "12345", nil},
		{"review", true, "", ErrUsage},
		{"review a b", true, "", ErrUsage},
		{"review abc", true, "", ErrNoID},
		{"review 12abc", true, "", ErrNoID},
		{"reviewer 12", false, "", nil},
		{"yes", false, "", nil},
		{"", false, "", nil},
	}
	for _, tc := range testCases {
		isCmd, id, err := ParseCommand(tc.text)
		assert.Equal(tc.isCmd, isCmd, tc.text)
		assert.Equal(tc.id, id, tc.text)
		assert.ErrorIs(err, tc.expErr, tc.text)
		if tc.expErr == nil {
			assert.NoError(err, tc.text)
		}
	}
}

func TestFlowHappyPath(t *testing.T) {
	assert := assert.New(t)

	r := testReport()
	before := *r
	f := NewFlow(r.ID)
	assert.Equal(StateStart, f.State())

	// nothing but Begin leaves START
	assert.Nil(f.Step("yes"))
	assert.Equal(StateStart, f.State())

	lines := f.Begin(r)
	assert.Len(lines, 2)
	assert.Contains(lines[0], "Suspect score: 80.00%")
	assert.Equal(StateAwaitingAIQuestion, f.State())

	// a second Begin is ignored
	assert.Nil(f.Begin(r))

	f.Step("yes")
	assert.Equal(StateAwaitingActionQuestion, f.State())
	f.Step("no")
	assert.Equal(StateComplete, f.State())
	assert.True(f.Done())
	assert.Equal(Decision{DeleteContent: true, RemoveMember: false}, f.Decision())

	// the report itself is untouched
	assert.Equal(before, *r)
}

func TestFlowReprompt(t *testing.T) {
	assert := assert.New(t)

	r := testReport()
	f := NewFlow(r.ID)
	f.Begin(r)
	lines := f.Step("delete it")
	assert.Len(lines, 1)
	assert.Equal(StateAwaitingAIQuestion, f.State())
	f.Step("n")
	f.Step("perhaps")
	assert.Equal(StateAwaitingActionQuestion, f.State())
	f.Step("Y")
	assert.Equal(Decision{DeleteContent: false, RemoveMember: true}, f.Decision())
}

func TestFlowCancel(t *testing.T) {
	assert := assert.New(t)

	for _, prefix := range [][]string{{}, {"yes"}} {
		r := testReport()
		f := NewFlow(r.ID)
		f.Begin(r)
		for _, in := range prefix {
			f.Step(in)
		}
		assert.Equal([]string{"Review cancelled."}, f.Step("cancel"))
		assert.Equal(StateCancelled, f.State())
		assert.Equal(Decision{}, f.Decision())
		assert.Nil(f.Step("yes"))
	}

	f := NewFlow("1")
	f.Step("cancel")
	assert.Equal(StateCancelled, f.State())
}

func TestBeginWrongReport(t *testing.T) {
	assert := assert.New(t)

	f := NewFlow("1234")
	assert.Nil(f.Begin(testReport()))
	assert.Nil(f.Begin(nil))
	assert.Equal(StateStart, f.State())
}

func TestSummaryUserReport(t *testing.T) {
	assert := assert.New(t)

	r := &report.Report{
		ID:             "77",
		AuthorID:       "100",
		Origin:         report.OriginUser,
		Category:       "spam",
		Subtype:        "scam",
		AISuspected:    report.AnswerNo,
		BlockRequested: report.AnswerYes,
		Content:        report.Snapshot{AuthorName: "bob", Text: "hi"},
	}
	s := Summary(r)
	assert.Contains(s, "`77` (user)")
	assert.Contains(s, "AI suspected: no; block requested: yes")
	assert.Contains(s, "```bob: hi```")
	assert.NotContains(s, "Suspect score")
}

func TestSummaryBoundsContent(t *testing.T) {
	assert := assert.New(t)

	r := testReport()
	r.Content.Text = strings.Repeat("a", 1990) + "```@everyone"
	s := Summary(r)
	assert.Less(len([]rune(s)), report.MaxMessageRunes)
	assert.Equal(2, strings.Count(s, "```"))
	assert.NotContains(s, "@everyone")

	r.Content.Text = "```\n@everyone\n```"
	s = Summary(r)
	assert.Equal(2, strings.Count(s, "```"))
	assert.Contains(s, "'''\n@everyone\n'''")
}
