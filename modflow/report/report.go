package report

import (
	"fmt"
	"time"
)

type Origin string

const (
	OriginUser      Origin = "user"
	OriginAutomated Origin = "automated"
)

const (
	CategoryAutomated     = "automated"
	SubtypeSuspectContent = "suspect_content"
)

// Answer to a yes/no intake question. The zero value means the question was never asked (eg, automated reports).
type Answer int

const (
	AnswerUnset Answer = iota
	AnswerYes
	AnswerNo
)

func (a Answer) String() string {
	switch a {
	case AnswerYes:
		return "yes"
	case AnswerNo:
		return "no"
	default:
		return "N/A"
	}
}

// parses a free-text yes/no reply. second return value is false for anything unrecognized.
func ParseAnswer(text string) (Answer, bool) {
	switch normalize(text) {
	case "yes", "y":
		return AnswerYes, true
	case "no", "n":
		return AnswerNo, true
	}
	return AnswerUnset, false
}

// Immutable copy of the flagged message, taken when the report was filed.
type Snapshot struct {
	AuthorID   string
	AuthorName string
	Text       string
	GuildID    string
	ChannelID  string
	MessageID  string
}

// Link back to the original message in the client.
func (s Snapshot) JumpURL() string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", s.GuildID, s.ChannelID, s.MessageID)
}

type Report struct {
	// Delivery id of the moderation notification. Empty until registered.
	ID string
	// Reporting member. For automated reports, the author of the flagged message.
	AuthorID string
	Origin   Origin
	Content  Snapshot

	Category       string
	Subtype        string
	AISuspected    Answer
	BlockRequested Answer

	// Raw classifier probability; only meaningful when Origin is automated.
	Score float64

	State     State
	CreatedAt time.Time
}

// Builds a completed report for content flagged by triage, with no human reporter.
func NewAutomated(content Snapshot, score float64) *Report {
	return &Report{
		AuthorID:  content.AuthorID,
		Origin:    OriginAutomated,
		Content:   content,
		Category:  CategoryAutomated,
		Subtype:   SubtypeSuspectContent,
		Score:     score,
		State:     StateComplete,
		CreatedAt: time.Now(),
	}
}
