package review

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/groupmod/modbot/modflow/report"
)

const (
	CommandKeyword = "review"
	CancelKeyword  = "cancel"
	HelpKeyword    = "help"
)

type State int

const (
	StateStart State = iota
	StateAwaitingAIQuestion
	StateAwaitingActionQuestion
	StateComplete
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateAwaitingAIQuestion:
		return "AWAITING_AI_QUESTION"
	case StateAwaitingActionQuestion:
		return "AWAITING_ACTION_QUESTION"
	case StateComplete:
		return "COMPLETE"
	case StateCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s == StateComplete || s == StateCancelled
}

var (
	ErrUsage = errors.New("review command requires a report reference")
	ErrNoID  = errors.New("no report id found in reference")
)

var trailingIDRegex = regexp.MustCompile(`(\d+)$`)

// Recognizes a `review <reference>` command. The first return value is false if the text is not a review command at all.
//
// The reference may be a bare id or anything ending in one (eg, a link to the notification message); the trailing run of digits is the report id.
func ParseCommand(text string) (bool, string, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || strings.ToLower(fields[0]) != CommandKeyword {
		return false, "", nil
	}
	if len(fields) != 2 {
		return true, "", ErrUsage
	}
	m := trailingIDRegex.FindStringSubmatch(fields[1])
	if m == nil {
		return true, "", ErrNoID
	}
	return true, m[1], nil
}

// Decisions recorded by a completed review.
type Decision struct {
	DeleteContent bool
	RemoveMember  bool
}

// Review dialogue for a single moderator, bound to one registered report.
//
// Holds the report id only; the report itself stays in the registry and is never mutated by a review. Not safe for concurrent use.
type Flow struct {
	reportID string
	state    State
	delete   report.Answer
	remove   report.Answer
}

func NewFlow(reportID string) *Flow {
	return &Flow{
		reportID: reportID,
		state:    StateStart,
	}
}

func (f *Flow) ReportID() string {
	return f.reportID
}

func (f *Flow) State() State {
	return f.state
}

func (f *Flow) Done() bool {
	return f.state.Terminal()
}

func (f *Flow) Decision() Decision {
	return Decision{
		DeleteContent: f.delete == report.AnswerYes,
		RemoveMember:  f.remove == report.AnswerYes,
	}
}

// Opens the review: summarizes the bound report and asks the first question. Only valid from START, with the report the flow was created for.
func (f *Flow) Begin(r *report.Report) []string {
	if f.state != StateStart || r == nil || r.ID != f.reportID {
		return nil
	}
	f.state = StateAwaitingAIQuestion
	return []string{Summary(r), aiQuestionPrompt}
}

// Consumes one moderator message and advances at most one state.
func (f *Flow) Step(text string) []string {
	if f.state.Terminal() {
		return nil
	}
	msg := strings.ToLower(strings.TrimSpace(text))
	if msg == CancelKeyword {
		f.state = StateCancelled
		return []string{"Review cancelled."}
	}

	switch f.state {
	case StateAwaitingAIQuestion:
		ans, ok := report.ParseAnswer(msg)
		if !ok {
			return []string{"Please answer `yes` or `no`. " + aiQuestionPrompt}
		}
		f.delete = ans
		f.state = StateAwaitingActionQuestion
		return []string{actionQuestionPrompt}
	case StateAwaitingActionQuestion:
		ans, ok := report.ParseAnswer(msg)
		if !ok {
			return []string{"Please answer `yes` or `no`. " + actionQuestionPrompt}
		}
		f.remove = ans
		f.state = StateComplete
		return []string{"Review complete."}
	}
	// START only advances through Begin
	return nil
}

const (
	aiQuestionPrompt     = "Is this content AI-generated in violation of policy? Reply `yes` to delete the message or `no` to keep it."
	actionQuestionPrompt = "Should the author be removed from the server? (`yes`/`no`)"
)

func Summary(r *report.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reviewing report `%s` (%s): category `%s`, subtype `%s`\n", r.ID, r.Origin, r.Category, r.Subtype)
	if r.Origin == report.OriginAutomated {
		fmt.Fprintf(&sb, "Suspect score: %.2f%%\n", r.Score*100)
	} else {
		fmt.Fprintf(&sb, "Reported by <@%s>; AI suspected: %s; block requested: %s\n", r.AuthorID, r.AISuspected, r.BlockRequested)
	}
	sb.WriteString(report.Quote(r.Content.AuthorName, r.Content.Text, report.QuoteLimit))
	return sb.String()
}

// Usage text for the moderation context.
const HelpText = "Use the `review <report_id|report_url>` command to begin the manual review process.\n" +
	"Use the `cancel` command to cancel the review process.\n"
