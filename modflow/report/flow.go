package report

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	StartKeyword  = "report"
	CancelKeyword = "cancel"
	HelpKeyword   = "help"
)

type State int

const (
	StateStart State = iota
	StateAwaitingMessageReference
	StateAwaitingCategory
	StateAwaitingSubtype
	StateAwaitingAIQuestion
	StateAwaitingBlockQuestion
	StateComplete
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateAwaitingMessageReference:
		return "AWAITING_MESSAGE_REFERENCE"
	case StateAwaitingCategory:
		return "AWAITING_CATEGORY"
	case StateAwaitingSubtype:
		return "AWAITING_SUBTYPE"
	case StateAwaitingAIQuestion:
		return "AWAITING_AI_QUESTION"
	case StateAwaitingBlockQuestion:
		return "AWAITING_BLOCK_QUESTION"
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

// Errors a transport can wrap when a message reference can't be resolved; they pick the reply shown to the reporter.
var (
	ErrGuildNotJoined  = errors.New("bot is not a member of the referenced guild")
	ErrChannelNotFound = errors.New("referenced channel not found")
	ErrMessageNotFound = errors.New("referenced message not found")
)

var messageLinkRegex = regexp.MustCompile(`https?://(?:(?:ptb|canary)\.)?discord(?:app)?\.com/channels/(\d+)/(\d+)/(\d+)`)

type MessageRef struct {
	GuildID   string
	ChannelID string
	MessageID string
}

func ParseMessageLink(text string) (MessageRef, bool) {
	m := messageLinkRegex.FindStringSubmatch(text)
	if m == nil {
		return MessageRef{}, false
	}
	return MessageRef{GuildID: m[1], ChannelID: m[2], MessageID: m[3]}, true
}

// Result of a single transition: text to send back to the reporter, and optionally a message which must be looked up (by the caller) and fed back through Resolve.
type Output struct {
	Replies []string
	Lookup  *MessageRef
}

func (o *Output) reply(lines ...string) {
	o.Replies = append(o.Replies, lines...)
}

// Intake dialogue for a single reporting member.
//
// Methods are pure state transitions: no I/O, and not safe for concurrent use. The caller is responsible for serializing access.
type Flow struct {
	taxonomy Taxonomy
	state    State
	report   *Report
	category Category
	pending  *MessageRef
}

func NewFlow(authorID string, taxonomy Taxonomy) *Flow {
	return &Flow{
		taxonomy: taxonomy,
		state:    StateStart,
		report: &Report{
			AuthorID:  authorID,
			Origin:    OriginUser,
			State:     StateStart,
			CreatedAt: time.Now(),
		},
	}
}

func (f *Flow) State() State {
	return f.state
}

// The report under construction. Callers must not mutate it; once the flow is complete it is handed off as-is.
func (f *Flow) Report() *Report {
	return f.report
}

func (f *Flow) Done() bool {
	return f.state.Terminal()
}

func (f *Flow) advance(s State) {
	f.state = s
	f.report.State = s
}

// Consumes one inbound message and advances at most one state.
func (f *Flow) Step(text string) Output {
	var out Output
	if f.state.Terminal() {
		return out
	}
	msg := normalize(text)

	if msg == CancelKeyword {
		f.pending = nil
		f.advance(StateCancelled)
		out.reply("Report cancelled.")
		return out
	}

	switch f.state {
	case StateStart:
		f.advance(StateAwaitingMessageReference)
		out.reply(
			"Thank you for starting the reporting process. Say `help` at any time for more information.\n\n" +
				"Please copy paste the link to the message you want to report.\n" +
				"You can obtain this link by right-clicking the message and clicking `Copy Message Link`.",
		)
	case StateAwaitingMessageReference:
		ref, ok := ParseMessageLink(text)
		if !ok {
			out.reply("I'm sorry, I couldn't read that link. Please try again or say `cancel` to cancel.")
			return out
		}
		// a newer link supersedes any lookup still in flight
		f.pending = &ref
		out.Lookup = &ref
	case StateAwaitingCategory:
		cat, ok := f.taxonomy.Category(msg)
		if !ok {
			out.reply("I didn't recognize that category. " + f.categoryPrompt())
			return out
		}
		f.category = cat
		f.report.Category = cat.Name
		f.advance(StateAwaitingSubtype)
		out.reply(f.subtypePrompt())
	case StateAwaitingSubtype:
		if !f.category.HasSubtype(msg) {
			out.reply("I didn't recognize that type. " + f.subtypePrompt())
			return out
		}
		f.report.Subtype = msg
		f.advance(StateAwaitingAIQuestion)
		out.reply(aiQuestionPrompt)
	case StateAwaitingAIQuestion:
		ans, ok := ParseAnswer(msg)
		if !ok {
			out.reply("Please answer `yes` or `no`. " + aiQuestionPrompt)
			return out
		}
		f.report.AISuspected = ans
		f.advance(StateAwaitingBlockQuestion)
		out.reply(blockQuestionPrompt)
	case StateAwaitingBlockQuestion:
		ans, ok := ParseAnswer(msg)
		if !ok {
			out.reply("Please answer `yes` or `no`. " + blockQuestionPrompt)
			return out
		}
		f.report.BlockRequested = ans
		f.advance(StateComplete)
		out.reply("Thank you for your report. It has been sent to the moderation team for review.")
		if ans == AnswerYes {
			out.reply("We've noted your request to block this user.")
		}
	}
	return out
}

// Feeds back the outcome of a message lookup requested by Step. Stale lookups (superseded by a newer link, or arriving after the flow moved on) are ignored.
func (f *Flow) Resolve(ref MessageRef, snap *Snapshot, err error) Output {
	var out Output
	if f.state != StateAwaitingMessageReference || f.pending == nil || *f.pending != ref {
		return out
	}
	f.pending = nil

	if err != nil || snap == nil {
		switch {
		case errors.Is(err, ErrGuildNotJoined):
			out.reply("I cannot accept reports of messages from guilds that I'm not in. Please have the guild owner add me to the guild and try again.")
		case errors.Is(err, ErrChannelNotFound):
			out.reply("It seems this channel was deleted or never existed. Please try again or say `cancel` to cancel.")
		case errors.Is(err, ErrMessageNotFound):
			out.reply("It seems this message was deleted or never existed. Please try again or say `cancel` to cancel.")
		default:
			out.reply("I'm sorry, I couldn't retrieve that message. Please try again or say `cancel` to cancel.")
		}
		return out
	}

	f.report.Content = *snap
	f.advance(StateAwaitingCategory)
	out.reply(
		"I found this message:",
		Quote(snap.AuthorName, snap.Text, QuoteLimit),
		f.categoryPrompt(),
	)
	return out
}

const (
	aiQuestionPrompt    = "Do you suspect this content was generated by AI? (`yes`/`no`)"
	blockQuestionPrompt = "Would you like to block this user? (`yes`/`no`)"
)

func (f *Flow) categoryPrompt() string {
	return "Please select the category of abuse: " + quoteList(f.taxonomy.CategoryNames())
}

func (f *Flow) subtypePrompt() string {
	return fmt.Sprintf("Please select the type of %s: %s", f.category.Name, quoteList(f.category.Subtypes))
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "`" + n + "`"
	}
	return strings.Join(quoted, ", ")
}

// Usage text for the private reporting context.
const HelpText = "Use the `report` command to begin the reporting process.\n" +
	"Use the `cancel` command to cancel the report process.\n"
