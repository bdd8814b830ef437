package engine

import (
	"context"

	"github.com/groupmod/modbot/modflow/report"
	"github.com/groupmod/modbot/modflow/visual"
)

type Attachment = visual.Attachment

// Inbound message, as delivered by the transport.
type Event struct {
	SenderID   string
	SenderName string
	// message was authored by this bot
	FromSelf bool
	// empty for private (direct message) contexts
	GuildID     string
	ChannelID   string
	ChannelName string
	MessageID   string
	Text        string
	Attachments []Attachment
}

func (e *Event) Private() bool {
	return e.GuildID == ""
}

// Content snapshot of the message itself, for reports synthesized from it.
func (e *Event) Snapshot() report.Snapshot {
	return report.Snapshot{
		AuthorID:   e.SenderID,
		AuthorName: e.SenderName,
		Text:       e.Text,
		GuildID:    e.GuildID,
		ChannelID:  e.ChannelID,
		MessageID:  e.MessageID,
	}
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	URL         string
	Color       int
	Fields      []EmbedField
	Footer      string
}

// Outbound message. Transports render Embed natively where they can.
type OutboundMessage struct {
	Text  string
	Embed *Embed
}

// Message delivery and moderation actions. Implementations must be safe for concurrent use.
type Transport interface {
	// Returns the delivery id of the sent message.
	Send(ctx context.Context, channelID string, msg OutboundMessage) (string, error)
	Update(ctx context.Context, channelID, deliveryID string, msg OutboundMessage) error
	// Errors wrap report.ErrChannelNotFound or report.ErrMessageNotFound where applicable.
	FetchMessage(ctx context.Context, channelID, messageID string) (*report.Snapshot, error)
	// Deleting a message which is already gone is not an error.
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	// Removing a member who already left is not an error.
	RemoveMember(ctx context.Context, guildID, userID, reason string) error
}

type ChannelDirectory interface {
	// Moderation channel for the guild, if one has been discovered.
	ModChannel(guildID string) (string, bool)
	HasGuild(guildID string) bool
}

// Triage capability for public channel messages.
type Triager interface {
	Evaluate(ctx context.Context, atts []visual.Attachment) visual.Verdict
}
