package discord

import (
	"github.com/groupmod/modbot/modflow/engine"
	"github.com/groupmod/modbot/modflow/report"

	"github.com/bwmarrin/discordgo"
)

func authorName(u *discordgo.User) string {
	if u == nil {
		return ""
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// Converts a gateway message into an inbound engine event. channelName is empty for private channels.
func convertMessage(m *discordgo.Message, channelName, selfID string) *engine.Event {
	ev := &engine.Event{
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		ChannelName: channelName,
		MessageID:   m.ID,
		Text:        m.Content,
	}
	if m.Author != nil {
		ev.SenderID = m.Author.ID
		ev.SenderName = authorName(m.Author)
		ev.FromSelf = m.Author.ID == selfID
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		ev.Attachments = append(ev.Attachments, engine.Attachment{
			URL:         a.URL,
			ContentType: a.ContentType,
			Filename:    a.Filename,
		})
	}
	return ev
}

func snapshotMessage(m *discordgo.Message, guildID string) *report.Snapshot {
	snap := &report.Snapshot{
		Text:      m.Content,
		GuildID:   guildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
	}
	if m.Author != nil {
		snap.AuthorID = m.Author.ID
		snap.AuthorName = authorName(m.Author)
	}
	return snap
}

func convertEmbed(e *engine.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		URL:         e.URL,
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	return out
}
