package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/groupmod/modbot/modflow/engine"
	"github.com/groupmod/modbot/modflow/report"

	"github.com/bwmarrin/discordgo"
)

// Discord REST implementation of the engine transport.
type Transport struct {
	Session   *discordgo.Session
	Directory *ChannelDirectory
	Logger    *slog.Logger
}

var _ engine.Transport = (*Transport)(nil)

func restErrorCode(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		return restErr.Message.Code
	}
	return 0
}

func restStatus(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode
	}
	return 0
}

// Mentions in outbound text render as links but never ping anyone, whatever member content ends up quoted.
func noPings() *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
}

func buildSend(msg engine.OutboundMessage) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Content:         msg.Text,
		AllowedMentions: noPings(),
	}
	if msg.Embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{convertEmbed(msg.Embed)}
	}
	return send
}

func buildEdit(channelID, deliveryID string, msg engine.OutboundMessage) *discordgo.MessageEdit {
	edit := discordgo.NewMessageEdit(channelID, deliveryID)
	if msg.Text != "" {
		edit.SetContent(msg.Text)
	}
	if msg.Embed != nil {
		edit.SetEmbeds([]*discordgo.MessageEmbed{convertEmbed(msg.Embed)})
	}
	edit.AllowedMentions = noPings()
	return edit
}

func (t *Transport) Send(ctx context.Context, channelID string, msg engine.OutboundMessage) (string, error) {
	m, err := t.Session.ChannelMessageSendComplex(channelID, buildSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("sending message to %s: %w", channelID, err)
	}
	return m.ID, nil
}

func (t *Transport) Update(ctx context.Context, channelID, deliveryID string, msg engine.OutboundMessage) error {
	if _, err := t.Session.ChannelMessageEditComplex(buildEdit(channelID, deliveryID, msg), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("editing message %s/%s: %w", channelID, deliveryID, err)
	}
	return nil
}

func (t *Transport) channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if ch, err := t.Session.State.Channel(channelID); err == nil {
		return ch, nil
	}
	return t.Session.Channel(channelID, discordgo.WithContext(ctx))
}

func (t *Transport) FetchMessage(ctx context.Context, channelID, messageID string) (*report.Snapshot, error) {
	ch, err := t.channel(ctx, channelID)
	if err != nil {
		return nil, mapLookupError(err, channelID, messageID)
	}
	m, err := t.Session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapLookupError(err, channelID, messageID)
	}
	return snapshotMessage(m, ch.GuildID), nil
}

func mapLookupError(err error, channelID, messageID string) error {
	switch restErrorCode(err) {
	case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeMissingAccess:
		return fmt.Errorf("channel %s: %w", channelID, report.ErrChannelNotFound)
	case discordgo.ErrCodeUnknownMessage:
		return fmt.Errorf("message %s/%s: %w", channelID, messageID, report.ErrMessageNotFound)
	}
	if errors.Is(err, discordgo.ErrStateNotFound) || restStatus(err) == http.StatusNotFound {
		return fmt.Errorf("channel %s: %w", channelID, report.ErrChannelNotFound)
	}
	return fmt.Errorf("fetching message %s/%s: %w", channelID, messageID, err)
}

func (t *Transport) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := t.Session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	if restErrorCode(err) == discordgo.ErrCodeUnknownMessage {
		t.Logger.Info("message already deleted", "channel", channelID, "message", messageID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting message %s/%s: %w", channelID, messageID, err)
	}
	return nil
}

func (t *Transport) RemoveMember(ctx context.Context, guildID, userID, reason string) error {
	err := t.Session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx))
	if restErrorCode(err) == discordgo.ErrCodeUnknownMember {
		t.Logger.Info("member already gone", "guild", guildID, "member", userID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("removing member %s from %s: %w", userID, guildID, err)
	}
	return nil
}
