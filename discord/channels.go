package discord

import (
	"github.com/groupmod/modbot/modflow/engine"

	"github.com/bwmarrin/discordgo"
	"github.com/puzpuzpuz/xsync/v3"
)

// Tracks joined guilds and their moderation channels, from gateway events.
type ChannelDirectory struct {
	naming engine.ChannelNaming
	// guild id → moderation channel id ("" when the guild has none)
	guilds *xsync.MapOf[string, string]
	// channel id → channel name, for guild text channels
	names *xsync.MapOf[string, string]
}

var _ engine.ChannelDirectory = (*ChannelDirectory)(nil)

func NewChannelDirectory(naming engine.ChannelNaming) *ChannelDirectory {
	return &ChannelDirectory{
		naming: naming,
		guilds: xsync.NewMapOf[string, string](),
		names:  xsync.NewMapOf[string, string](),
	}
}

func (cd *ChannelDirectory) ModChannel(guildID string) (string, bool) {
	ch, ok := cd.guilds.Load(guildID)
	return ch, ok && ch != ""
}

func (cd *ChannelDirectory) HasGuild(guildID string) bool {
	_, ok := cd.guilds.Load(guildID)
	return ok
}

func (cd *ChannelDirectory) ChannelName(channelID string) (string, bool) {
	return cd.names.Load(channelID)
}

func (cd *ChannelDirectory) GuildCount() int {
	return cd.guilds.Size()
}

// Records a guild and all its channels, as delivered on GUILD_CREATE.
func (cd *ChannelDirectory) AddGuild(g *discordgo.Guild) {
	mod := ""
	for _, ch := range g.Channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		cd.names.Store(ch.ID, ch.Name)
		if ch.Name == cd.naming.Moderation && mod == "" {
			mod = ch.ID
		}
	}
	cd.guilds.Store(g.ID, mod)
}

func (cd *ChannelDirectory) RemoveGuild(guildID string) {
	cd.guilds.Delete(guildID)
}

// Handles channel create and update.
func (cd *ChannelDirectory) UpdateChannel(ch *discordgo.Channel) {
	if ch.Type != discordgo.ChannelTypeGuildText || ch.GuildID == "" {
		return
	}
	cd.names.Store(ch.ID, ch.Name)
	cd.guilds.Compute(ch.GuildID, func(cur string, loaded bool) (string, bool) {
		switch {
		case ch.Name == cd.naming.Moderation && cur == "":
			return ch.ID, false
		case cur == ch.ID && ch.Name != cd.naming.Moderation:
			// renamed away
			return "", false
		}
		return cur, false
	})
}

func (cd *ChannelDirectory) RemoveChannel(ch *discordgo.Channel) {
	cd.names.Delete(ch.ID)
	if ch.GuildID == "" {
		return
	}
	cd.guilds.Compute(ch.GuildID, func(cur string, loaded bool) (string, bool) {
		if !loaded {
			return cur, true
		}
		if cur == ch.ID {
			return "", false
		}
		return cur, false
	})
}
