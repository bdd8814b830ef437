package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/groupmod/modbot/modflow/engine"

	"github.com/bwmarrin/discordgo"
)

// Handles one inbound event. Called on its own goroutine per event.
type EventHandler func(ctx context.Context, ev *engine.Event) error

// Gateway connection: discovers the bot identity and channels, and feeds message events to a handler.
type Client struct {
	Session   *discordgo.Session
	Directory *ChannelDirectory
	Naming    engine.ChannelNaming
	Group     string
	Logger    *slog.Logger

	lk      sync.Mutex
	ctx     context.Context
	handler EventHandler
	selfID  string
}

func NewClient(token string, logger *slog.Logger) (*Client, error) {
	if token == "" {
		return nil, errors.New("discord token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	sess, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	sess.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	return &Client{
		Session: sess,
		Logger:  logger.With("system", "discord"),
	}, nil
}

// Opens the gateway connection and waits for READY. Fails if the bot's name does not carry a group number.
func (c *Client) Connect(ctx context.Context, timeout time.Duration) error {
	ready := make(chan *discordgo.Ready, 1)
	remove := c.Session.AddHandlerOnce(func(s *discordgo.Session, r *discordgo.Ready) {
		ready <- r
	})

	if err := c.Session.Open(); err != nil {
		remove()
		return fmt.Errorf("opening discord gateway: %w", err)
	}

	var r *discordgo.Ready
	select {
	case r = <-ready:
	case <-ctx.Done():
		c.Session.Close()
		return ctx.Err()
	case <-time.After(timeout):
		c.Session.Close()
		return errors.New("timed out waiting for discord READY")
	}

	name := authorName(r.User)
	group, err := ParseGroupID(name)
	if err != nil {
		// some clients only show the username
		if group, err = ParseGroupID(r.User.Username); err != nil {
			c.Session.Close()
			return err
		}
	}
	c.Group = group
	c.Naming = NamingForGroup(group)
	c.Directory = NewChannelDirectory(c.Naming)
	c.selfID = r.User.ID
	c.Logger.Info("connected to discord", "user", r.User.Username, "group", group, "moderation_channel", c.Naming.Moderation, "public_channel", c.Naming.Public)

	c.Session.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		c.Directory.AddGuild(g.Guild)
		if _, ok := c.Directory.ModChannel(g.ID); !ok {
			c.Logger.Warn("guild has no moderation channel", "guild", g.ID, "name", g.Name, "channel", c.Naming.Moderation)
		}
	})
	c.Session.AddHandler(func(s *discordgo.Session, g *discordgo.GuildDelete) {
		c.Directory.RemoveGuild(g.ID)
	})
	c.Session.AddHandler(func(s *discordgo.Session, ch *discordgo.ChannelCreate) {
		c.Directory.UpdateChannel(ch.Channel)
	})
	c.Session.AddHandler(func(s *discordgo.Session, ch *discordgo.ChannelUpdate) {
		c.Directory.UpdateChannel(ch.Channel)
	})
	c.Session.AddHandler(func(s *discordgo.Session, ch *discordgo.ChannelDelete) {
		c.Directory.RemoveChannel(ch.Channel)
	})
	c.Session.AddHandler(c.onMessageCreate)

	// pick up any guilds which were delivered before the handlers above were registered
	c.Session.State.RLock()
	guilds := append([]*discordgo.Guild(nil), c.Session.State.Guilds...)
	c.Session.State.RUnlock()
	for _, g := range guilds {
		c.Directory.AddGuild(g)
	}
	return nil
}

func (c *Client) Transport() *Transport {
	return &Transport{
		Session:   c.Session,
		Directory: c.Directory,
		Logger:    c.Logger,
	}
}

func (c *Client) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	c.lk.Lock()
	ctx, handler := c.ctx, c.handler
	c.lk.Unlock()
	if handler == nil || ctx == nil || m.Message == nil {
		return
	}

	channelName := ""
	if m.GuildID != "" {
		if name, ok := c.Directory.ChannelName(m.ChannelID); ok {
			channelName = name
		} else if ch, err := s.State.Channel(m.ChannelID); err == nil {
			channelName = ch.Name
		}
	}
	ev := convertMessage(m.Message, channelName, c.selfID)
	if err := handler(ctx, ev); err != nil {
		c.Logger.Error("failed to handle message", "guild", ev.GuildID, "channel", ev.ChannelID, "message", ev.MessageID, "err", err)
	}
}

// Delivers message events to the handler until the context is done, then closes the gateway connection.
func (c *Client) Run(ctx context.Context, handler EventHandler) error {
	if c.Directory == nil {
		return errors.New("discord client is not connected")
	}
	c.lk.Lock()
	c.ctx = ctx
	c.handler = handler
	c.lk.Unlock()

	<-ctx.Done()
	c.Logger.Info("closing discord gateway")
	c.lk.Lock()
	c.handler = nil
	c.lk.Unlock()
	return c.Session.Close()
}

// Routes discordgo's internal logging through slog.
func InstallLogger(logger *slog.Logger) {
	discordgo.Logger = func(msgL, caller int, format string, a ...interface{}) {
		msg := fmt.Sprintf(format, a...)
		switch msgL {
		case discordgo.LogError:
			logger.Error(msg, "system", "discordgo")
		case discordgo.LogWarning:
			logger.Warn(msg, "system", "discordgo")
		case discordgo.LogInformational:
			logger.Info(msg, "system", "discordgo")
		default:
			logger.Debug(msg, "system", "discordgo")
		}
	}
}
