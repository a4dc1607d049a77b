package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/caravelbot/caravel/pkg/bus"
	"github.com/caravelbot/caravel/pkg/config"
	"github.com/caravelbot/caravel/pkg/logger"
	"github.com/caravelbot/caravel/pkg/utils"
)

// Discord caps messages at 2000 characters; leave headroom for the
// rendered choice list.
const discordMaxMessageLength = 1900

func init() {
	registerFactory("discord", func(cfg *config.Config, messageBus *bus.MessageBus) (Channel, error) {
		return NewDiscordChannel(cfg.Channels.Discord, messageBus)
	})
}

// DiscordChannel connects as a Discord bot. Choice affordances are
// rendered as a plain option list under the message.
type DiscordChannel struct {
	*BaseChannel
	session *discordgo.Session
	config  config.DiscordConfig
}

func NewDiscordChannel(cfg config.DiscordConfig, messageBus *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", messageBus, cfg.AllowFrom),
		session:     session,
		config:      cfg,
	}, nil
}

func (c *DiscordChannel) MaxMessageLength() int {
	return discordMaxMessageLength
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	c.setRunning(true)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})

	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("channel ID is empty")
	}

	content := msg.Content
	if len(msg.Choices) > 0 {
		content = fmt.Sprintf("%s\nOptions: %s", content, strings.Join(msg.Choices, " | "))
	}
	if content == "" {
		return nil
	}

	if _, err := c.session.ChannelMessageSend(msg.ChatID, content); err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	return nil
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if m.Content == "" {
		return
	}

	senderID := m.Author.ID
	if m.Author.Username != "" {
		senderID = fmt.Sprintf("%s|%s", m.Author.ID, m.Author.Username)
	}

	logger.DebugCF("discord", "Received message", map[string]any{
		"sender_id": senderID,
		"chat_id":   m.ChannelID,
		"preview":   utils.Truncate(m.Content, 50),
	})

	metadata := map[string]string{
		"message_id": m.ID,
		"username":   m.Author.Username,
		"guild_id":   m.GuildID,
	}

	c.HandleMessage(senderID, m.ChannelID, m.Content, metadata)
}
