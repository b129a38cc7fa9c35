// Package discord runs the bot on a Discord gateway session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/steamfamilyzap/kgbot/internal/bus"
	"github.com/steamfamilyzap/kgbot/internal/channels"
	"github.com/steamfamilyzap/kgbot/internal/config"
)

const maxMessageLen = 2000

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session        *discordgo.Session
	config         config.DiscordConfig
	botUserID      string // populated on start
	requireMention bool
}

// New creates a new Discord channel from config.
func New(cfg config.DiscordConfig, router bus.MessageRouter) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	requireMention := true
	if cfg.RequireMention != nil {
		requireMention = *cfg.RequireMention
	}

	return &Channel{
		BaseChannel:    channels.NewBaseChannel(config.ChannelDiscord, router, cfg.AllowFrom),
		session:        session,
		config:         cfg,
		requireMention: requireMention,
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
// discordgo reconnects on its own after the first successful open.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if c.handleMessage(m.Message, memberNick(m)) {
			_ = c.session.ChannelTyping(m.ChannelID)
		}
	})

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// MentionToken renders "<@id>" for a Discord user id.
func (c *Channel) MentionToken(address string) string {
	return "<@" + address + ">"
}

// Send delivers an outbound message to a Discord channel. An image is sent
// as an embed on the first chunk.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return errors.New("discord bot not running")
	}
	if msg.ChatID == "" {
		return errors.New("empty chat ID for discord send")
	}

	allowed := &discordgo.MessageAllowedMentions{Users: msg.Mentions}
	for i, chunk := range chunkText(msg.Content, maxMessageLen) {
		send := &discordgo.MessageSend{Content: chunk, AllowedMentions: allowed}
		if i == 0 && msg.ImageURL != "" {
			send.Embeds = []*discordgo.MessageEmbed{{Image: &discordgo.MessageEmbedImage{URL: msg.ImageURL}}}
		}
		if _, err := c.session.ChannelMessageSendComplex(msg.ChatID, send); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// handleMessage gates and publishes one Discord message. Returns true when
// it reached the bus.
func (c *Channel) handleMessage(m *discordgo.Message, nick string) bool {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return false
	}

	senderID := m.Author.ID
	isDM := m.GuildID == ""

	peerKind := bus.PeerDirect
	content := m.Content
	if !isDM {
		peerKind = bus.PeerGroup
		if c.config.ChannelID != "" && m.ChannelID != c.config.ChannelID {
			return false
		}
		if c.requireMention {
			if !c.mentionsBot(m) {
				return false
			}
			content = stripMention(content, c.botUserID)
		}
	}

	if !c.CheckPolicy(peerKind, c.config.DMPolicy, c.config.GroupPolicy, senderID) {
		slog.Debug("discord message rejected by policy", "user_id", senderID, "peer_kind", peerKind)
		return false
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}

	senderName := displayName(m.Author, nick)
	slog.Debug("discord message received",
		"sender_id", senderID,
		"channel_id", m.ChannelID,
		"is_dm", isDM,
		"preview", channels.Truncate(content, 50),
	)

	return c.HandleMessage(bus.InboundMessage{
		MessageID:  m.ID,
		SenderID:   senderID,
		SenderName: senderName,
		ChatID:     m.ChannelID,
		Content:    content,
		PeerKind:   peerKind,
		Metadata: map[string]string{
			"guild_id": m.GuildID,
			"username": m.Author.Username,
		},
	})
}

func (c *Channel) mentionsBot(m *discordgo.Message) bool {
	for _, u := range m.Mentions {
		if u.ID == c.botUserID {
			return true
		}
	}
	return false
}

// stripMention removes both "<@id>" and the nickname form "<@!id>".
func stripMention(content, botID string) string {
	if botID == "" {
		return content
	}
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	return strings.ReplaceAll(content, "<@!"+botID+">", "")
}

func memberNick(m *discordgo.MessageCreate) string {
	if m.Member != nil {
		return m.Member.Nick
	}
	return ""
}

// displayName prefers the server nickname, then the global display name.
func displayName(u *discordgo.User, nick string) string {
	if nick != "" {
		return nick
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// chunkText splits content into pieces of at most limit runes, breaking at a
// newline in the second half of a piece when possible.
func chunkText(content string, limit int) []string {
	r := []rune(content)
	var out []string
	for len(r) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if r[i] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, string(r[:cut]))
		r = r[cut:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}
