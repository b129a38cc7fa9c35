package discord

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/steamfamilyzap/kgbot/internal/bus"
	"github.com/steamfamilyzap/kgbot/internal/channels"
	"github.com/steamfamilyzap/kgbot/internal/config"
)

func newTestChannel(cfg config.DiscordConfig) (*Channel, *bus.MessageBus) {
	b := bus.New()
	return &Channel{
		BaseChannel:    channels.NewBaseChannel(config.ChannelDiscord, b, cfg.AllowFrom),
		config:         cfg,
		botUserID:      "900",
		requireMention: true,
	}, b
}

func TestHandleMessage(t *testing.T) {
	author := &discordgo.User{ID: "42", Username: "ana", GlobalName: "Ana"}
	bot := &discordgo.User{ID: "900", Bot: true}

	tests := []struct {
		name    string
		cfg     config.DiscordConfig
		msg     *discordgo.Message
		want    bool
		content string
	}{
		{"dm", config.DiscordConfig{}, &discordgo.Message{ID: "1", ChannelID: "dm1", Author: author, Content: "oi"}, true, "oi"},
		{"own message", config.DiscordConfig{}, &discordgo.Message{ID: "2", ChannelID: "dm1", Author: bot, Content: "oi"}, false, ""},
		{"guild without mention", config.DiscordConfig{}, &discordgo.Message{ID: "3", GuildID: "g", ChannelID: "c1", Author: author, Content: "oi"}, false, ""},
		{"guild with mention", config.DiscordConfig{}, &discordgo.Message{ID: "4", GuildID: "g", ChannelID: "c1", Author: author,
			Content: "<@900> status", Mentions: []*discordgo.User{bot}}, true, "status"},
		{"other channel", config.DiscordConfig{ChannelID: "c2"}, &discordgo.Message{ID: "5", GuildID: "g", ChannelID: "c1", Author: author,
			Content: "<@!900> status", Mentions: []*discordgo.User{bot}}, false, ""},
		{"dm disabled", config.DiscordConfig{DMPolicy: "disabled"}, &discordgo.Message{ID: "6", ChannelID: "dm1", Author: author, Content: "oi"}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, b := newTestChannel(tt.cfg)
			if got := c.handleMessage(tt.msg, ""); got != tt.want {
				t.Fatalf("handleMessage = %v, want %v", got, tt.want)
			}
			if !tt.want {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			msg, ok := b.ConsumeInbound(ctx)
			if !ok || msg.Content != tt.content || msg.SenderID != "42" || msg.SenderName != "Ana" {
				t.Fatalf("inbound = %+v", msg)
			}
		})
	}
}

func TestMentionToken(t *testing.T) {
	c, _ := newTestChannel(config.DiscordConfig{})
	if got := c.MentionToken("42"); got != "<@42>" {
		t.Fatalf("MentionToken = %q", got)
	}
}

func TestChunkText(t *testing.T) {
	s := strings.Repeat("x", 2500)
	parts := chunkText(s, maxMessageLen)
	if len(parts) != 2 || len([]rune(parts[0])) != 2000 || len([]rune(parts[1])) != 500 {
		t.Fatalf("chunk sizes = %d", len(parts))
	}
	if chunkText("", maxMessageLen) != nil {
		t.Fatal("empty content produced chunks")
	}
}
