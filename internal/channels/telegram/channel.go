// Package telegram runs the bot over the Telegram Bot API using long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/steamfamilyzap/kgbot/internal/bus"
	"github.com/steamfamilyzap/kgbot/internal/channels"
	"github.com/steamfamilyzap/kgbot/internal/config"
)

const (
	maxMessageLen = 4096
	maxCaptionLen = 1024

	// mentionFallback labels a member Telegram has not shown us yet.
	mentionFallback = "membro"
)

type knownUser struct {
	username  string
	firstName string
}

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	*channels.BaseChannel
	bot            *telego.Bot
	config         config.TelegramConfig
	requireMention bool
	users          sync.Map // user id string → knownUser, learned from inbound traffic

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a new Telegram channel from config.
func New(cfg config.TelegramConfig, router bus.MessageRouter) (*Channel, error) {
	var opts []telego.BotOption

	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	requireMention := true
	if cfg.RequireMention != nil {
		requireMention = *cfg.RequireMention
	}

	return &Channel{
		BaseChannel:    channels.NewBaseChannel(config.ChannelTelegram, router, cfg.AllowFrom),
		bot:            bot,
		config:         cfg,
		requireMention: requireMention,
	}, nil
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	botUsername := c.bot.Username()
	slog.Info("telegram bot connected", "username", botUsername)

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message == nil {
					slog.Debug("telegram update skipped (no message)", "update_id", update.UpdateID)
					continue
				}
				if c.handleMessage(update.Message, botUsername) {
					_ = c.bot.SendChatAction(pollCtx, tu.ChatAction(tu.ID(update.Message.Chat.ID), telego.ChatActionTyping))
				}
			}
		}
	}()

	return nil
}

// Stop shuts down the Telegram bot by cancelling the long polling context
// and waiting for the polling goroutine to exit.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}

	// Telegram holds the getUpdates lock until the poller is gone.
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
			slog.Info("telegram bot stopped")
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// MentionToken renders "@username" for a user id. Users without a public
// username are rendered by first name; Send turns those into text mentions.
func (c *Channel) MentionToken(address string) string {
	u, _ := c.lookupUser(address)
	switch {
	case u.username != "":
		return "@" + u.username
	case u.firstName != "":
		return u.firstName
	}
	return mentionFallback
}

func (c *Channel) lookupUser(address string) (knownUser, bool) {
	v, ok := c.users.Load(address)
	if !ok {
		return knownUser{}, false
	}
	return v.(knownUser), true
}

type mentionSpan struct {
	start, end int
	userID     int64
}

// withTextMentions attaches a text_mention entity for every mentioned user
// that has no username, so Telegram notifies them. Users with a username are
// notified by the "@username" text itself.
func (c *Channel) withTextMentions(text string, mentions []string) (string, []telego.MessageEntity) {
	var spans []mentionSpan
	for _, addr := range mentions {
		if u, _ := c.lookupUser(addr); u.username != "" {
			continue
		}
		id, err := strconv.ParseInt(addr, 10, 64)
		if err != nil {
			continue
		}
		token := c.MentionToken(addr)
		if start, ok := freeOccurrence(text, token, spans); ok {
			spans = append(spans, mentionSpan{start: start, end: start + len(token), userID: id})
		}
	}
	if len(spans) == 0 {
		return text, nil
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	parts := make([]tu.MessageEntityCollection, 0, 2*len(spans)+1)
	prev := 0
	for _, sp := range spans {
		parts = append(parts,
			tu.Entity(text[prev:sp.start]),
			tu.Entity(text[sp.start:sp.end]).TextMention(&telego.User{ID: sp.userID}))
		prev = sp.end
	}
	parts = append(parts, tu.Entity(text[prev:]))
	return tu.MessageEntities(parts...)
}

// freeOccurrence finds token in text outside the spans already taken.
func freeOccurrence(text, token string, taken []mentionSpan) (int, bool) {
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], token)
		if i < 0 {
			return 0, false
		}
		start := from + i
		end := start + len(token)
		overlaps := false
		for _, sp := range taken {
			if start < sp.end && sp.start < end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			return start, true
		}
		from = start + 1
	}
	return 0, false
}

// Send delivers text, or a photo with the text as caption. Text that does
// not fit a caption follows the photo as separate messages.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := parseChatID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", msg.ChatID, err)
	}
	to := tu.ID(chatID)
	text := msg.Content

	if msg.ImageURL != "" {
		photo := tu.Photo(to, tu.FileFromURL(msg.ImageURL))
		if len([]rune(text)) <= maxCaptionLen {
			caption, entities := c.withTextMentions(text, msg.Mentions)
			photo = photo.WithCaption(caption)
			photo.CaptionEntities = entities
			text = ""
		}
		if _, err := c.bot.SendPhoto(ctx, photo); err != nil {
			// A dead image link should not swallow the answer.
			slog.Warn("telegram photo send failed, falling back to text", "chat_id", chatID, "error", err)
			text = msg.Content
		}
	}

	for _, part := range chunkText(text, maxMessageLen) {
		body, entities := c.withTextMentions(part, msg.Mentions)
		params := tu.Message(to, body)
		params.Entities = entities
		if _, err := c.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

func parseChatID(chatIDStr string) (int64, error) {
	return strconv.ParseInt(chatIDStr, 10, 64)
}

// chunkText splits s into pieces of at most limit runes, preferring line breaks.
func chunkText(s string, limit int) []string {
	if s == "" {
		return nil
	}
	var out []string
	r := []rune(s)
	for len(r) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if r[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, string(r[:cut]))
		r = r[cut:]
	}
	return append(out, string(r))
}
