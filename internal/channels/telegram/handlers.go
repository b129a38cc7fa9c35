package telegram

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/mymmrac/telego"

	"github.com/steamfamilyzap/kgbot/internal/bus"
	"github.com/steamfamilyzap/kgbot/internal/channels"
)

// handleMessage gates and publishes one Telegram message. Returns true when
// the message reached the bus.
func (c *Channel) handleMessage(message *telego.Message, botUsername string) bool {
	user := message.From
	if user == nil || user.IsBot {
		return false
	}

	userID := strconv.FormatInt(user.ID, 10)
	c.users.Store(userID, knownUser{username: user.Username, firstName: user.FirstName})
	chatIDStr := strconv.FormatInt(message.Chat.ID, 10)
	isGroup := message.Chat.Type == "group" || message.Chat.Type == "supergroup"

	content := message.Text
	if content == "" {
		content = message.Caption
	}

	peerKind := bus.PeerDirect
	if isGroup {
		peerKind = bus.PeerGroup
		if c.config.GroupID != "" && chatIDStr != c.config.GroupID {
			slog.Debug("telegram message from foreign group ignored", "chat_id", chatIDStr)
			return false
		}
		if c.requireMention {
			if !c.detectMention(message, botUsername) {
				return false
			}
			content = stripMention(content, botUsername)
		}
	}

	compositeID := userID
	if user.Username != "" {
		compositeID = userID + "|" + user.Username
	}
	if !c.CheckPolicy(peerKind, c.config.DMPolicy, c.config.GroupPolicy, compositeID) {
		slog.Debug("telegram message rejected by policy", "user_id", userID, "peer_kind", peerKind)
		return false
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}

	slog.Debug("telegram message received",
		"chat_id", chatIDStr,
		"user_id", userID,
		"username", user.Username,
		"preview", channels.Truncate(content, 50),
	)

	senderName := user.FirstName
	if senderName == "" {
		senderName = user.Username
	}
	// SenderID is the bare numeric id: it is what family members register.
	return c.HandleMessage(bus.InboundMessage{
		MessageID:  chatIDStr + ":" + strconv.Itoa(message.MessageID),
		SenderID:   userID,
		SenderName: senderName,
		ChatID:     chatIDStr,
		Content:    content,
		PeerKind:   peerKind,
		ReceivedAt: time.Unix(int64(message.Date), 0),
		Metadata: map[string]string{
			"username": user.Username,
		},
	})
}

// detectMention checks if a Telegram message mentions the bot.
// Checks both msg.Text/Entities (text messages) and msg.Caption/CaptionEntities (photo/media messages).
func (c *Channel) detectMention(msg *telego.Message, botUsername string) bool {
	if botUsername == "" {
		return false
	}
	lowerBot := strings.ToLower(botUsername)

	for _, pair := range []struct {
		entities []telego.MessageEntity
		text     string
	}{
		{msg.Entities, msg.Text},
		{msg.CaptionEntities, msg.Caption},
	} {
		if pair.text == "" {
			continue
		}
		// Entity offsets are in UTF-16 code units.
		units := utf16Units(pair.text)
		for _, entity := range pair.entities {
			if entity.Type != "mention" && entity.Type != "bot_command" {
				continue
			}
			if entity.Offset < 0 || entity.Offset+entity.Length > len(units) {
				continue
			}
			mentioned := strings.ToLower(decodeUnits(units[entity.Offset : entity.Offset+entity.Length]))
			if mentioned == "@"+lowerBot || strings.HasSuffix(mentioned, "@"+lowerBot) {
				return true
			}
		}
	}

	// Fallback: substring check in both text and caption
	if strings.Contains(strings.ToLower(msg.Text), "@"+lowerBot) ||
		strings.Contains(strings.ToLower(msg.Caption), "@"+lowerBot) {
		return true
	}

	// Reply to bot's message = implicit mention
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		if strings.EqualFold(msg.ReplyToMessage.From.Username, botUsername) {
			return true
		}
	}
	return false
}

// stripMention removes every "@botUsername" (any case) from text.
func stripMention(text, botUsername string) string {
	if botUsername == "" {
		return text
	}
	re := regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(botUsername) + `\b`)
	return strings.TrimSpace(re.ReplaceAllString(text, ""))
}

func utf16Units(s string) []uint16 { return utf16.Encode([]rune(s)) }

func decodeUnits(u []uint16) string { return string(utf16.Decode(u)) }
