// Package whatsapp talks to a WhatsApp Web bridge over a websocket. The
// bridge owns the WhatsApp protocol and session; this side exchanges JSON
// frames with it.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/steamfamilyzap/kgbot/internal/bus"
	"github.com/steamfamilyzap/kgbot/internal/channels"
	"github.com/steamfamilyzap/kgbot/internal/config"
)

const userSuffix = "@s.whatsapp.net"

// frame is the bridge wire format. Inbound types: "message", "status",
// "pairing_code". Outbound types: "login", "message".
type frame struct {
	Type string `json:"type"`

	// message
	ID       string   `json:"id,omitempty"`
	From     string   `json:"from,omitempty"` // author (participant in groups)
	Chat     string   `json:"chat,omitempty"`
	FromName string   `json:"from_name,omitempty"`
	FromMe   bool     `json:"from_me,omitempty"`
	Content  string   `json:"content,omitempty"`
	Mentions []string `json:"mentions,omitempty"`

	// outbound message
	To    string `json:"to,omitempty"`
	Image string `json:"image,omitempty"`

	// status / pairing / login
	Status string `json:"status,omitempty"` // "open", "close"
	Reason string `json:"reason,omitempty"` // "logged_out" on a revoked session
	Code   string `json:"code,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// Channel connects to a WhatsApp bridge via WebSocket.
type Channel struct {
	*channels.BaseChannel
	config config.WhatsAppConfig
	conn   *channels.Connection
	dialer *websocket.Dialer

	mu     sync.Mutex
	ws     *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new WhatsApp channel from config.
func New(cfg config.WhatsAppConfig, router bus.MessageRouter, events bus.EventPublisher) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, errors.New("whatsapp bridge_url is required")
	}
	c := &Channel{
		BaseChannel: channels.NewBaseChannel(config.ChannelWhatsApp, router, cfg.AllowFrom),
		config:      cfg,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	c.conn = channels.NewConnection(config.ChannelWhatsApp, c.session, events)
	return c, nil
}

// Connection exposes the reconnect state machine for status reporting.
func (c *Channel) Connection() *channels.Connection { return c.conn }

// Start connects to the WhatsApp bridge WebSocket and begins listening.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.config.BridgeURL)
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		if err := c.conn.Run(runCtx); err != nil {
			slog.Error("whatsapp channel stopped", "error", err)
		}
		c.SetRunning(false)
	}()
	c.SetRunning(true)
	return nil
}

// Stop gracefully shuts down the WhatsApp channel.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.ws != nil {
		_ = c.ws.Close()
	}
	c.mu.Unlock()
	if c.done != nil {
		<-c.done
	}
	c.SetRunning(false)
	return nil
}

// MentionToken renders "@<number>" for a JID.
func (c *Channel) MentionToken(address string) string {
	if i := strings.IndexByte(address, '@'); i >= 0 {
		address = address[:i]
	}
	return "@" + address
}

// Send delivers an outbound message to the WhatsApp bridge. With an image
// the text becomes its caption.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	return c.write(frame{
		Type:     "message",
		To:       msg.ChatID,
		Content:  msg.Content,
		Image:    msg.ImageURL,
		Mentions: msg.Mentions,
	})
}

func (c *Channel) write(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal whatsapp frame: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return errors.New("whatsapp bridge not connected")
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send whatsapp frame: %w", err)
	}
	return nil
}

// session dials the bridge and reads frames until the socket drops.
func (c *Channel) session(ctx context.Context, opened func()) error {
	ws, _, err := c.dialer.DialContext(ctx, c.config.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.config.BridgeURL, err)
	}
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		_ = ws.Close()
		c.ws = nil
		c.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	// The bridge answers with a pairing code when the number is not linked yet.
	if err := c.write(frame{Type: "login", Phone: c.config.BotNumber}); err != nil {
		return err
	}
	slog.Info("whatsapp bridge connected", "url", c.config.BridgeURL)
	opened()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("whatsapp read: %w", err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("invalid whatsapp frame", "error", err)
			continue
		}
		switch f.Type {
		case "message":
			c.handleIncoming(f)
		case "pairing_code":
			slog.Info("whatsapp pairing code issued; link it under Linked devices > Link with phone number", "code", f.Code)
		case "status":
			if f.Status == "close" && f.Reason == "logged_out" {
				return channels.ErrLoggedOut
			}
			slog.Info("whatsapp bridge status", "status", f.Status, "reason", f.Reason)
		}
	}
}

func (c *Channel) botJID() string {
	return strings.TrimPrefix(c.config.BotNumber, "+") + userSuffix
}

// handleIncoming applies group gating: group traffic is only accepted from
// the configured family group and only when the bot is mentioned; the
// mention itself is stripped from the text.
func (c *Channel) handleIncoming(f frame) {
	if f.FromMe {
		return
	}
	chatID := f.Chat
	if chatID == "" {
		chatID = f.From
	}
	sender := f.From
	if sender == "" {
		sender = chatID
	}
	isGroup := strings.HasSuffix(chatID, "@g.us")
	text := strings.TrimSpace(f.Content)

	peerKind := bus.PeerDirect
	if isGroup {
		peerKind = bus.PeerGroup
		if c.config.GroupID != "" && chatID != c.config.GroupID {
			slog.Debug("whatsapp message from foreign group ignored", "chat_id", chatID)
			return
		}
		if !c.mentionsBot(f) {
			return
		}
		text = strings.TrimSpace(strings.ReplaceAll(text, c.MentionToken(c.botJID()), ""))
	}
	if !c.CheckPolicy(peerKind, c.config.DMPolicy, c.config.GroupPolicy, sender) {
		slog.Debug("whatsapp message rejected by policy", "sender_id", sender, "peer_kind", peerKind)
		return
	}
	if text == "" {
		return
	}

	slog.Debug("whatsapp message received",
		"sender_id", sender,
		"chat_id", chatID,
		"preview", channels.Truncate(text, 50),
	)
	c.HandleMessage(bus.InboundMessage{
		MessageID:  f.ID,
		SenderID:   sender,
		SenderName: f.FromName,
		ChatID:     chatID,
		Content:    text,
		PeerKind:   peerKind,
	})
}

func (c *Channel) mentionsBot(f frame) bool {
	jid := c.botJID()
	for _, m := range f.Mentions {
		if normalizeJID(m) == jid {
			return true
		}
	}
	return strings.Contains(f.Content, c.MentionToken(jid))
}

// normalizeJID drops the device suffix ("5511...:12@s.whatsapp.net").
func normalizeJID(jid string) string {
	user, server, ok := strings.Cut(jid, "@")
	if !ok {
		return jid
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return user + "@" + server
}
