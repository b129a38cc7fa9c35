package bus

import (
	"context"
	"time"
)

// Peer kinds.
const (
	PeerDirect = "direct"
	PeerGroup  = "group"
)

// InboundMessage represents a message received from a channel (WhatsApp, Telegram, Discord).
type InboundMessage struct {
	Channel    string            `json:"channel"`
	MessageID  string            `json:"message_id,omitempty"` // platform id, used for de-duplication
	SenderID   string            `json:"sender_id"`            // channel address of the author
	SenderName string            `json:"sender_name,omitempty"`
	ChatID     string            `json:"chat_id"` // where the reply goes
	Content    string            `json:"content"`
	PeerKind   string            `json:"peer_kind,omitempty"` // "direct" or "group"
	ReceivedAt time.Time         `json:"received_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
	// ImageURL is sent as a picture with Content as its caption.
	ImageURL string `json:"image_url,omitempty"`
	// Mentions lists channel addresses tagged in Content.
	Mentions []string          `json:"mentions,omitempty"`
	ReplyTo  string            `json:"reply_to,omitempty"` // inbound message id to quote, if supported
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Event represents a server-side event broadcast to in-process subscribers.
type Event struct {
	Name    string `json:"name"` // e.g. "connection"
	Payload any    `json:"payload,omitempty"`
}

// EventConnection carries a channels.ConnectionEvent.
const EventConnection = "connection"

// MessageHandler handles an inbound message from a specific channel.
type MessageHandler func(InboundMessage) error

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// MessageRouter abstracts inbound/outbound message routing between channels and the agent.
type MessageRouter interface {
	PublishInbound(msg InboundMessage) bool
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
