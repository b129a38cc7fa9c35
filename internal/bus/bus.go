// Package bus moves messages between the transports and the agent, and fans
// out in-process events such as connection state changes.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultBuffer = 100

// MessageBus is a buffered in-process MessageRouter and EventPublisher.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
	seen     *Dedupe

	mu       sync.RWMutex
	handlers map[string]EventHandler
}

func New() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, defaultBuffer),
		outbound: make(chan OutboundMessage, defaultBuffer),
		seen:     NewDedupe(10*time.Minute, 4096),
		handlers: make(map[string]EventHandler),
	}
}

// PublishInbound queues msg for the consumer. Messages whose MessageID was
// already seen are dropped and false is returned.
func (b *MessageBus) PublishInbound(msg InboundMessage) bool {
	if msg.MessageID != "" && !b.seen.Add(msg.Channel+":"+msg.MessageID) {
		slog.Debug("bus: duplicate inbound dropped", "channel", msg.Channel, "message_id", msg.MessageID)
		return false
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	b.inbound <- msg
	return true
}

// ConsumeInbound blocks until a message arrives or ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// SubscribeOutbound blocks until an outbound message is queued or ctx is done.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = handler
}

func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Broadcast calls every subscriber synchronously.
func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
