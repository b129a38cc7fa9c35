package agent

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/steamfamilyzap/kgbot/internal/bus"
	"github.com/steamfamilyzap/kgbot/internal/channels"
	"github.com/steamfamilyzap/kgbot/internal/mentions"
)

// TokenSource returns the mention renderer of a channel.
type TokenSource func(channel string) mentions.TokenFunc

// ChannelTokens adapts a channel manager to a TokenSource.
func ChannelTokens(m *channels.Manager) TokenSource {
	return func(name string) mentions.TokenFunc {
		if ch, ok := m.GetChannel(name); ok {
			return ch.MentionToken
		}
		return nil
	}
}

// Handle processes one inbound message. Unknown senders are ignored; any
// fault is logged and answered with an apology addressed to the sender.
func (a *Agent) Handle(ctx context.Context, msg bus.InboundMessage, tokens TokenSource) *bus.OutboundMessage {
	ctx, span := a.tracer.Start(ctx, "agent.message",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("channel", msg.Channel),
			attribute.String("peer_kind", msg.PeerKind),
		))
	defer span.End()

	requester, err := a.directory.FindByChannelAddress(ctx, msg.SenderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sender lookup failed")
		slog.Error("sender lookup failed", "channel", msg.Channel, "sender_id", msg.SenderID, "error", err)
		return apology(msg)
	}
	if requester == nil {
		slog.Warn("message from unregistered sender ignored", "channel", msg.Channel, "sender_id", msg.SenderID)
		return nil
	}
	slog.Info("message received", "channel", msg.Channel, "from", requester.Nickname, "chat_id", msg.ChatID,
		"preview", channels.Truncate(msg.Content, 60))

	var token mentions.TokenFunc
	if tokens != nil {
		token = tokens(msg.Channel)
	}
	reply, err := a.Respond(ctx, requester, msg.Content, token)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.Error("message handling failed", "channel", msg.Channel, "from", requester.Nickname, "error", err)
		return apology(msg)
	}
	if reply == nil {
		return nil
	}
	return &bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		Content:  reply.Text,
		ImageURL: reply.ImageURL,
		Mentions: reply.Mentions,
		ReplyTo:  msg.MessageID,
	}
}

// apology goes to the sender directly, not to the group.
func apology(msg bus.InboundMessage) *bus.OutboundMessage {
	return &bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.SenderID, Content: MsgApology}
}

// Run consumes inbound messages one at a time until ctx is done.
func (a *Agent) Run(ctx context.Context, router bus.MessageRouter, tokens TokenSource) {
	slog.Info("agent consumer started", "provider", a.provider.Name(), "model", a.model)
	for {
		msg, ok := router.ConsumeInbound(ctx)
		if !ok {
			slog.Info("agent consumer stopped")
			return
		}
		if out := a.Handle(ctx, msg, tokens); out != nil {
			router.PublishOutbound(*out)
		}
	}
}
