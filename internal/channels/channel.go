// Package channels connects messaging platforms (WhatsApp bridge, Telegram,
// Discord) to the agent via the message bus. One channel runs per process.
package channels

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/steamfamilyzap/kgbot/internal/bus"
)

// DMPolicy controls how direct messages are handled.
type DMPolicy string

const (
	DMPolicyAllowlist DMPolicy = "allowlist" // Only whitelisted senders
	DMPolicyOpen      DMPolicy = "open"      // Accept all
	DMPolicyDisabled  DMPolicy = "disabled"  // Reject all DMs
)

// GroupPolicy controls how group messages are handled.
type GroupPolicy string

const (
	GroupPolicyOpen      GroupPolicy = "open"
	GroupPolicyAllowlist GroupPolicy = "allowlist"
	GroupPolicyDisabled  GroupPolicy = "disabled"
)

// Channel defines the interface that all channel implementations must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g., "whatsapp", "telegram", "discord").
	Name() string

	// Start begins listening for messages. Should be non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the channel.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning returns whether the channel is actively processing messages.
	IsRunning() bool

	// IsAllowed checks if a sender is permitted by the channel's allowlist.
	IsAllowed(senderID string) bool

	// MentionToken renders the in-text tag for a channel address
	// ("@5511999999999" on WhatsApp, "<@123>" on Discord).
	MentionToken(address string) string
}

// BaseChannel provides shared functionality for all channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name      string
	bus       bus.MessageRouter
	running   atomic.Bool
	allowList []string
	limiter   *SenderLimiter
}

// NewBaseChannel creates a new BaseChannel with the given parameters.
func NewBaseChannel(name string, router bus.MessageRouter, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       router,
		allowList: allowList,
	}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// SetLimiter installs a per-sender inbound rate limiter.
func (c *BaseChannel) SetLimiter(l *SenderLimiter) { c.limiter = l }

// HasAllowList returns true if an allowlist is configured (non-empty).
func (c *BaseChannel) HasAllowList() bool { return len(c.allowList) > 0 }

// IsAllowed checks if a sender is permitted by the allowlist.
// Supports compound senderID format: "123456|username".
// Empty allowlist means all senders are allowed.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}
	// WhatsApp addresses are matched on the phone number alone.
	if idx := strings.Index(idPart, "@"); idx > 0 {
		idPart = idPart[:idx]
	}

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(strings.TrimSpace(allowed), "@")
		if trimmed == "" {
			continue
		}
		if senderID == trimmed || idPart == trimmed || (userPart != "" && userPart == trimmed) {
			return true
		}
	}
	return false
}

// CheckPolicy evaluates DM/Group policy for a message.
// peerKind is "direct" or "group"; an empty policy means "open".
func (c *BaseChannel) CheckPolicy(peerKind, dmPolicy, groupPolicy, senderID string) bool {
	policy := dmPolicy
	if peerKind == bus.PeerGroup {
		policy = groupPolicy
	}
	switch policy {
	case string(DMPolicyDisabled):
		return false
	case string(DMPolicyAllowlist):
		return c.IsAllowed(senderID)
	default:
		return true
	}
}

// HandleMessage applies the per-sender rate limit and publishes msg to the
// bus. Policy checks happen in the channel before this call.
// Returns false when the message was dropped.
func (c *BaseChannel) HandleMessage(msg bus.InboundMessage) bool {
	if c.limiter != nil && !c.limiter.Allow(msg.SenderID) {
		slog.Warn("message rate limited", "channel", c.name, "sender_id", msg.SenderID)
		return false
	}
	msg.Channel = c.name
	if msg.PeerKind == "" {
		msg.PeerKind = bus.PeerDirect
	}
	return c.bus.PublishInbound(msg)
}

// Truncate shortens a string to maxLen runes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
