package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/steamfamilyzap/kgbot/internal/bus"
)

// Manager owns the channel lifecycle and routes outbound messages
// to the channel they are addressed to.
type Manager struct {
	channels map[string]Channel
	bus      bus.MessageRouter
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.RWMutex
}

// NewManager creates a new channel manager.
func NewManager(router bus.MessageRouter) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      router,
	}
}

// RegisterChannel adds a channel to the manager.
func (m *Manager) RegisterChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// GetChannel returns a channel by name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// StartAll starts every registered channel and the outbound dispatch loop.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.dispatchOutbound(dispatchCtx, m.done)

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}
	for name, ch := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("start channel %s: %w", name, err)
		}
	}
	return nil
}

// StopAll stops the outbound dispatch loop and every channel.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		slog.Info("stopping channel", "channel", name)
		if err := ch.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
	return nil
}

func (m *Manager) dispatchOutbound(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}

		m.mu.RLock()
		ch, exists := m.channels[msg.Channel]
		m.mu.RUnlock()
		if !exists {
			slog.Warn("unknown channel for outbound message", "channel", msg.Channel)
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			slog.Error("error sending message to channel", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		}
	}
}

// Status reports the running state of every channel.
func (m *Manager) Status() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		out[name] = ch.IsRunning()
	}
	return out
}
