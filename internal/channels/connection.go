package channels

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/steamfamilyzap/kgbot/internal/bus"
)

// ErrLoggedOut is returned by a session when the platform revoked the
// login. The connection stops retrying.
var ErrLoggedOut = errors.New("logged out")

// ConnState is the lifecycle state of a transport connection.
type ConnState string

const (
	StateConnecting ConnState = "connecting"
	StateOpen       ConnState = "open"
	StateClosed     ConnState = "closed"
	StateLoggedOut  ConnState = "logged_out"
)

// ConnectionEvent is broadcast on every state change.
type ConnectionEvent struct {
	Channel string    `json:"channel"`
	State   ConnState `json:"state"`
	Attempt int       `json:"attempt"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// SessionFunc runs one connection until it drops. It calls opened once the
// link is usable; returning ErrLoggedOut ends the reconnect loop.
type SessionFunc func(ctx context.Context, opened func()) error

// Connection owns dial and reconnect for a transport, backing off
// exponentially between attempts and resetting after a successful open.
type Connection struct {
	name       string
	session    SessionFunc
	events     bus.EventPublisher
	minBackoff time.Duration
	maxBackoff time.Duration
	sleep      func(ctx context.Context, d time.Duration) bool

	mu    sync.RWMutex
	state ConnState
}

func NewConnection(name string, session SessionFunc, events bus.EventPublisher) *Connection {
	return &Connection{
		name:       name,
		session:    session,
		events:     events,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		sleep:      sleepCtx,
		state:      StateClosed,
	}
}

// State returns the last published state.
func (c *Connection) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Run keeps the session alive until ctx is cancelled or the session
// reports ErrLoggedOut.
func (c *Connection) Run(ctx context.Context) error {
	backoff := c.minBackoff
	for attempt := 1; ; attempt++ {
		c.publish(StateConnecting, attempt, nil)

		opened := false
		err := c.session(ctx, func() {
			opened = true
			c.publish(StateOpen, attempt, nil)
		})
		if ctx.Err() != nil {
			c.publish(StateClosed, attempt, nil)
			return nil
		}
		if errors.Is(err, ErrLoggedOut) {
			c.publish(StateLoggedOut, attempt, err)
			slog.Error("channel logged out, not reconnecting", "channel", c.name)
			return err
		}
		c.publish(StateClosed, attempt, err)

		if opened {
			backoff = c.minBackoff
		}
		slog.Info("channel reconnecting", "channel", c.name, "backoff", backoff, "error", err)
		if !c.sleep(ctx, backoff) {
			c.publish(StateClosed, attempt, nil)
			return nil
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

func (c *Connection) publish(state ConnState, attempt int, err error) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	if c.events == nil {
		return
	}
	ev := ConnectionEvent{Channel: c.name, State: state, Attempt: attempt, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	c.events.Broadcast(bus.Event{Name: bus.EventConnection, Payload: ev})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
