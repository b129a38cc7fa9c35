package channels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/steamfamilyzap/kgbot/internal/bus"
)

type recorder struct {
	mu     sync.Mutex
	states []ConnState
}

func (r *recorder) Subscribe(string, bus.EventHandler) {}
func (r *recorder) Unsubscribe(string)                 {}
func (r *recorder) Broadcast(e bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, e.Payload.(ConnectionEvent).State)
}

func TestConnectionBackoffAndLogout(t *testing.T) {
	rec := &recorder{}
	calls := 0
	session := func(ctx context.Context, opened func()) error {
		calls++
		switch calls {
		case 1, 2:
			return errors.New("dial refused")
		case 3:
			opened()
			return errors.New("socket closed")
		case 4:
			return errors.New("dial refused")
		default:
			return ErrLoggedOut
		}
	}

	c := NewConnection("whatsapp", session, rec)
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) bool {
		sleeps = append(sleeps, d)
		return true
	}

	err := c.Run(context.Background())
	if !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("Run err = %v, want ErrLoggedOut", err)
	}
	// 1s, 2s, then reset to 1s after the open on attempt 3, then 2s.
	want := []time.Duration{time.Second, 2 * time.Second, time.Second, 2 * time.Second}
	if diff := cmp.Diff(want, sleeps); diff != "" {
		t.Fatalf("backoff mismatch (-want +got):\n%s", diff)
	}
	if c.State() != StateLoggedOut {
		t.Fatalf("state = %s", c.State())
	}
	if rec.states[len(rec.states)-1] != StateLoggedOut {
		t.Fatalf("last event = %s", rec.states[len(rec.states)-1])
	}
}

func TestConnectionBackoffCaps(t *testing.T) {
	calls := 0
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewConnection("telegram", func(context.Context, func()) error {
		calls++
		return errors.New("down")
	}, nil)
	var last time.Duration
	c.sleep = func(_ context.Context, d time.Duration) bool {
		last = d
		if calls == 10 {
			cancel()
			return false
		}
		return true
	}
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run err = %v, want nil on cancellation", err)
	}
	if last != 30*time.Second {
		t.Fatalf("last backoff = %v, want cap of 30s", last)
	}
	if c.State() != StateClosed {
		t.Fatalf("state = %s", c.State())
	}
}

func TestConnectionStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewConnection("discord", func(ctx context.Context, opened func()) error {
		opened()
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run err = %v", err)
	}
}
