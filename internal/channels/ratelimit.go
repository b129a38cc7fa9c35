package channels

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedKeys caps the number of tracked senders so a flood of new
// addresses cannot grow the map without bound.
const maxTrackedKeys = 4096

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// SenderLimiter is a token bucket per sender. Safe for concurrent use.
type SenderLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	entries map[string]*limiterEntry
	now     func() time.Time
}

// NewSenderLimiter allows perMinute messages per sender with the given burst.
// A non-positive perMinute returns nil, which allows everything.
func NewSenderLimiter(perMinute, burst int) *SenderLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = max(1, perMinute/4)
	}
	return &SenderLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		idle:    10 * time.Minute,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

// Allow reports whether key may send one more message now.
func (l *SenderLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.entries) >= maxTrackedKeys {
		for k, e := range l.entries {
			if now.Sub(e.lastSeen) >= l.idle {
				delete(l.entries, k)
			}
		}
		for k := range l.entries {
			if len(l.entries) < maxTrackedKeys {
				break
			}
			delete(l.entries, k)
		}
	}

	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}
