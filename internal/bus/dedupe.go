package bus

import (
	"sync"
	"time"
)

// Dedupe remembers keys for a limited time. Bridges redeliver messages on
// reconnect, so inbound ids are checked here before reaching the agent.
type Dedupe struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxKeys int
	seen    map[string]time.Time
	now     func() time.Time
}

func NewDedupe(ttl time.Duration, maxKeys int) *Dedupe {
	return &Dedupe{ttl: ttl, maxKeys: maxKeys, seen: make(map[string]time.Time), now: time.Now}
}

// Add records key and reports whether it was new.
func (d *Dedupe) Add(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.ttl {
		return false
	}
	if len(d.seen) >= d.maxKeys {
		for k, at := range d.seen {
			if now.Sub(at) >= d.ttl {
				delete(d.seen, k)
			}
		}
		// still full: evict arbitrary keys
		for k := range d.seen {
			if len(d.seen) < d.maxKeys {
				break
			}
			delete(d.seen, k)
		}
	}
	d.seen[key] = now
	return true
}
