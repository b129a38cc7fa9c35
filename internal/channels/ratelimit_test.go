package channels

import (
	"testing"
	"time"
)

func TestSenderLimiter(t *testing.T) {
	l := NewSenderLimiter(60, 2)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	if !l.Allow("ana") || !l.Allow("ana") {
		t.Fatal("burst not honoured")
	}
	if l.Allow("ana") {
		t.Fatal("third message inside the burst window allowed")
	}
	if !l.Allow("bia") {
		t.Fatal("limit leaked across senders")
	}
	now = now.Add(time.Second)
	if !l.Allow("ana") {
		t.Fatal("token not refilled after one second")
	}
}

func TestSenderLimiterDisabled(t *testing.T) {
	var l *SenderLimiter = NewSenderLimiter(0, 0)
	if l != nil {
		t.Fatal("zero rate should disable limiting")
	}
	for range 100 {
		if !l.Allow("ana") {
			t.Fatal("nil limiter rejected a message")
		}
	}
}
