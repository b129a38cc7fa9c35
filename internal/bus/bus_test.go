package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishInboundDropsDuplicates(t *testing.T) {
	b := New()
	msg := InboundMessage{Channel: "whatsapp", MessageID: "ABC", SenderID: "5511@s.whatsapp.net", Content: "oi"}

	if !b.PublishInbound(msg) {
		t.Fatal("first publish rejected")
	}
	if b.PublishInbound(msg) {
		t.Fatal("duplicate accepted")
	}
	other := msg
	other.Channel = "telegram"
	if !b.PublishInbound(other) {
		t.Fatal("same id on another channel rejected")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, ok := b.ConsumeInbound(ctx)
	if !ok || got.Content != "oi" || got.ReceivedAt.IsZero() {
		t.Fatalf("consumed %+v, %v", got, ok)
	}
}

func TestConsumeInboundHonoursContext(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Fatal("expected no message after cancel")
	}
}

func TestDedupeExpires(t *testing.T) {
	d := NewDedupe(time.Minute, 2)
	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }

	if !d.Add("a") || d.Add("a") {
		t.Fatal("dedupe within ttl broken")
	}
	now = now.Add(2 * time.Minute)
	if !d.Add("a") {
		t.Fatal("key not forgotten after ttl")
	}
	d.Add("b")
	d.Add("c")
	if len(d.seen) > 2 {
		t.Fatalf("tracked %d keys, cap 2", len(d.seen))
	}
}

func TestBroadcast(t *testing.T) {
	b := New()
	var got []string
	b.Subscribe("x", func(e Event) { got = append(got, e.Name) })
	b.Broadcast(Event{Name: EventConnection})
	b.Unsubscribe("x")
	b.Broadcast(Event{Name: EventConnection})
	if len(got) != 1 || got[0] != EventConnection {
		t.Fatalf("events = %v", got)
	}
}
