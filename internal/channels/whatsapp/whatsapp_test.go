package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/steamfamilyzap/kgbot/internal/bus"
	"github.com/steamfamilyzap/kgbot/internal/config"
)

const (
	botNumber = "5511900000000"
	groupID   = "120363000000000000@g.us"
)

func newTestChannel(t *testing.T, url string) (*Channel, *bus.MessageBus) {
	t.Helper()
	b := bus.New()
	c, err := New(config.WhatsAppConfig{BridgeURL: url, BotNumber: botNumber, GroupID: groupID}, b, b)
	if err != nil {
		t.Fatal(err)
	}
	return c, b
}

func TestHandleIncomingGating(t *testing.T) {
	c, b := newTestChannel(t, "ws://unused")
	botJID := botNumber + "@s.whatsapp.net"

	tests := []struct {
		name   string
		in     frame
		want   bool
		wantTx string
	}{
		{"direct", frame{ID: "1", From: "551100000001@s.whatsapp.net", Content: "oi"}, true, "oi"},
		{"own message", frame{ID: "2", From: botJID, FromMe: true, Content: "oi"}, false, ""},
		{"group without mention", frame{ID: "3", From: "551100000001@s.whatsapp.net", Chat: groupID, Content: "bom dia"}, false, ""},
		{"group with mention", frame{ID: "4", From: "551100000001@s.whatsapp.net", Chat: groupID,
			Content: "@" + botNumber + " status da vaquinha", Mentions: []string{botNumber + ":3@s.whatsapp.net"}}, true, "status da vaquinha"},
		{"other group", frame{ID: "5", From: "551100000001@s.whatsapp.net", Chat: "999@g.us",
			Content: "@" + botNumber + " oi", Mentions: []string{botJID}}, false, ""},
		{"mention only", frame{ID: "6", From: "551100000001@s.whatsapp.net", Chat: groupID,
			Content: "@" + botNumber, Mentions: []string{botJID}}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.handleIncoming(tt.in)
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			msg, ok := b.ConsumeInbound(ctx)
			if ok != tt.want {
				t.Fatalf("published = %v, want %v (%+v)", ok, tt.want, msg)
			}
			if ok && msg.Content != tt.wantTx {
				t.Fatalf("content = %q, want %q", msg.Content, tt.wantTx)
			}
			if ok && tt.in.Chat == groupID && (msg.PeerKind != bus.PeerGroup || msg.ChatID != groupID || msg.SenderID != tt.in.From) {
				t.Fatalf("group routing = %+v", msg)
			}
		})
	}
}

func TestMentionToken(t *testing.T) {
	c, _ := newTestChannel(t, "ws://unused")
	if got := c.MentionToken("551100000001@s.whatsapp.net"); got != "@551100000001" {
		t.Fatalf("MentionToken = %q", got)
	}
}

func TestBridgeRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan frame, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		defer ws.Close()
		ws.WriteJSON(frame{Type: "message", ID: "m1", From: "551100000001@s.whatsapp.net", Content: "oi bot"})
		for {
			var f frame
			if err := ws.ReadJSON(&f); err != nil {
				return
			}
			received <- f
		}
	}))
	defer srv.Close()

	c, b := newTestChannel(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer c.Stop(context.Background())

	login := <-received
	if login.Type != "login" || login.Phone != botNumber {
		t.Fatalf("login frame = %+v", login)
	}

	msg, ok := b.ConsumeInbound(ctx)
	if !ok || msg.Content != "oi bot" || msg.MessageID != "m1" {
		t.Fatalf("inbound = %+v", msg)
	}

	err := c.Send(ctx, bus.OutboundMessage{
		ChatID:   groupID,
		Content:  "Faltam: @551100000001",
		Mentions: []string{"551100000001@s.whatsapp.net"},
		ImageURL: "https://cdn.example/header.jpg",
	})
	if err != nil {
		t.Fatal(err)
	}
	out := <-received
	raw, _ := json.Marshal(out)
	if out.Type != "message" || out.To != groupID || out.Image == "" || len(out.Mentions) != 1 {
		t.Fatalf("outbound frame = %s", raw)
	}
}
