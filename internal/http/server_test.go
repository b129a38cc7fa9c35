package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/steamfamilyzap/kgbot/internal/bus"
	"github.com/steamfamilyzap/kgbot/internal/channels"
	"github.com/steamfamilyzap/kgbot/internal/store"
	"github.com/steamfamilyzap/kgbot/internal/store/sqlite"
)

type staticStatus map[string]bool

func (s staticStatus) Status() map[string]bool { return s }

func newTestServer(t *testing.T, token string) (*Server, *store.Stores, *bus.MessageBus) {
	t.Helper()
	stores, db, err := sqlite.NewSQLiteStores(filepath.Join(t.TempDir(), "kgbot.db"))
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	mb := bus.New()
	srv := NewServer(Deps{
		Stores:   stores,
		Channels: staticStatus{"whatsapp": true},
		Events:   mb,
		Token:    token,
		Version:  "test",
	})
	return srv, stores, mb
}

func do(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")
	rec := do(t, srv.Handler(), "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != HealthBody {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")
	h := srv.Handler()

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"valid", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "/v1/family", tt.token)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestActiveCampaign(t *testing.T) {
	srv, stores, _ := newTestServer(t, "")
	h := srv.Handler()
	ctx := context.Background()

	rec := do(t, h, "/v1/vaquinha", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no campaign: status = %d", rec.Code)
	}
	var errBody map[string]errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
		t.Fatal(err)
	}
	if errBody["error"].Code != "no_active_campaign" {
		t.Fatalf("error body = %+v", errBody)
	}

	if err := stores.Profiles.Register(ctx, "1", "ana", "addr-1"); err != nil {
		t.Fatal(err)
	}
	if err := stores.Games.UpsertDetails(ctx, &store.Game{AppID: 620, Name: "Portal 2"}); err != nil {
		t.Fatal(err)
	}
	c := &store.Campaign{AppID: 620, TargetMinor: 5000, StartedBy: "1"}
	if err := stores.Campaigns.Create(ctx, c); err != nil {
		t.Fatal(err)
	}
	if _, _, err := stores.Campaigns.AddContribution(ctx, c.ID, "1", 1250); err != nil {
		t.Fatal(err)
	}

	rec = do(t, h, "/v1/vaquinha", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var got campaignResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.GameName != "Portal 2" || got.Target != 50 || got.Collected != 12.5 || got.Remaining != 37.5 {
		t.Fatalf("campaign = %+v", got)
	}
	if got.Starter != "ana" || len(got.Contributions) != 1 || got.Contributions[0].Nickname != "ana" {
		t.Fatalf("campaign people = %+v", got)
	}

	rec = do(t, h, "/v1/vaquinha/history?limit=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: status = %d", rec.Code)
	}
	rec = do(t, h, "/v1/vaquinha/history", "")
	var history []campaignResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history = %d", len(history))
	}
}

func TestFamilyHidesAddresses(t *testing.T) {
	srv, stores, _ := newTestServer(t, "")
	ctx := context.Background()
	if err := stores.Profiles.Register(ctx, "1", "ana", "5511999990000@s.whatsapp.net"); err != nil {
		t.Fatal(err)
	}
	if err := stores.Profiles.Register(ctx, "2", "bia", ""); err != nil {
		t.Fatal(err)
	}

	rec := do(t, srv.Handler(), "/v1/family", "")
	if strings.Contains(rec.Body.String(), "whatsapp") {
		t.Fatalf("address leaked: %s", rec.Body.String())
	}
	var got []memberResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	registered := map[string]bool{}
	for _, m := range got {
		registered[m.Nickname] = m.Registered
	}
	if diff := cmp.Diff(map[string]bool{"ana": true, "bia": false}, registered); diff != "" {
		t.Fatalf("registered mismatch (-want +got):\n%s", diff)
	}
}

func TestCopies(t *testing.T) {
	srv, stores, _ := newTestServer(t, "")
	ctx := context.Background()
	for _, id := range []string{"1", "2"} {
		if err := stores.Profiles.Register(ctx, id, "p"+id, ""); err != nil {
			t.Fatal(err)
		}
		if err := stores.Games.ReplaceOwnership(ctx, id, []store.OwnedGame{{AppID: 10, Name: "Zeta"}}); err != nil {
			t.Fatal(err)
		}
	}

	rec := do(t, srv.Handler(), "/v1/family/copies", "")
	var got []store.GameCopies
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]store.GameCopies{{AppID: 10, Name: "Zeta", Copies: 2}}, got); diff != "" {
		t.Fatalf("copies mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusTracksConnections(t *testing.T) {
	srv, stores, mb := newTestServer(t, "")
	ctx := context.Background()

	mb.Broadcast(bus.Event{Name: bus.EventConnection, Payload: channels.ConnectionEvent{
		Channel: "whatsapp", State: channels.StateOpen, Attempt: 1,
	}})
	id, err := stores.SyncRuns.Start(ctx, store.SyncKindFamily)
	if err != nil {
		t.Fatal(err)
	}
	if err := stores.SyncRuns.Finish(ctx, id, 2, 30, nil); err != nil {
		t.Fatal(err)
	}

	rec := do(t, srv.Handler(), "/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if !got.Channels["whatsapp"] {
		t.Fatalf("channels = %+v", got.Channels)
	}
	if got.Connections["whatsapp"].State != channels.StateOpen {
		t.Fatalf("connections = %+v", got.Connections)
	}
	if run := got.LastSync[store.SyncKindFamily]; run == nil || run.Games != 30 {
		t.Fatalf("last family sync = %+v", run)
	}
	if got.LastSync[store.SyncKindCatalog] != nil {
		t.Fatalf("unexpected catalog run")
	}
}
