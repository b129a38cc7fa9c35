package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/steamfamilyzap/kgbot/internal/store"
)

func newTestStores(t *testing.T) *store.Stores {
	t.Helper()
	stores, db, err := NewSQLiteStores(filepath.Join(t.TempDir(), "kgbot.db"))
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return stores
}

func seedProfile(t *testing.T, s *store.Stores, steamID, nick, addr string) {
	t.Helper()
	if err := s.Profiles.Register(context.Background(), steamID, nick, addr); err != nil {
		t.Fatalf("register %s: %v", nick, err)
	}
}

func TestFindByNameExactBeatsSubstring(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	n, err := s.Games.InsertBatch(ctx, []store.Game{
		{AppID: 380, Name: "Half-Life 2: Episode One"},
		{AppID: 220, Name: "Half-Life 2"},
		{AppID: 420, Name: "Half-Life 2: Episode Two"},
		{AppID: 620, Name: "Portal 2"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n != 4 {
		t.Fatalf("inserted = %d, want 4", n)
	}

	tests := []struct {
		query string
		want  int64
	}{
		{"half-life 2", 220},
		{"HALF-LIFE 2", 220},
		{"Episode One", 380},
		{"episode", 380},
		{"portal", 620},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			g, err := s.Games.FindByName(ctx, tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if g == nil || g.AppID != tt.want {
				t.Fatalf("FindByName(%q) = %+v, want app %d", tt.query, g, tt.want)
			}
		})
	}

	g, err := s.Games.FindByName(ctx, "100%")
	if err != nil || g != nil {
		t.Fatalf("FindByName(100%%) = %+v, %v; want nil, nil", g, err)
	}
}

func TestInsertBatchSkipsKnownGames(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	if _, err := s.Games.InsertBatch(ctx, []store.Game{{AppID: 1, Name: "A"}}); err != nil {
		t.Fatal(err)
	}
	n, err := s.Games.InsertBatch(ctx, []store.Game{{AppID: 1, Name: "A renamed"}, {AppID: 2, Name: "B"}})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("inserted = %d, want 1", n)
	}
	g, _ := s.Games.Get(ctx, 1)
	if g.Name != "A" {
		t.Fatalf("existing name overwritten: %q", g.Name)
	}
}

func TestProfileUpsertKeepsNicknameAndAddress(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	seedProfile(t, s, "76561198000000001", "kaio", "551100000001@s.whatsapp.net")

	err := s.Profiles.Upsert(ctx, &store.Profile{
		SteamID:        "76561198000000001",
		Nickname:       "SomethingElse",
		PersonaName:    "K410",
		ChannelAddress: "other@s.whatsapp.net",
		PersonaState:   1,
	})
	if err != nil {
		t.Fatal(err)
	}

	p, err := s.Profiles.FindByNickname(ctx, "KAIO")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil {
		t.Fatal("profile not found by nickname")
	}
	if p.Nickname != "kaio" || p.PersonaName != "K410" || p.PersonaState != 1 {
		t.Fatalf("unexpected profile %+v", p)
	}
	if p.ChannelAddress != "551100000001@s.whatsapp.net" {
		t.Fatalf("address changed to %q", p.ChannelAddress)
	}

	byAddr, _ := s.Profiles.FindByChannelAddress(ctx, "551100000001@s.whatsapp.net")
	if byAddr == nil || byAddr.SteamID != "76561198000000001" {
		t.Fatalf("FindByChannelAddress = %+v", byAddr)
	}
}

func TestProfileUpsertNicknameCollision(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	seedProfile(t, s, "76561198000000001", "gabe", "")

	if err := s.Profiles.Upsert(ctx, &store.Profile{SteamID: "76561198000009999", PersonaName: "Gabe"}); err != nil {
		t.Fatal(err)
	}
	p, _ := s.Profiles.FindByExternalID(ctx, "76561198000009999")
	if p == nil || p.Nickname != "Gabe_9999" {
		t.Fatalf("collision nickname = %+v, want Gabe_9999", p)
	}
}

func TestRegisterMovesAddress(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	seedProfile(t, s, "1", "ana", "addr-1")
	seedProfile(t, s, "2", "bia", "addr-1")

	old, _ := s.Profiles.FindByExternalID(ctx, "1")
	if old.ChannelAddress != "" {
		t.Fatalf("old owner kept address %q", old.ChannelAddress)
	}
	p, _ := s.Profiles.FindByChannelAddress(ctx, "addr-1")
	if p == nil || p.SteamID != "2" {
		t.Fatalf("address owner = %+v, want 2", p)
	}
}

func TestCopiesReportOrdering(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	seedProfile(t, s, "1", "ana", "")
	seedProfile(t, s, "2", "bia", "")
	seedProfile(t, s, "3", "caio", "")

	own := func(id string, apps ...int64) {
		var owned []store.OwnedGame
		names := map[int64]string{10: "Zeta", 20: "Alpha", 30: "Beta"}
		for _, a := range apps {
			owned = append(owned, store.OwnedGame{AppID: a, Name: names[a], PlaytimeMinutes: int(a)})
		}
		if err := s.Games.ReplaceOwnership(ctx, id, owned); err != nil {
			t.Fatal(err)
		}
	}
	own("1", 10, 20, 30)
	own("2", 10, 30)
	own("3", 10, 20)

	got, err := s.Games.CopiesReport(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []store.GameCopies{
		{AppID: 10, Name: "Zeta", Copies: 3},
		{AppID: 20, Name: "Alpha", Copies: 2},
		{AppID: 30, Name: "Beta", Copies: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("CopiesReport mismatch (-want +got):\n%s", diff)
	}

	if err := s.Games.UpsertDetails(ctx, &store.Game{AppID: 30, Name: "Beta", FamilySharing: true}); err != nil {
		t.Fatal(err)
	}
	shared, err := s.Games.FamilySharing(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]store.GameCopies{{AppID: 30, Name: "Beta", Copies: 2}}, shared); diff != "" {
		t.Fatalf("FamilySharing mismatch (-want +got):\n%s", diff)
	}

	owned, _ := s.Games.Owned(ctx, "1")
	if len(owned) != 3 || owned[0].AppID != 30 {
		t.Fatalf("Owned not ordered by playtime: %+v", owned)
	}

	own("1")
	owned, _ = s.Games.Owned(ctx, "1")
	if len(owned) != 0 {
		t.Fatalf("ReplaceOwnership left %d rows", len(owned))
	}
}

func TestCampaignLifecycle(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	seedProfile(t, s, "1", "ana", "")
	seedProfile(t, s, "2", "bia", "")
	if err := s.Games.UpsertDetails(ctx, &store.Game{AppID: 620, Name: "Portal 2"}); err != nil {
		t.Fatal(err)
	}

	c := &store.Campaign{AppID: 620, TargetMinor: 1999, StartedBy: "1"}
	if err := s.Campaigns.Create(ctx, c); err != nil {
		t.Fatal(err)
	}
	err := s.Campaigns.Create(ctx, &store.Campaign{AppID: 620, TargetMinor: 100, StartedBy: "2"})
	if !errors.Is(err, store.ErrCampaignActive) {
		t.Fatalf("second Create err = %v, want ErrCampaignActive", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := "1"
			if i%2 == 0 {
				sid = "2"
			}
			if _, _, err := s.Campaigns.AddContribution(ctx, c.ID, sid, 100); err != nil {
				t.Errorf("contribution %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	active, err := s.Campaigns.GetActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if active == nil || active.CollectedMinor != 1000 || len(active.Contributions) != 10 {
		t.Fatalf("active = %+v", active)
	}
	if active.GameName != "Portal 2" || active.StarterNickname != "ana" {
		t.Fatalf("joined fields = %q / %q", active.GameName, active.StarterNickname)
	}

	if err := s.Campaigns.SetStatus(ctx, c.ID, store.CampaignCompleted); err != nil {
		t.Fatal(err)
	}
	if err := s.Campaigns.SetStatus(ctx, c.ID, store.CampaignCancelled); !errors.Is(err, store.ErrCampaignNotActive) {
		t.Fatalf("second SetStatus err = %v", err)
	}
	if _, _, err := s.Campaigns.AddContribution(ctx, c.ID, "1", 1); !errors.Is(err, store.ErrCampaignNotActive) {
		t.Fatalf("contribution after completion err = %v", err)
	}
	if a, _ := s.Campaigns.GetActive(ctx); a != nil {
		t.Fatalf("GetActive after completion = %+v", a)
	}

	if err := s.Campaigns.Create(ctx, &store.Campaign{AppID: 620, TargetMinor: 100, StartedBy: "2"}); err != nil {
		t.Fatalf("Create after completion: %v", err)
	}
	recent, _ := s.Campaigns.ListRecent(ctx, 5)
	if len(recent) != 2 {
		t.Fatalf("ListRecent = %d rows", len(recent))
	}
}

func TestAddContributionCompletesInSameStatement(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	seedProfile(t, s, "1", "ana", "")
	if err := s.Games.UpsertDetails(ctx, &store.Game{AppID: 620, Name: "Portal 2"}); err != nil {
		t.Fatal(err)
	}
	c := &store.Campaign{AppID: 620, TargetMinor: 1000, StartedBy: "1"}
	if err := s.Campaigns.Create(ctx, c); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		amount        int64
		wantTotal     int64
		wantCompleted bool
	}{
		{600, 600, false},
		{399, 999, false},
		{1, 1000, true},
	}
	for _, tt := range tests {
		total, completed, err := s.Campaigns.AddContribution(ctx, c.ID, "1", tt.amount)
		if err != nil {
			t.Fatalf("AddContribution(%d): %v", tt.amount, err)
		}
		if total != tt.wantTotal || completed != tt.wantCompleted {
			t.Fatalf("AddContribution(%d) = %d, %v; want %d, %v", tt.amount, total, completed, tt.wantTotal, tt.wantCompleted)
		}
	}

	got, err := s.Campaigns.Get(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.CampaignCompleted || got.CollectedMinor != 1000 || len(got.Contributions) != 3 {
		t.Fatalf("campaign = %+v", got)
	}
	if a, _ := s.Campaigns.GetActive(ctx); a != nil {
		t.Fatalf("GetActive after completing contribution = %+v", a)
	}
	if _, _, err := s.Campaigns.AddContribution(ctx, c.ID, "1", 5); !errors.Is(err, store.ErrCampaignNotActive) {
		t.Fatalf("contribution after completion err = %v", err)
	}
}

func TestSyncRuns(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	id, err := s.SyncRuns.Start(ctx, store.SyncKindFamily)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SyncRuns.Finish(ctx, id, 3, 42, errors.New("partial")); err != nil {
		t.Fatal(err)
	}
	run, err := s.SyncRuns.Latest(ctx, store.SyncKindFamily)
	if err != nil {
		t.Fatal(err)
	}
	if run == nil || run.ID != id || run.Games != 42 || run.Error != "partial" || run.FinishedAt.IsZero() {
		t.Fatalf("Latest = %+v", run)
	}
	if none, _ := s.SyncRuns.Latest(ctx, store.SyncKindCatalog); none != nil {
		t.Fatalf("unexpected catalog run %+v", none)
	}
}
