package vaquinha

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/steamfamilyzap/kgbot/internal/store"
	"github.com/steamfamilyzap/kgbot/internal/store/sqlite"
)

type fixture struct {
	stores *store.Stores
	ledger *Ledger
	ana    *store.Profile
	bia    *store.Profile
	game   *store.Game
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stores, db, err := sqlite.NewSQLiteStores(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, p := range [][2]string{{"76561198000000001", "ana"}, {"76561198000000002", "bia"}} {
		if err := stores.Profiles.Register(ctx, p[0], p[1], ""); err != nil {
			t.Fatal(err)
		}
	}
	game := &store.Game{AppID: 620, Name: "Portal 2"}
	if err := stores.Games.UpsertDetails(ctx, game); err != nil {
		t.Fatal(err)
	}
	ana, _ := stores.Profiles.FindByNickname(ctx, "ana")
	bia, _ := stores.Profiles.FindByNickname(ctx, "bia")
	return &fixture{stores: stores, ledger: NewLedger(stores.Campaigns), ana: ana, bia: bia, game: game}
}

func TestStartIsExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ok, active atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Start(ctx, f.game, 1999, f.ana)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, store.ErrCampaignActive):
				active.Add(1)
			default:
				t.Errorf("Start: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 1 || active.Load() != 7 {
		t.Fatalf("successes = %d, already active = %d", ok.Load(), active.Load())
	}
}

func TestConcurrentContributionsSumExactly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.ledger.Start(ctx, f.game, 1_000_000, f.ana); err != nil {
		t.Fatal(err)
	}

	amounts := []int64{1, 250, 999, 1000, 37, 12345, 5, 500, 77, 8}
	var want int64
	var wg sync.WaitGroup
	for i, a := range amounts {
		want += a
		wg.Add(1)
		go func(i int, a int64) {
			defer wg.Done()
			who := f.ana
			if i%2 == 1 {
				who = f.bia
			}
			if _, err := f.ledger.Contribute(ctx, who, a); err != nil {
				t.Errorf("Contribute(%d): %v", a, err)
			}
		}(i, a)
	}
	wg.Wait()

	c, err := f.ledger.Active(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var sum int64
	for _, k := range c.Contributions {
		sum += k.AmountMinor
	}
	if c.CollectedMinor != want || sum != want {
		t.Fatalf("collected = %d, sum of contributions = %d, want %d", c.CollectedMinor, sum, want)
	}
}

func TestCompletesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.ledger.Start(ctx, f.game, 1000, f.ana); err != nil {
		t.Fatal(err)
	}

	var completed atomic.Int32
	var noActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.ledger.Contribute(ctx, f.bia, 400)
			switch {
			case errors.Is(err, ErrNoActiveCampaign):
				noActive.Add(1)
			case err != nil:
				t.Errorf("Contribute: %v", err)
			case out.Completed:
				completed.Add(1)
			}
		}()
	}
	wg.Wait()

	if completed.Load() != 1 {
		t.Fatalf("completed transitions = %d, want 1", completed.Load())
	}
	if noActive.Load() != 3 {
		t.Fatalf("late contributions = %d, want 3", noActive.Load())
	}
	if _, err := f.ledger.Active(ctx); !errors.Is(err, ErrNoActiveCampaign) {
		t.Fatalf("Active after completion err = %v", err)
	}
}

func TestCancelAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.ledger.Start(ctx, f.game, 1999, f.ana); err != nil {
		t.Fatal(err)
	}

	_, err := f.ledger.Cancel(ctx, f.bia)
	var unauth *UnauthorizedError
	if !errors.As(err, &unauth) || unauth.StarterNickname != "ana" {
		t.Fatalf("Cancel by non-starter err = %v", err)
	}
	if c, err := f.ledger.Active(ctx); err != nil || c.Status != store.CampaignActive {
		t.Fatalf("campaign changed after unauthorized cancel: %+v, %v", c, err)
	}

	c, err := f.ledger.Cancel(ctx, f.ana)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != store.CampaignCancelled {
		t.Fatalf("status = %s", c.Status)
	}
	if _, err := f.ledger.Cancel(ctx, f.ana); !errors.Is(err, ErrNoActiveCampaign) {
		t.Fatalf("second cancel err = %v", err)
	}
	if _, err := f.ledger.Contribute(ctx, f.ana, 100); !errors.Is(err, ErrNoActiveCampaign) {
		t.Fatalf("contribute after cancel err = %v", err)
	}
}

func TestAmounts(t *testing.T) {
	tests := []struct {
		in      float64
		want    int64
		wantErr bool
	}{
		{19.99, 1999, false},
		{10, 1000, false},
		{0.005, 1, false},
		{0, 0, true},
		{-5, 0, true},
		{0.004, 0, true},
		{math.NaN(), 0, true},
		{math.Inf(1), 0, true},
	}
	for _, tt := range tests {
		got, err := AmountFromFloat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("AmountFromFloat(%v) = %d, %v; want %d, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}

	if got := FromMinor(1999); !got.Equal(decimal.RequireFromString("19.99")) {
		t.Errorf("FromMinor(1999) = %s", got)
	}
}
