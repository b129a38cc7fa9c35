// Package library is the read-through cache between the Steam API and the
// local catalog: every lookup refreshes the stored profiles, games and
// ownership as a side effect.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steamfamilyzap/kgbot/internal/steam"
	"github.com/steamfamilyzap/kgbot/internal/store"
)

// catalogBatchSize bounds one InsertBatch transaction during a catalog import.
const catalogBatchSize = 1000

// SteamAPI is the part of *steam.Client the service uses.
type SteamAPI interface {
	PlayerSummary(ctx context.Context, steamID string) (*steam.PlayerSummary, error)
	OwnedGames(ctx context.Context, steamID string) ([]steam.OwnedGame, error)
	RecentGames(ctx context.Context, steamID string) ([]steam.OwnedGame, error)
	ResolveVanityURL(ctx context.Context, vanity string) (string, error)
	AppList(ctx context.Context) ([]steam.App, error)
	AppDetails(ctx context.Context, appID int64) (*steam.AppDetails, json.RawMessage, error)
}

// Service wires the Steam client to the stores.
type Service struct {
	steam       SteamAPI
	stores      *store.Stores
	concurrency int
}

func NewService(api SteamAPI, stores *store.Stores, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Service{steam: api, stores: stores, concurrency: concurrency}
}

// ResolveVanity proxies the vanity lookup so callers only depend on the service.
func (s *Service) ResolveVanity(ctx context.Context, vanity string) (string, error) {
	return s.steam.ResolveVanityURL(ctx, vanity)
}

// RefreshProfile fetches the Steam summary of steamID and upserts it.
// Returns (nil, nil) when Steam does not know the id.
func (s *Service) RefreshProfile(ctx context.Context, steamID string) (*store.Profile, error) {
	sum, err := s.steam.PlayerSummary(ctx, steamID)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		return nil, nil
	}
	p := &store.Profile{
		SteamID:      sum.SteamID,
		Nickname:     sum.PersonaName,
		PersonaName:  sum.PersonaName,
		RealName:     sum.RealName,
		AvatarURL:    sum.AvatarFull,
		ProfileURL:   sum.ProfileURL,
		CountryCode:  sum.CountryCode,
		PersonaState: sum.PersonaState,
	}
	if sum.LastLogoff > 0 {
		p.LastLogoff = time.Unix(sum.LastLogoff, 0)
	}
	if err := s.stores.Profiles.Upsert(ctx, p); err != nil {
		return nil, err
	}
	stored, err := s.stores.Profiles.FindByExternalID(ctx, sum.SteamID)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// OwnedGames fetches the library of steamID and replaces the stored
// ownership, even when the library is now empty. A private library falls
// back to whatever was stored before.
func (s *Service) OwnedGames(ctx context.Context, steamID string) ([]store.OwnedGame, error) {
	games, err := s.steam.OwnedGames(ctx, steamID)
	if errors.Is(err, steam.ErrLibraryHidden) {
		slog.Debug("library hidden, serving cached ownership", "steam_id", steamID)
		return s.stores.Games.Owned(ctx, steamID)
	}
	if err != nil {
		return nil, err
	}
	if err := s.stores.Games.ReplaceOwnership(ctx, steamID, toOwned(games)); err != nil {
		return nil, err
	}
	return s.stores.Games.Owned(ctx, steamID)
}

// RecentGames lists the games played in the last two weeks and makes sure
// each of them is in the catalog.
func (s *Service) RecentGames(ctx context.Context, steamID string) ([]steam.OwnedGame, error) {
	games, err := s.steam.RecentGames(ctx, steamID)
	if err != nil {
		return nil, err
	}
	stubs := make([]store.Game, 0, len(games))
	for _, g := range games {
		stubs = append(stubs, store.Game{AppID: g.AppID, Name: g.Name})
	}
	if _, err := s.stores.Games.InsertBatch(ctx, stubs); err != nil {
		return nil, err
	}
	return games, nil
}

// FindGame applies the catalog name match.
func (s *Service) FindGame(ctx context.Context, name string) (*store.Game, error) {
	return s.stores.Games.FindByName(ctx, name)
}

// GameDetails fetches store details for appID and caches them.
// Returns (nil, nil) when the store has no page for the app.
func (s *Service) GameDetails(ctx context.Context, appID int64) (*steam.AppDetails, error) {
	d, raw, err := s.steam.AppDetails(ctx, appID)
	if err != nil || d == nil {
		return nil, err
	}
	g := &store.Game{
		AppID:         appID,
		Name:          d.Name,
		HeaderImage:   d.HeaderImage,
		Details:       raw,
		FamilySharing: d.FamilySharing(),
	}
	if err := s.stores.Games.UpsertDetails(ctx, g); err != nil {
		return nil, err
	}
	return d, nil
}

// SyncFamily refreshes every member's profile and library, then the store
// details of every owned game, with bounded parallelism. Individual member
// or game failures are logged and counted, not fatal.
func (s *Service) SyncFamily(ctx context.Context) (profiles, games int, err error) {
	runID, err := s.stores.SyncRuns.Start(ctx, store.SyncKindFamily)
	if err != nil {
		return 0, 0, fmt.Errorf("record sync start: %w", err)
	}
	defer func() {
		if ferr := s.stores.SyncRuns.Finish(context.WithoutCancel(ctx), runID, profiles, games, err); ferr != nil {
			slog.Warn("record sync finish", "error", ferr)
		}
	}()

	members, err := s.stores.Profiles.ListAll(ctx)
	if err != nil {
		return 0, 0, err
	}

	var okProfiles, okGames, failures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, m := range members {
		g.Go(func() error {
			if _, err := s.RefreshProfile(gctx, m.SteamID); err != nil {
				failures.Add(1)
				slog.Warn("sync: profile refresh failed", "steam_id", m.SteamID, "error", err)
				return nil
			}
			if _, err := s.OwnedGames(gctx, m.SteamID); err != nil {
				failures.Add(1)
				slog.Warn("sync: owned games failed", "steam_id", m.SteamID, "error", err)
				return nil
			}
			okProfiles.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(okProfiles.Load()), 0, err
	}

	appIDs, err := s.stores.Games.OwnedAppIDs(ctx)
	if err != nil {
		return int(okProfiles.Load()), 0, err
	}
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range appIDs {
		g.Go(func() error {
			if _, err := s.GameDetails(gctx, id); err != nil {
				failures.Add(1)
				slog.Warn("sync: game details failed", "app_id", id, "error", err)
				return nil
			}
			okGames.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(okProfiles.Load()), int(okGames.Load()), err
	}

	profiles, games = int(okProfiles.Load()), int(okGames.Load())
	slog.Info("sync: family done", "profiles", profiles, "games", games, "failures", failures.Load())
	if n := failures.Load(); n > 0 {
		return profiles, games, fmt.Errorf("%d sync steps failed", n)
	}
	return profiles, games, ctx.Err()
}

// SyncCatalog imports the public Steam app list, inserting only unknown apps.
func (s *Service) SyncCatalog(ctx context.Context) (inserted int, err error) {
	runID, err := s.stores.SyncRuns.Start(ctx, store.SyncKindCatalog)
	if err != nil {
		return 0, fmt.Errorf("record sync start: %w", err)
	}
	defer func() {
		if ferr := s.stores.SyncRuns.Finish(context.WithoutCancel(ctx), runID, 0, inserted, err); ferr != nil {
			slog.Warn("record sync finish", "error", ferr)
		}
	}()

	apps, err := s.steam.AppList(ctx)
	if err != nil {
		return 0, err
	}

	batch := make([]store.Game, 0, catalogBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.stores.Games.InsertBatch(ctx, batch)
		if err != nil {
			return err
		}
		inserted += n
		batch = batch[:0]
		return nil
	}
	for _, a := range apps {
		name := strings.TrimSpace(a.Name)
		if a.AppID == 0 || name == "" {
			continue
		}
		batch = append(batch, store.Game{AppID: a.AppID, Name: name})
		if len(batch) == catalogBatchSize {
			if err := flush(); err != nil {
				return inserted, err
			}
		}
	}
	if err := flush(); err != nil {
		return inserted, err
	}
	slog.Info("sync: catalog done", "apps", len(apps), "inserted", inserted)
	return inserted, nil
}

func toOwned(games []steam.OwnedGame) []store.OwnedGame {
	out := make([]store.OwnedGame, 0, len(games))
	for _, g := range games {
		o := store.OwnedGame{
			AppID:           g.AppID,
			Name:            g.Name,
			PlaytimeMinutes: g.PlaytimeForever,
			IconHash:        g.ImgIconURL,
		}
		if g.RTimeLastPlayed > 0 {
			o.LastPlayedAt = time.Unix(g.RTimeLastPlayed, 0)
		}
		out = append(out, o)
	}
	return out
}
