package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/steamfamilyzap/kgbot/internal/store"
)

// GameStore implements store.GameStore.
type GameStore struct{ *base }

const gameColumns = `app_id, name, header_image, details, family_sharing, details_updated_at, updated_at`

func scanGame(row interface{ Scan(...any) error }) (*store.Game, error) {
	var (
		g         store.Game
		details   sql.NullString
		detailsAt int64
		updatedAt int64
	)
	if err := row.Scan(&g.AppID, &g.Name, &g.HeaderImage, &details, &g.FamilySharing, &detailsAt, &updatedAt); err != nil {
		return nil, err
	}
	if details.Valid && details.String != "" {
		g.Details = json.RawMessage(details.String)
	}
	g.DetailsUpdatedAt = fromMillis(detailsAt)
	g.UpdatedAt = fromMillis(updatedAt)
	return &g, nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (s *GameStore) Get(ctx context.Context, appID int64) (*store.Game, error) {
	g, err := scanGame(s.queryRow(ctx, "SELECT "+gameColumns+" FROM games WHERE app_id = ?", appID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func (s *GameStore) FindByName(ctx context.Context, name string) (*store.Game, error) {
	key := NameKey(name)
	if key == "" {
		return nil, nil
	}
	g, err := scanGame(s.queryRow(ctx,
		"SELECT "+gameColumns+" FROM games WHERE name_key = ? ORDER BY app_id LIMIT 1", key))
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	g, err = scanGame(s.queryRow(ctx,
		"SELECT "+gameColumns+` FROM games WHERE name_key LIKE ? ESCAPE '\' ORDER BY app_id LIMIT 1`,
		"%"+escapeLike(key)+"%"))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func (s *GameStore) Upsert(ctx context.Context, g *store.Game) error {
	now := time.Now().UnixMilli()
	_, err := s.exec(ctx, `INSERT INTO games (app_id, name, name_key, header_image, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (app_id) DO UPDATE SET
		name = excluded.name,
		name_key = excluded.name_key,
		header_image = CASE WHEN excluded.header_image = '' THEN games.header_image ELSE excluded.header_image END,
		updated_at = excluded.updated_at`,
		g.AppID, g.Name, NameKey(g.Name), g.HeaderImage, now)
	if err != nil {
		return fmt.Errorf("upsert game %d: %w", g.AppID, err)
	}
	return nil
}

func (s *GameStore) UpsertDetails(ctx context.Context, g *store.Game) error {
	now := time.Now().UnixMilli()
	_, err := s.exec(ctx, `INSERT INTO games (app_id, name, name_key, header_image, details, family_sharing,
		details_updated_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (app_id) DO UPDATE SET
		name = excluded.name,
		name_key = excluded.name_key,
		header_image = excluded.header_image,
		details = excluded.details,
		family_sharing = excluded.family_sharing,
		details_updated_at = excluded.details_updated_at,
		updated_at = excluded.updated_at`,
		g.AppID, g.Name, NameKey(g.Name), g.HeaderImage, nullJSON(g.Details), g.FamilySharing, now, now)
	if err != nil {
		return fmt.Errorf("upsert game details %d: %w", g.AppID, err)
	}
	return nil
}

func (s *GameStore) InsertBatch(ctx context.Context, games []store.Game) (int, error) {
	if len(games) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	n, err := s.dialect.InsertGames(ctx, tx, games, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert games: %w", err)
	}
	return n, tx.Commit()
}

func (s *GameStore) ReplaceOwnership(ctx context.Context, steamID string, owned []store.OwnedGame) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UnixMilli()
	stubs := make([]store.Game, 0, len(owned))
	for _, o := range owned {
		stubs = append(stubs, store.Game{AppID: o.AppID, Name: o.Name})
	}
	if _, err := s.dialect.InsertGames(ctx, tx, stubs, now); err != nil {
		return fmt.Errorf("insert owned games: %w", err)
	}

	r := s.dialect.Rebind
	if _, err := tx.ExecContext(ctx, r("DELETE FROM ownerships WHERE steam_id = ?"), steamID); err != nil {
		return fmt.Errorf("clear ownership: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, r(`INSERT INTO ownerships (steam_id, app_id, playtime_minutes, icon_hash, last_played_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (steam_id, app_id) DO NOTHING`))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, o := range owned {
		if _, err := stmt.ExecContext(ctx, steamID, o.AppID, o.PlaytimeMinutes, o.IconHash, toMillis(o.LastPlayedAt)); err != nil {
			return fmt.Errorf("insert ownership %s/%d: %w", steamID, o.AppID, err)
		}
	}
	return tx.Commit()
}

func (s *GameStore) Owned(ctx context.Context, steamID string) ([]store.OwnedGame, error) {
	rows, err := s.query(ctx, `SELECT o.app_id, g.name, o.playtime_minutes, o.icon_hash, o.last_played_at
	FROM ownerships o JOIN games g ON g.app_id = o.app_id
	WHERE o.steam_id = ?
	ORDER BY o.playtime_minutes DESC, g.name_key ASC`, steamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.OwnedGame
	for rows.Next() {
		var (
			o  store.OwnedGame
			lp int64
		)
		if err := rows.Scan(&o.AppID, &o.Name, &o.PlaytimeMinutes, &o.IconHash, &lp); err != nil {
			return nil, err
		}
		o.LastPlayedAt = fromMillis(lp)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *GameStore) OwnedAppIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.query(ctx, "SELECT DISTINCT app_id FROM ownerships ORDER BY app_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *GameStore) FamilySharing(ctx context.Context) ([]store.GameCopies, error) {
	return s.copies(ctx, "WHERE g.family_sharing")
}

func (s *GameStore) CopiesReport(ctx context.Context) ([]store.GameCopies, error) {
	return s.copies(ctx, "")
}

func (s *GameStore) copies(ctx context.Context, where string) ([]store.GameCopies, error) {
	rows, err := s.query(ctx, `SELECT g.app_id, g.name, COUNT(o.steam_id) AS copies
	FROM games g JOIN ownerships o ON o.app_id = g.app_id `+where+`
	GROUP BY g.app_id, g.name
	ORDER BY copies DESC, g.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.GameCopies
	for rows.Next() {
		var c store.GameCopies
		if err := rows.Scan(&c.AppID, &c.Name, &c.Copies); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
