package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/steamfamilyzap/kgbot/internal/store"
)

// ProfileStore implements store.ProfileStore.
type ProfileStore struct{ *base }

const profileColumns = `steam_id, channel_address, nickname, persona_name, real_name, avatar_url,
	profile_url, country_code, persona_state, last_logoff, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (*store.Profile, error) {
	var (
		p                  store.Profile
		addr               sql.NullString
		logoff, created, u int64
	)
	err := row.Scan(&p.SteamID, &addr, &p.Nickname, &p.PersonaName, &p.RealName, &p.AvatarURL,
		&p.ProfileURL, &p.CountryCode, &p.PersonaState, &logoff, &created, &u)
	if err != nil {
		return nil, err
	}
	p.ChannelAddress = addr.String
	p.LastLogoff = fromMillis(logoff)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(u)
	return &p, nil
}

func (s *ProfileStore) findOne(ctx context.Context, where string, arg any) (*store.Profile, error) {
	row := s.queryRow(ctx, "SELECT "+profileColumns+" FROM profiles WHERE "+where, arg)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *ProfileStore) FindByNickname(ctx context.Context, nickname string) (*store.Profile, error) {
	return s.findOne(ctx, "nickname_key = ?", NameKey(nickname))
}

func (s *ProfileStore) FindByChannelAddress(ctx context.Context, address string) (*store.Profile, error) {
	if address == "" {
		return nil, nil
	}
	return s.findOne(ctx, "channel_address = ?", address)
}

func (s *ProfileStore) FindByExternalID(ctx context.Context, steamID string) (*store.Profile, error) {
	return s.findOne(ctx, "steam_id = ?", steamID)
}

const upsertProfileSQL = `INSERT INTO profiles (steam_id, channel_address, nickname, nickname_key, persona_name,
	real_name, avatar_url, profile_url, country_code, persona_state, last_logoff, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (steam_id) DO UPDATE SET
	channel_address = COALESCE(profiles.channel_address, excluded.channel_address),
	persona_name = excluded.persona_name,
	real_name = excluded.real_name,
	avatar_url = excluded.avatar_url,
	profile_url = excluded.profile_url,
	country_code = excluded.country_code,
	persona_state = excluded.persona_state,
	last_logoff = excluded.last_logoff,
	updated_at = excluded.updated_at`

func (s *ProfileStore) Upsert(ctx context.Context, p *store.Profile) error {
	if p.SteamID == "" {
		return errors.New("profile without steam id")
	}
	nick := p.Nickname
	if nick == "" {
		nick = p.PersonaName
	}
	if nick == "" {
		nick = p.SteamID
	}
	now := time.Now().UnixMilli()
	args := func(nick, addr string) []any {
		return []any{p.SteamID, nullStr(addr), nick, NameKey(nick), p.PersonaName,
			p.RealName, p.AvatarURL, p.ProfileURL, p.CountryCode, p.PersonaState,
			toMillis(p.LastLogoff), now, now}
	}

	_, err := s.exec(ctx, upsertProfileSQL, args(nick, p.ChannelAddress)...)
	if err != nil && s.dialect.IsUniqueViolation(err) {
		// Another member already uses this nickname (or address); keep the row
		// distinguishable and leave the address for an explicit Register.
		suffix := p.SteamID
		if len(suffix) > 4 {
			suffix = suffix[len(suffix)-4:]
		}
		_, err = s.exec(ctx, upsertProfileSQL, args(nick+"_"+suffix, "")...)
	}
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.SteamID, err)
	}
	return nil
}

func (s *ProfileStore) Register(ctx context.Context, steamID, nickname, channelAddress string) error {
	if steamID == "" || nickname == "" {
		return errors.New("register needs a steam id and a nickname")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	r := s.dialect.Rebind
	if channelAddress != "" {
		if _, err := tx.ExecContext(ctx, r(`UPDATE profiles SET channel_address = NULL
			WHERE channel_address = ? AND steam_id <> ?`), channelAddress, steamID); err != nil {
			return fmt.Errorf("release address: %w", err)
		}
	}

	now := time.Now().UnixMilli()
	_, err = tx.ExecContext(ctx, r(`INSERT INTO profiles (steam_id, channel_address, nickname, nickname_key,
		persona_name, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (steam_id) DO UPDATE SET
		channel_address = excluded.channel_address,
		nickname = excluded.nickname,
		nickname_key = excluded.nickname_key,
		updated_at = excluded.updated_at`),
		steamID, nullStr(channelAddress), nickname, NameKey(nickname), nickname, now, now)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("nickname %q is taken by another member", nickname)
		}
		return fmt.Errorf("register %s: %w", steamID, err)
	}
	return tx.Commit()
}

func (s *ProfileStore) ListAll(ctx context.Context) ([]store.Profile, error) {
	rows, err := s.query(ctx, "SELECT "+profileColumns+" FROM profiles ORDER BY nickname_key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
