package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/steamfamilyzap/kgbot/internal/store"
)

// CampaignStore implements store.CampaignStore.
type CampaignStore struct{ *base }

const campaignSelect = `SELECT c.id, c.app_id, g.name, c.target_minor, c.collected_minor, c.status,
	c.started_by, p.nickname, c.created_at, c.updated_at
FROM campaigns c
JOIN games g ON g.app_id = c.app_id
JOIN profiles p ON p.steam_id = c.started_by`

func scanCampaign(row interface{ Scan(...any) error }) (*store.Campaign, error) {
	var (
		c                store.Campaign
		status           string
		created, updated int64
	)
	err := row.Scan(&c.ID, &c.AppID, &c.GameName, &c.TargetMinor, &c.CollectedMinor, &status,
		&c.StartedBy, &c.StarterNickname, &created, &updated)
	if err != nil {
		return nil, err
	}
	c.Status = store.CampaignStatus(status)
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

func (s *CampaignStore) GetActive(ctx context.Context) (*store.Campaign, error) {
	return s.getWithContributions(ctx, "WHERE c.status = ?", string(store.CampaignActive))
}

func (s *CampaignStore) Get(ctx context.Context, id uuid.UUID) (*store.Campaign, error) {
	return s.getWithContributions(ctx, "WHERE c.id = ?", id)
}

func (s *CampaignStore) getWithContributions(ctx context.Context, where string, arg any) (*store.Campaign, error) {
	c, err := scanCampaign(s.queryRow(ctx, campaignSelect+" "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Contributions, err = s.contributions(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignStore) contributions(ctx context.Context, campaignID uuid.UUID) ([]store.Contribution, error) {
	rows, err := s.query(ctx, `SELECT k.id, k.steam_id, p.nickname, k.amount_minor, k.created_at
	FROM contributions k JOIN profiles p ON p.steam_id = k.steam_id
	WHERE k.campaign_id = ?
	ORDER BY k.created_at, k.id`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []store.Contribution{}
	for rows.Next() {
		var (
			k  store.Contribution
			at int64
		)
		if err := rows.Scan(&k.ID, &k.SteamID, &k.Nickname, &k.AmountMinor, &at); err != nil {
			return nil, err
		}
		k.CreatedAt = fromMillis(at)
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *CampaignStore) ListRecent(ctx context.Context, limit int) ([]store.Campaign, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.query(ctx, campaignSelect+" ORDER BY c.created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *CampaignStore) Create(ctx context.Context, c *store.Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = store.GenNewID()
	}
	now := time.Now()
	c.Status = store.CampaignActive
	c.CreatedAt, c.UpdatedAt = now, now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	r := s.dialect.Rebind
	var active int
	if err := tx.QueryRowContext(ctx, r("SELECT COUNT(*) FROM campaigns WHERE status = ?"),
		string(store.CampaignActive)).Scan(&active); err != nil {
		return err
	}
	if active > 0 {
		return store.ErrCampaignActive
	}

	_, err = tx.ExecContext(ctx, r(`INSERT INTO campaigns (id, app_id, target_minor, collected_minor, status,
		started_by, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.AppID, c.TargetMinor, c.CollectedMinor, string(c.Status), c.StartedBy,
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return store.ErrCampaignActive
		}
		return fmt.Errorf("create campaign: %w", err)
	}
	if err := tx.Commit(); err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return store.ErrCampaignActive
		}
		return err
	}
	return nil
}

func (s *CampaignStore) AddContribution(ctx context.Context, campaignID uuid.UUID, steamID string, amountMinor int64) (int64, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback() //nolint:errcheck

	r := s.dialect.Rebind
	now := time.Now().UnixMilli()
	var (
		total  int64
		status string
	)
	err = tx.QueryRowContext(ctx, r(`UPDATE campaigns
	SET collected_minor = collected_minor + ?,
		status = CASE WHEN collected_minor + ? >= target_minor THEN ? ELSE status END,
		updated_at = ?
	WHERE id = ? AND status = ?
	RETURNING collected_minor, status`),
		amountMinor, amountMinor, string(store.CampaignCompleted), now,
		campaignID, string(store.CampaignActive)).Scan(&total, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, store.ErrCampaignNotActive
	}
	if err != nil {
		return 0, false, fmt.Errorf("bump campaign total: %w", err)
	}

	_, err = tx.ExecContext(ctx, r(`INSERT INTO contributions (id, campaign_id, steam_id, amount_minor, created_at)
	VALUES (?, ?, ?, ?, ?)`), store.GenNewID(), campaignID, steamID, amountMinor, now)
	if err != nil {
		return 0, false, fmt.Errorf("insert contribution: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return total, status == string(store.CampaignCompleted), nil
}

func (s *CampaignStore) SetStatus(ctx context.Context, campaignID uuid.UUID, status store.CampaignStatus) error {
	res, err := s.exec(ctx, `UPDATE campaigns SET status = ?, updated_at = ?
	WHERE id = ? AND status = ?`,
		string(status), time.Now().UnixMilli(), campaignID, string(store.CampaignActive))
	if err != nil {
		return fmt.Errorf("set campaign status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrCampaignNotActive
	}
	return nil
}
