package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/steamfamilyzap/kgbot/internal/store"
)

// SyncRunStore implements store.SyncRunStore.
type SyncRunStore struct{ *base }

func (s *SyncRunStore) Start(ctx context.Context, kind string) (uuid.UUID, error) {
	id := store.GenNewID()
	_, err := s.exec(ctx, "INSERT INTO sync_runs (id, kind, started_at) VALUES (?, ?, ?)",
		id, kind, time.Now().UnixMilli())
	return id, err
}

func (s *SyncRunStore) Finish(ctx context.Context, id uuid.UUID, profiles, games int, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := s.exec(ctx, `UPDATE sync_runs SET finished_at = ?, profiles = ?, games = ?, error = ?
	WHERE id = ?`, time.Now().UnixMilli(), profiles, games, msg, id)
	return err
}

func (s *SyncRunStore) Latest(ctx context.Context, kind string) (*store.SyncRun, error) {
	var (
		r                 store.SyncRun
		started, finished int64
	)
	err := s.queryRow(ctx, `SELECT id, kind, started_at, finished_at, profiles, games, error
	FROM sync_runs WHERE kind = ? ORDER BY started_at DESC LIMIT 1`, kind).
		Scan(&r.ID, &r.Kind, &started, &finished, &r.Profiles, &r.Games, &r.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt = fromMillis(started)
	r.FinishedAt = fromMillis(finished)
	return &r, nil
}
