package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/steamfamilyzap/kgbot/internal/store"
	"github.com/steamfamilyzap/kgbot/internal/store/sqlstore"
)

const uniqueViolation = "23505"

// Dialect adapts the shared SQL to Postgres.
type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) Rebind(query string) string { return sqlstore.RebindDollar(query) }

func (Dialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// InsertGames loads the batch with a single unnest insert.
func (Dialect) InsertGames(ctx context.Context, tx *sql.Tx, games []store.Game, now int64) (int, error) {
	if len(games) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(games))
	names := make([]string, len(games))
	keys := make([]string, len(games))
	for i, g := range games {
		ids[i] = g.AppID
		names[i] = g.Name
		keys[i] = sqlstore.NameKey(g.Name)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO games (app_id, name, name_key, updated_at)
	SELECT t.app_id, t.name, t.name_key, $4
	FROM unnest($1::bigint[], $2::text[], $3::text[]) AS t(app_id, name, name_key)
	ON CONFLICT (app_id) DO NOTHING`,
		pq.Array(ids), pq.Array(names), pq.Array(keys), now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
