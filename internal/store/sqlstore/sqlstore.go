// Package sqlstore implements the store interfaces on database/sql.
// SQL is written with ? placeholders; the Dialect rewrites it for the driver
// and supplies the few statements that differ between Postgres and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/steamfamilyzap/kgbot/internal/store"
)

// Dialect captures the driver-specific bits.
type Dialect interface {
	Name() string
	// Rebind rewrites ? placeholders into the driver's native form.
	Rebind(query string) string
	IsUniqueViolation(err error) bool
	// InsertGames inserts the games that are not yet present and returns how many were new.
	InsertGames(ctx context.Context, tx *sql.Tx, games []store.Game, now int64) (int, error)
}

type base struct {
	db      *sql.DB
	dialect Dialect
}

// New wires every store onto db.
func New(db *sql.DB, d Dialect) *store.Stores {
	b := &base{db: db, dialect: d}
	return &store.Stores{
		Profiles:  &ProfileStore{b},
		Games:     &GameStore{b},
		Campaigns: &CampaignStore{b},
		SyncRuns:  &SyncRunStore{b},
	}
}

func (b *base) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return b.db.ExecContext(ctx, b.dialect.Rebind(query), args...)
}

func (b *base) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return b.db.QueryContext(ctx, b.dialect.Rebind(query), args...)
}

func (b *base) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return b.db.QueryRowContext(ctx, b.dialect.Rebind(query), args...)
}

// RebindDollar turns ? placeholders into $1, $2, ... for Postgres.
func RebindDollar(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// NameKey is the normalised form used for case-insensitive name lookups.
func NameKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
