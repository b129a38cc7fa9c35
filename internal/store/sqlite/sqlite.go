// Package sqlite backs the stores with an embedded SQLite file for
// single-host installs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/steamfamilyzap/kgbot/internal/store"
	"github.com/steamfamilyzap/kgbot/internal/store/sqlstore"
	"github.com/steamfamilyzap/kgbot/migrations"
)

// OpenDB opens the database file, creating its directory if needed.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single writer: one shared connection serialises callers in database/sql.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// NewMigrator builds a migrator over the embedded SQLite migrations.
// The returned migrator shares db; do not Close it if db is still in use.
func NewMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlite migrate driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, "sqlite", driver)
}

// NewSQLiteStores opens path, applies pending migrations and wires the stores.
func NewSQLiteStores(path string) (*store.Stores, *sql.DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	m, err := NewMigrator(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		db.Close()
		return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return sqlstore.New(db, Dialect{}), db, nil
}

// Dialect adapts the shared SQL to SQLite.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Rebind(query string) string { return query }

func (Dialect) IsUniqueViolation(err error) bool {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	switch sqlErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(sqlErr.Error(), "UNIQUE constraint failed")
	}
	return false
}

func (Dialect) InsertGames(ctx context.Context, tx *sql.Tx, games []store.Game, now int64) (int, error) {
	if len(games) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO games (app_id, name, name_key, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (app_id) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, g := range games {
		res, err := stmt.ExecContext(ctx, g.AppID, g.Name, sqlstore.NameKey(g.Name), now)
		if err != nil {
			return inserted, fmt.Errorf("insert game %d: %w", g.AppID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}
