package pg

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/steamfamilyzap/kgbot/migrations"
)

// NewMigrator builds a migrator over the embedded Postgres migrations.
// The returned migrator shares db; do not Close it if db is still in use.
func NewMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, "postgres")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres migrate driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, "postgres", driver)
}
