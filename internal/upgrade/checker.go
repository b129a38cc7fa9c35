// Package upgrade compares the database schema against the migrations
// embedded in this binary.
package upgrade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/steamfamilyzap/kgbot/migrations"
)

// SchemaStatus represents the result of a schema compatibility check.
type SchemaStatus struct {
	CurrentVersion  uint
	RequiredVersion uint
	Dirty           bool
	Compatible      bool
	NeedsMigration  bool
}

var (
	ErrSchemaOutdated = errors.New("database schema is outdated")
	ErrSchemaDirty    = errors.New("database schema is dirty (failed migration)")
	ErrSchemaAhead    = errors.New("database schema is newer than this binary")
)

// RequiredVersion is the highest migration shipped for dialect ("postgres" or "sqlite").
func RequiredVersion(dialect string) (uint, error) {
	entries, err := fs.ReadDir(migrations.FS, dialect)
	if err != nil {
		return 0, fmt.Errorf("read %s migrations: %w", dialect, err)
	}
	var highest uint
	for _, e := range entries {
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			continue
		}
		highest = max(highest, uint(v))
	}
	if highest == 0 {
		return 0, fmt.Errorf("no %s migrations embedded", dialect)
	}
	return highest, nil
}

// CheckSchema reads schema_migrations and compares it with the embedded
// migrations for dialect.
func CheckSchema(ctx context.Context, db *sql.DB, dialect string) (*SchemaStatus, error) {
	required, err := RequiredVersion(dialect)
	if err != nil {
		return nil, err
	}

	var (
		version int64
		dirty   bool
	)
	// A missing table means a fresh database.
	err = db.QueryRowContext(ctx, "SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty)
	if err != nil {
		return &SchemaStatus{RequiredVersion: required, NeedsMigration: true}, nil
	}

	s := &SchemaStatus{
		CurrentVersion:  uint(max(version, 0)),
		RequiredVersion: required,
		Dirty:           dirty,
	}
	if dirty {
		return s, nil
	}
	switch {
	case s.CurrentVersion == required:
		s.Compatible = true
	case s.CurrentVersion < required:
		s.NeedsMigration = true
	}
	return s, nil
}

// Err maps a status to one of the sentinel errors, or nil when compatible.
func (s *SchemaStatus) Err() error {
	switch {
	case s.Dirty:
		return ErrSchemaDirty
	case s.NeedsMigration:
		return ErrSchemaOutdated
	case s.CurrentVersion > s.RequiredVersion:
		return ErrSchemaAhead
	}
	return nil
}

// FormatError returns a user-friendly error message for the given status.
func FormatError(s *SchemaStatus) string {
	if s.Dirty {
		return fmt.Sprintf(
			"Database schema is in a dirty state (version %d).\n"+
				"This usually means a migration failed partway.\n\n"+
				"  Fix:  kgbot migrate force %d\n"+
				"  Then: kgbot migrate up\n",
			s.CurrentVersion, max(int(s.CurrentVersion)-1, 0),
		)
	}
	if s.CurrentVersion > s.RequiredVersion {
		return fmt.Sprintf(
			"Database schema (v%d) is newer than this binary (requires v%d).\n"+
				"You may be running an older version of kgbot.\n",
			s.CurrentVersion, s.RequiredVersion,
		)
	}
	return fmt.Sprintf(
		"Database schema is outdated: current v%d, required v%d.\n\n"+
			"  Run:  kgbot migrate up\n",
		s.CurrentVersion, s.RequiredVersion,
	)
}
