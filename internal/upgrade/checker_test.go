package upgrade

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/steamfamilyzap/kgbot/internal/store/sqlite"
)

func TestRequiredVersion(t *testing.T) {
	for _, dialect := range []string{"sqlite", "postgres"} {
		t.Run(dialect, func(t *testing.T) {
			v, err := RequiredVersion(dialect)
			if err != nil {
				t.Fatal(err)
			}
			if v < 1 {
				t.Fatalf("RequiredVersion = %d", v)
			}
		})
	}
	if _, err := RequiredVersion("oracle"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}

func TestCheckSchemaFreshDatabase(t *testing.T) {
	db, err := sqlite.OpenDB(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s, err := CheckSchema(context.Background(), db, "sqlite")
	if err != nil {
		t.Fatal(err)
	}
	if !s.NeedsMigration || !errors.Is(s.Err(), ErrSchemaOutdated) {
		t.Fatalf("status = %+v", s)
	}
	if !strings.Contains(FormatError(s), "kgbot migrate up") {
		t.Fatalf("message = %q", FormatError(s))
	}
}

func TestCheckSchemaMigrated(t *testing.T) {
	_, db, err := sqlite.NewSQLiteStores(filepath.Join(t.TempDir(), "kgbot.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s, err := CheckSchema(context.Background(), db, "sqlite")
	if err != nil {
		t.Fatal(err)
	}
	if !s.Compatible || s.Err() != nil {
		t.Fatalf("status = %+v", s)
	}
}

func TestStatusErr(t *testing.T) {
	tests := []struct {
		name string
		s    SchemaStatus
		want error
	}{
		{"dirty", SchemaStatus{CurrentVersion: 2, RequiredVersion: 2, Dirty: true}, ErrSchemaDirty},
		{"ahead", SchemaStatus{CurrentVersion: 3, RequiredVersion: 2}, ErrSchemaAhead},
		{"ok", SchemaStatus{CurrentVersion: 2, RequiredVersion: 2, Compatible: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Err(); !errors.Is(got, tt.want) {
				t.Fatalf("Err() = %v, want %v", got, tt.want)
			}
		})
	}
}
