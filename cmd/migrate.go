package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/steamfamilyzap/kgbot/internal/config"
	"github.com/steamfamilyzap/kgbot/internal/store/pg"
	"github.com/steamfamilyzap/kgbot/internal/store/sqlite"
	"github.com/steamfamilyzap/kgbot/internal/upgrade"
)

// newMigrator opens the configured database and returns a migrator over the
// embedded migrations. Closing the migrator closes the database.
func newMigrator() (*migrate.Migrate, *sql.DB, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, "", err
	}

	var (
		db      *sql.DB
		dialect string
	)
	if cfg.Database.UsePostgres() {
		if cfg.Database.PostgresDSN == "" {
			return nil, nil, "", errors.New("KGBOT_POSTGRES_DSN environment variable is not set")
		}
		dialect = "postgres"
		db, err = pg.OpenDB(cfg.Database.PostgresDSN)
	} else {
		dialect = "sqlite"
		db, err = sqlite.OpenDB(config.ExpandHome(cfg.Database.SQLitePath))
	}
	if err != nil {
		return nil, nil, "", err
	}

	var m *migrate.Migrate
	if dialect == "postgres" {
		m, err = pg.NewMigrator(db)
	} else {
		m, err = sqlite.NewMigrator(db)
	}
	if err != nil {
		db.Close()
		return nil, nil, "", fmt.Errorf("create migrator: %w", err)
	}
	return m, db, dialect, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration management",
	}

	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateVersionCmd())
	cmd.AddCommand(migrateForceCmd())
	cmd.AddCommand(migrateGotoCmd())
	cmd.AddCommand(migrateDropCmd())

	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, _, err := newMigrator()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate up: %w", err)
			}

			v, dirty, _ := m.Version()
			slog.Info("migration complete", "version", v, "dirty", dirty)
			return nil
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, _, err := newMigrator()
			if err != nil {
				return err
			}
			defer m.Close()

			if steps <= 0 {
				steps = 1
			}
			if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate down: %w", err)
			}

			v, dirty, _ := m.Version()
			slog.Info("rollback complete", "version", v, "dirty", dirty)
			return nil
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")
	return cmd
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show current migration version and whether this binary matches it",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, db, dialect, err := newMigrator()
			if err != nil {
				return err
			}
			defer m.Close()

			status, err := upgrade.CheckSchema(context.Background(), db, dialect)
			if err != nil {
				return err
			}
			fmt.Printf("dialect: %s, version: %d, required: %d, dirty: %v\n",
				dialect, status.CurrentVersion, status.RequiredVersion, status.Dirty)
			if status.Err() != nil {
				fmt.Print(upgrade.FormatError(status))
			}
			return nil
		},
	}
}

func migrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Force set migration version (no migration applied)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			m, _, _, err := newMigrator()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Force(version); err != nil {
				return fmt.Errorf("force version: %w", err)
			}
			slog.Info("forced version", "version", version)
			return nil
		},
	}
}

func migrateGotoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goto <version>",
		Short: "Migrate to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			m, _, _, err := newMigrator()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Migrate(uint(version)); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate goto: %w", err)
			}
			slog.Info("migrated to version", "version", version)
			return nil
		},
	}
}

func migrateDropCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop all tables (DANGEROUS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to drop without --yes")
			}
			m, _, _, err := newMigrator()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Drop(); err != nil {
				return fmt.Errorf("drop: %w", err)
			}
			slog.Info("all tables dropped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping every table")
	return cmd
}
