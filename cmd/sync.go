package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh cached Steam data",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "family",
		Short: "Refresh every member's profile, owned games and game details",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			profiles, games, err := a.library.SyncFamily(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync family: %w", err)
			}
			fmt.Printf("synced %d profiles, %d games\n", profiles, games)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "catalog",
		Short: "Import the Steam app list (new apps only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			inserted, err := a.library.SyncCatalog(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync catalog: %w", err)
			}
			fmt.Printf("imported %d new apps\n", inserted)
			return nil
		},
	})
	return cmd
}
