package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/steamfamilyzap/kgbot/internal/store"
)

const maxNameWidth = 48

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print family reports",
	}
	var limit int
	cmd.PersistentFlags().IntVarP(&limit, "limit", "n", 30, "max rows (0 = all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "copies",
		Short: "Copies of each game across the family",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGameReport(cmd, limit, func(a *app) ([]store.GameCopies, error) {
				return a.stores.Games.CopiesReport(cmd.Context())
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "sharing",
		Short: "Games that can be shared through Steam Family Sharing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGameReport(cmd, limit, func(a *app) ([]store.GameCopies, error) {
				return a.stores.Games.FamilySharing(cmd.Context())
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "family",
		Short: "Registered family members",
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

			profiles, err := a.stores.Profiles.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(profiles))
			for _, p := range profiles {
				registered := "no"
				if p.ChannelAddress != "" {
					registered = "yes"
				}
				rows = append(rows, []string{p.Nickname, p.PersonaName, p.SteamID, registered})
			}
			renderTable(os.Stdout, []string{"NICKNAME", "PERSONA", "STEAM ID", "REGISTERED"}, rows)
			return nil
		},
	})
	return cmd
}

func runGameReport(cmd *cobra.Command, limit int, fetch func(a *app) ([]store.GameCopies, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	games, err := fetch(a)
	if err != nil {
		return err
	}
	if limit > 0 && len(games) > limit {
		games = games[:limit]
	}
	renderTable(os.Stdout, []string{"COPIES", "APP ID", "GAME"}, copiesRows(games))
	return nil
}

func copiesRows(games []store.GameCopies) [][]string {
	rows := make([][]string, 0, len(games))
	for _, g := range games {
		rows = append(rows, []string{
			strconv.Itoa(g.Copies),
			strconv.FormatInt(g.AppID, 10),
			runewidth.Truncate(g.Name, maxNameWidth, "…"),
		})
	}
	return rows
}

// renderTable pads by display width so CJK and emoji names stay aligned.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], runewidth.StringWidth(cell))
			}
		}
	}

	line := func(cells []string) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			if i == len(cells)-1 {
				parts[i] = c
				continue
			}
			parts[i] = runewidth.FillRight(c, widths[i])
		}
		fmt.Fprintln(w, strings.Join(parts, "  "))
	}
	line(headers)
	for _, row := range rows {
		line(row)
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "(no rows)")
	}
}
