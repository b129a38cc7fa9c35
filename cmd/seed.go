package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var steamIDPattern = regexp.MustCompile(`^\d{17}$`)

// seedFile is the family roster.
//
//	members:
//	  - nickname: ana
//	    steam_id: "76561198000000001"
//	    address: "5511999990000@s.whatsapp.net"
type seedFile struct {
	Members []seedMember `yaml:"members"`
}

type seedMember struct {
	Nickname string `yaml:"nickname"`
	SteamID  string `yaml:"steam_id"`
	Address  string `yaml:"address"`
}

func parseSeed(data []byte) ([]seedMember, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(f.Members) == 0 {
		return nil, errors.New("seed file has no members")
	}

	var errs []error
	nicks := make(map[string]bool, len(f.Members))
	addrs := make(map[string]bool, len(f.Members))
	for i := range f.Members {
		m := &f.Members[i]
		m.Nickname = strings.TrimPrefix(strings.TrimSpace(m.Nickname), "@")
		m.SteamID = strings.TrimSpace(m.SteamID)
		m.Address = strings.TrimSpace(m.Address)

		if m.Nickname == "" {
			errs = append(errs, fmt.Errorf("member %d: nickname is required", i+1))
		}
		if !steamIDPattern.MatchString(m.SteamID) {
			errs = append(errs, fmt.Errorf("member %d (%s): steam_id %q is not a 17-digit SteamID64", i+1, m.Nickname, m.SteamID))
		}
		key := strings.ToLower(m.Nickname)
		if key != "" && nicks[key] {
			errs = append(errs, fmt.Errorf("member %d: duplicate nickname %q", i+1, m.Nickname))
		}
		nicks[key] = true
		if m.Address != "" {
			if addrs[m.Address] {
				errs = append(errs, fmt.Errorf("member %d: duplicate address %q", i+1, m.Address))
			}
			addrs[m.Address] = true
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return f.Members, nil
}

func seedCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "seed <members.yaml>",
		Short: "Register family members from a YAML roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			members, err := parseSeed(data)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, m := range members {
				if err := a.stores.Profiles.Register(ctx, m.SteamID, m.Nickname, m.Address); err != nil {
					return fmt.Errorf("register %s: %w", m.Nickname, err)
				}
				slog.Info("registered member", "nickname", m.Nickname, "steam_id", m.SteamID)
				if refresh {
					if _, err := a.library.RefreshProfile(ctx, m.SteamID); err != nil {
						slog.Warn("profile refresh failed", "nickname", m.Nickname, "error", err)
					}
				}
			}
			fmt.Printf("registered %d members\n", len(members))
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch each profile from Steam after registering")
	return cmd
}
