package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/steamfamilyzap/kgbot/internal/mcp"
)

func mcpCmd() *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the family tools over MCP (stdio) as one member",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol.
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			requester, err := a.member(cmd.Context(), as)
			if err != nil {
				return err
			}
			s, err := mcp.NewServer(Version, a.dispatcher, requester)
			if err != nil {
				return err
			}
			slog.Info("mcp server ready", "as", requester.Nickname)
			return mcp.ServeStdio(s)
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "nickname of the family member the tools act for")
	return cmd
}
