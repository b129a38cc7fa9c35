package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/steamfamilyzap/kgbot/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "kgbot",
	Short: "KGBot: Steam family assistant for group chats",
	Long:  "KGBot answers a Steam family's questions about their libraries and runs the vaquinha (group game purchase) from WhatsApp, Telegram or Discord.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadDotEnv()
		setupLogging()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json5 or $KGBOT_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before the config (default: .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(onboardCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kgbot %s\n", Version)
		},
	}
}

// loadDotEnv fills the environment from a dotenv file without overriding
// variables that are already set.
func loadDotEnv() {
	path := envFile
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && envFile != "" {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", path, err)
	}
}

func setupLogging() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("KGBOT_CONFIG"); v != "" {
		return v
	}
	return "config.json5"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
