package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/steamfamilyzap/kgbot/internal/config"
	"github.com/steamfamilyzap/kgbot/internal/prompts"
)

// onboardAnswers is everything the wizard asks for.
type onboardAnswers struct {
	BotName      string
	Channel      string
	Provider     string
	Model        string
	SteamKey     string
	ModelKey     string
	BotPhone     string
	GroupID      string
	ChannelToken string
	UsePostgres  bool
	PostgresDSN  string
	SQLitePath   string
	PromptFile   string // empty keeps the embedded prompt
}

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup: writes the config file and the .env secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			envPath := envFile
			if envPath == "" {
				envPath = ".env"
			}
			return runOnboard(resolveConfigPath(), envPath)
		},
	}
}

func runOnboard(cfgPath, envPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Default()
	}
	env, err := godotenv.Read(envPath)
	if err != nil {
		env = map[string]string{}
	}

	ans := onboardAnswers{
		BotName:     cfg.Bot.Name,
		Channel:     cfg.Channels.Active,
		Provider:    cfg.Bot.Provider,
		Model:       cfg.Bot.Model,
		SteamKey:    cfg.Steam.APIKey,
		BotPhone:    cfg.Channels.WhatsApp.BotNumber,
		GroupID:     cfg.Channels.WhatsApp.GroupID,
		UsePostgres: cfg.Database.UsePostgres(),
		PostgresDSN: cfg.Database.PostgresDSN,
		SQLitePath:  cfg.Database.SQLitePath,
	}
	var writePrompt bool

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Bot name").Value(&ans.BotName).Validate(required("bot name")),
			huh.NewSelect[string]().Title("Messaging channel").Options(
				huh.NewOption("WhatsApp (bridge)", config.ChannelWhatsApp),
				huh.NewOption("Telegram", config.ChannelTelegram),
				huh.NewOption("Discord", config.ChannelDiscord),
			).Value(&ans.Channel),
			huh.NewSelect[string]().Title("Language model").Options(
				huh.NewOption("Google Gemini", "gemini"),
				huh.NewOption("OpenAI-compatible", "openai"),
			).Value(&ans.Provider),
			huh.NewInput().Title("Model").Description("Leave empty for the provider default").Value(&ans.Model),
		),
		huh.NewGroup(
			huh.NewInput().Title("Steam Web API key").EchoMode(huh.EchoModePassword).
				Value(&ans.SteamKey).Validate(required("steam api key")),
			huh.NewInput().Title("Model API key").EchoMode(huh.EchoModePassword).
				Value(&ans.ModelKey).Validate(required("model api key")),
		),
		huh.NewGroup(
			huh.NewInput().Title("Bot phone number").Description("Digits only, with country code").
				Value(&ans.BotPhone).Validate(required("bot phone number")),
			huh.NewInput().Title("WhatsApp group id").Placeholder("120363000000000000@g.us").
				Value(&ans.GroupID).Validate(required("group id")),
		).WithHideFunc(func() bool { return ans.Channel != config.ChannelWhatsApp }),
		huh.NewGroup(
			huh.NewInput().Title("Bot token").EchoMode(huh.EchoModePassword).
				Value(&ans.ChannelToken).Validate(required("bot token")),
		).WithHideFunc(func() bool { return ans.Channel == config.ChannelWhatsApp }),
		huh.NewGroup(
			huh.NewConfirm().Title("Use PostgreSQL?").Description("No keeps everything in a local SQLite file").
				Value(&ans.UsePostgres),
		),
		huh.NewGroup(
			huh.NewInput().Title("PostgreSQL DSN").EchoMode(huh.EchoModePassword).
				Value(&ans.PostgresDSN).Validate(required("postgres dsn")),
		).WithHideFunc(func() bool { return !ans.UsePostgres }),
		huh.NewGroup(
			huh.NewInput().Title("SQLite path").Value(&ans.SQLitePath).Validate(required("sqlite path")),
		).WithHideFunc(func() bool { return ans.UsePostgres }),
		huh.NewGroup(
			huh.NewConfirm().Title("Write an editable system prompt file?").
				Description("It is reloaded while the bot runs").Value(&writePrompt),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Onboarding cancelled.")
			return nil
		}
		return err
	}

	if writePrompt {
		ans.PromptFile = filepath.Join(filepath.Dir(cfgPath), prompts.DefaultFile)
		created, err := prompts.WriteDefault(ans.PromptFile)
		if err != nil {
			return fmt.Errorf("write prompt file: %w", err)
		}
		if created {
			fmt.Printf("Wrote %s\n", ans.PromptFile)
		}
	}

	applyOnboarding(cfg, env, ans)

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := godotenv.Write(env, envPath); err != nil {
		return fmt.Errorf("write %s: %w", envPath, err)
	}
	if err := os.Chmod(envPath, 0o600); err != nil {
		return err
	}

	fmt.Printf("\nSaved %s and %s.\n\n", cfgPath, envPath)
	fmt.Println("Next steps:")
	fmt.Println("  kgbot seed members.yaml   # register the family")
	fmt.Println("  kgbot sync family         # fetch profiles and libraries")
	fmt.Println("  kgbot serve")
	return nil
}

// applyOnboarding writes non-secret answers into cfg and secrets into env.
func applyOnboarding(cfg *config.Config, env map[string]string, ans onboardAnswers) {
	cfg.Bot.Name = strings.TrimSpace(ans.BotName)
	cfg.Bot.Provider = ans.Provider
	cfg.Bot.Model = strings.TrimSpace(ans.Model)
	cfg.Channels.Active = ans.Channel
	if ans.PromptFile != "" {
		cfg.Bot.PromptFile = ans.PromptFile
	}

	setEnv := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			env[key] = v
		}
	}
	setEnv("KGBOT_STEAM_API_KEY", ans.SteamKey)
	switch ans.Provider {
	case "openai":
		setEnv("KGBOT_OPENAI_API_KEY", ans.ModelKey)
	default:
		setEnv("KGBOT_GEMINI_API_KEY", ans.ModelKey)
	}
	switch ans.Channel {
	case config.ChannelWhatsApp:
		setEnv("KGBOT_BOT_PHONE_NUMBER", ans.BotPhone)
		setEnv("KGBOT_WHATSAPP_GROUP_ID", ans.GroupID)
	case config.ChannelTelegram:
		setEnv("KGBOT_TELEGRAM_TOKEN", ans.ChannelToken)
	case config.ChannelDiscord:
		setEnv("KGBOT_DISCORD_TOKEN", ans.ChannelToken)
	}

	if ans.UsePostgres {
		cfg.Database.Driver = "postgres"
		setEnv("KGBOT_POSTGRES_DSN", ans.PostgresDSN)
	} else {
		cfg.Database.Driver = "sqlite"
		cfg.Database.SQLitePath = strings.TrimSpace(ans.SQLitePath)
	}
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
