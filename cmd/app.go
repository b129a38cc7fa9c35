package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"

	"github.com/steamfamilyzap/kgbot/internal/agent"
	"github.com/steamfamilyzap/kgbot/internal/config"
	"github.com/steamfamilyzap/kgbot/internal/gamerpower"
	"github.com/steamfamilyzap/kgbot/internal/intents"
	"github.com/steamfamilyzap/kgbot/internal/library"
	"github.com/steamfamilyzap/kgbot/internal/prompts"
	"github.com/steamfamilyzap/kgbot/internal/providers"
	"github.com/steamfamilyzap/kgbot/internal/steam"
	"github.com/steamfamilyzap/kgbot/internal/store"
	"github.com/steamfamilyzap/kgbot/internal/store/pg"
	"github.com/steamfamilyzap/kgbot/internal/store/sqlite"
	"github.com/steamfamilyzap/kgbot/internal/upgrade"
	"github.com/steamfamilyzap/kgbot/internal/vaquinha"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg        *config.Config
	stores     *store.Stores
	db         *sql.DB
	library    *library.Service
	ledger     *vaquinha.Ledger
	dispatcher *intents.Dispatcher
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newApp opens the database and wires the domain services.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	stores, db, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	steamClient := steam.NewClient(steam.Options{
		APIKey:            cfg.Steam.APIKey,
		APIBase:           cfg.Steam.APIBase,
		StoreBase:         cfg.Steam.StoreBase,
		CountryCode:       cfg.Steam.CountryCode,
		Language:          cfg.Steam.Language,
		RequestsPerSecond: cfg.Steam.RequestsPerS,
		Burst:             cfg.Steam.Burst,
	})
	lib := library.NewService(steamClient, stores, cfg.Sync.Concurrency)
	ledger := vaquinha.NewLedger(stores.Campaigns)

	return &app{
		cfg:     cfg,
		stores:  stores,
		db:      db,
		library: lib,
		ledger:  ledger,
		dispatcher: intents.NewDispatcher(intents.Deps{
			Ledger:        ledger,
			Directory:     stores.Profiles,
			Catalog:       lib,
			Reports:       stores.Games,
			Giveaways:     gamerpower.NewClient(cfg.GamerPower.APIBase, nil),
			GiveawayLimit: cfg.GamerPower.Limit,
		}),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		slog.Warn("close database", "error", err)
	}
}

// openStores picks Postgres or SQLite. SQLite migrates itself; Postgres must
// already be at the schema this binary ships, unless KGBOT_AUTO_MIGRATE=true.
func openStores(ctx context.Context, cfg *config.Config) (*store.Stores, *sql.DB, error) {
	if !cfg.Database.UsePostgres() {
		path := config.ExpandHome(cfg.Database.SQLitePath)
		slog.Debug("using sqlite", "path", path)
		return sqlite.NewSQLiteStores(path)
	}

	stores, db, err := pg.NewPGStores(cfg.Database.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := checkSchemaOrAutoMigrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return stores, db, nil
}

func checkSchemaOrAutoMigrate(ctx context.Context, db *sql.DB) error {
	status, err := upgrade.CheckSchema(ctx, db, "postgres")
	if err != nil {
		return err
	}
	serr := status.Err()
	if serr == nil {
		return nil
	}
	if errors.Is(serr, upgrade.ErrSchemaOutdated) && os.Getenv("KGBOT_AUTO_MIGRATE") == "true" {
		slog.Info("schema outdated, migrating", "current", status.CurrentVersion, "required", status.RequiredVersion)
		m, err := pg.NewMigrator(db)
		if err != nil {
			return err
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	}
	fmt.Fprint(os.Stderr, upgrade.FormatError(status))
	return serr
}

// newProvider builds the configured language model backend.
func newProvider(ctx context.Context, cfg *config.Config) (providers.Provider, error) {
	switch cfg.Bot.Provider {
	case "gemini":
		p, err := providers.NewGeminiProvider(ctx, cfg.Providers.Gemini.APIKey, cfg.Providers.Gemini.APIBase, cfg.Bot.Model)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "openai":
		if cfg.Providers.OpenAI.APIKey == "" {
			return nil, errors.New("openai: api key is required")
		}
		return providers.NewOpenAIProvider("openai", cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase, cfg.Bot.Model), nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Bot.Provider)
}

func channelTitle(name string) string {
	switch name {
	case config.ChannelWhatsApp:
		return "WhatsApp"
	case config.ChannelTelegram:
		return "Telegram"
	case config.ChannelDiscord:
		return "Discord"
	}
	return name
}

// newPromptBuilder renders the system prompt from the configured file, or
// the embedded default.
func (a *app) newPromptBuilder(channel string) (*prompts.Builder, error) {
	return prompts.NewBuilder(config.ExpandHome(a.cfg.Bot.PromptFile), a.stores.Profiles, prompts.Vars{
		BotName:      a.cfg.Bot.Name,
		ChannelTitle: channelTitle(channel),
		Currency:     a.cfg.Bot.Currency,
	})
}

func (a *app) newAgent(ctx context.Context, prompt agent.PromptBuilder) (*agent.Agent, error) {
	provider, err := newProvider(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	return agent.New(agent.Config{
		Provider:    provider,
		Model:       a.cfg.Bot.Model,
		MaxTokens:   a.cfg.Bot.MaxTokens,
		Temperature: a.cfg.Bot.Temperature,
		Prompt:      prompt,
		Directory:   a.stores.Profiles,
		Intents:     a.dispatcher,
		Campaigns:   a.ledger,
	}), nil
}

// member looks up a registered family member by nickname.
func (a *app) member(ctx context.Context, nickname string) (*store.Profile, error) {
	nickname = strings.TrimPrefix(strings.TrimSpace(nickname), "@")
	if nickname == "" {
		return nil, errors.New("--as <nickname> is required")
	}
	p, err := a.stores.Profiles.FindByNickname(ctx, nickname)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", nickname, err)
	}
	if p == nil {
		return nil, fmt.Errorf("no family member with nickname %q (run kgbot seed first)", nickname)
	}
	return p, nil
}
