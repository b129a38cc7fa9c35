package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			Name:        "KGBot",
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			MaxTokens:   2048,
			Temperature: 0.7,
			Currency:    "BRL",
		},
		Channels: ChannelsConfig{
			Active: ChannelWhatsApp,
			WhatsApp: WhatsAppConfig{
				BridgeURL: "ws://localhost:3001",
			},
		},
		Steam: SteamConfig{
			APIBase:      "http://api.steampowered.com",
			StoreBase:    "https://store.steampowered.com",
			CountryCode:  "br",
			Language:     "brazilian",
			RequestsPerS: 4,
			Burst:        4,
		},
		GamerPower: GamerPowerConfig{
			APIBase: "https://www.gamerpower.com/api",
			Limit:   10,
		},
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         3000,
			RateLimitRPM: 20,
		},
		Database: DatabaseConfig{
			SQLitePath: "~/.kgbot/kgbot.db",
		},
		Sync: SyncConfig{
			FamilySchedule: "0 5 * * *",
			Concurrency:    4,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "kgbot",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values. The first non-empty key wins,
// so the KGBOT_* names shadow the legacy unprefixed ones.
func (c *Config) applyEnvOverrides() {
	envStr := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v := os.Getenv(key); v != "" {
				*dst = v
				return
			}
		}
	}
	envBool := func(dst *bool, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	// Secrets
	envStr(&c.Steam.APIKey, "KGBOT_STEAM_API_KEY", "STEAM_APIKEY")
	envStr(&c.Providers.Gemini.APIKey, "KGBOT_GEMINI_API_KEY", "GEMINI_APIKEY")
	envStr(&c.Providers.OpenAI.APIKey, "KGBOT_OPENAI_API_KEY")
	envStr(&c.Channels.Telegram.Token, "KGBOT_TELEGRAM_TOKEN")
	envStr(&c.Channels.Discord.Token, "KGBOT_DISCORD_TOKEN")
	envStr(&c.Gateway.Token, "KGBOT_GATEWAY_TOKEN")
	envStr(&c.Database.PostgresDSN, "KGBOT_POSTGRES_DSN", "DATABASE_URL")

	// WhatsApp identity
	envStr(&c.Channels.WhatsApp.BotNumber, "KGBOT_BOT_PHONE_NUMBER", "BOT_PHONE_NUMBER")
	envStr(&c.Channels.WhatsApp.GroupID, "KGBOT_WHATSAPP_GROUP_ID", "WHATSAPP_GROUP_ID")
	envStr(&c.Channels.WhatsApp.BridgeURL, "KGBOT_WHATSAPP_BRIDGE_URL")

	// Channel and model selection
	envStr(&c.Channels.Active, "KGBOT_CHANNEL")
	envStr(&c.Bot.Provider, "KGBOT_PROVIDER")
	envStr(&c.Bot.Model, "KGBOT_MODEL")
	envStr(&c.Bot.PromptFile, "KGBOT_PROMPT_FILE")

	// Database
	envStr(&c.Database.Driver, "KGBOT_DB_DRIVER")
	envStr(&c.Database.SQLitePath, "KGBOT_SQLITE_PATH")

	// Gateway host/port
	envStr(&c.Gateway.Host, "KGBOT_HOST")
	if v := os.Getenv("KGBOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	// Telemetry
	envStr(&c.Telemetry.Endpoint, "KGBOT_TELEMETRY_ENDPOINT")
	envStr(&c.Telemetry.Protocol, "KGBOT_TELEMETRY_PROTOCOL")
	envStr(&c.Telemetry.ServiceName, "KGBOT_TELEMETRY_SERVICE_NAME")
	envBool(&c.Telemetry.Enabled, "KGBOT_TELEMETRY_ENABLED")
	envBool(&c.Telemetry.Insecure, "KGBOT_TELEMETRY_INSECURE")

	// Allow list from env (comma-separated), applied to the active channel.
	if v := os.Getenv("KGBOT_ALLOW_FROM"); v != "" {
		list := FlexibleStringSlice(strings.Split(v, ","))
		switch c.Channels.Active {
		case ChannelTelegram:
			c.Channels.Telegram.AllowFrom = list
		case ChannelDiscord:
			c.Channels.Discord.AllowFrom = list
		default:
			c.Channels.WhatsApp.AllowFrom = list
		}
	}
}

// ApplyEnvOverrides re-applies environment variable overrides onto the config.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// Validate checks the settings required to serve messages.
// Every problem is reported, not only the first one.
func (c *Config) Validate() error {
	var errs []error
	if c.Steam.APIKey == "" {
		errs = append(errs, errors.New("steam api key is not set (KGBOT_STEAM_API_KEY or STEAM_APIKEY)"))
	}

	switch c.Bot.Provider {
	case "gemini":
		if c.Providers.Gemini.APIKey == "" {
			errs = append(errs, errors.New("gemini api key is not set (KGBOT_GEMINI_API_KEY or GEMINI_APIKEY)"))
		}
	case "openai":
		if c.Providers.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("openai api key is not set (KGBOT_OPENAI_API_KEY)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q (want gemini or openai)", c.Bot.Provider))
	}

	switch c.Channels.Active {
	case ChannelWhatsApp:
		if c.Channels.WhatsApp.BridgeURL == "" {
			errs = append(errs, errors.New("whatsapp bridge_url is required"))
		}
		if c.Channels.WhatsApp.BotNumber == "" {
			errs = append(errs, errors.New("bot phone number is not set (KGBOT_BOT_PHONE_NUMBER or BOT_PHONE_NUMBER)"))
		}
		if c.Channels.WhatsApp.GroupID == "" {
			errs = append(errs, errors.New("whatsapp group id is not set (KGBOT_WHATSAPP_GROUP_ID or WHATSAPP_GROUP_ID)"))
		}
	case ChannelTelegram:
		if c.Channels.Telegram.Token == "" {
			errs = append(errs, errors.New("telegram token is not set (KGBOT_TELEGRAM_TOKEN)"))
		}
	case ChannelDiscord:
		if c.Channels.Discord.Token == "" {
			errs = append(errs, errors.New("discord token is not set (KGBOT_DISCORD_TOKEN)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown channel %q (want whatsapp, telegram or discord)", c.Channels.Active))
	}

	if c.Database.UsePostgres() && c.Database.PostgresDSN == "" {
		errs = append(errs, errors.New("postgres selected but KGBOT_POSTGRES_DSN is not set"))
	}

	return errors.Join(errs...)
}

// Save writes the config to a JSON file. Secrets are tagged json:"-" and never persisted.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
