package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bot.Name != "KGBot" {
		t.Errorf("Bot.Name = %q, want KGBot", cfg.Bot.Name)
	}
	if cfg.Channels.Active != ChannelWhatsApp {
		t.Errorf("Channels.Active = %q, want whatsapp", cfg.Channels.Active)
	}
	if cfg.Steam.CountryCode != "br" {
		t.Errorf("Steam.CountryCode = %q, want br", cfg.Steam.CountryCode)
	}
}

func TestLoadJSON5AndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		// comments are allowed
		bot: { name: "Mordomo", provider: "openai" },
		channels: { active: "telegram", telegram: { allow_from: [123, "456"] } },
		gateway: { port: 8080 },
	}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("STEAM_APIKEY", "legacy-key")
	t.Setenv("KGBOT_STEAM_API_KEY", "new-key")
	t.Setenv("KGBOT_TELEGRAM_TOKEN", "tg-token")
	t.Setenv("KGBOT_PORT", "9090")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bot.Name != "Mordomo" || cfg.Bot.Provider != "openai" {
		t.Errorf("bot = %+v", cfg.Bot)
	}
	if got := []string(cfg.Channels.Telegram.AllowFrom); len(got) != 2 || got[0] != "123" || got[1] != "456" {
		t.Errorf("AllowFrom = %v", got)
	}
	if cfg.Steam.APIKey != "new-key" {
		t.Errorf("Steam.APIKey = %q, prefixed env should win", cfg.Steam.APIKey)
	}
	if cfg.Channels.Telegram.Token != "tg-token" {
		t.Errorf("Telegram.Token = %q", cfg.Channels.Telegram.Token)
	}
	if cfg.Gateway.Port != 9090 {
		t.Errorf("Gateway.Port = %d, want 9090", cfg.Gateway.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{
			name: "complete whatsapp setup",
			mutate: func(c *Config) {
				c.Steam.APIKey = "k"
				c.Providers.Gemini.APIKey = "g"
				c.Channels.WhatsApp.BotNumber = "5522999999999"
				c.Channels.WhatsApp.GroupID = "1203630@g.us"
			},
		},
		{
			name:    "missing everything",
			mutate:  func(c *Config) {},
			wantErr: []string{"steam api key", "gemini api key", "bot phone number", "group id"},
		},
		{
			name: "discord without token",
			mutate: func(c *Config) {
				c.Steam.APIKey = "k"
				c.Providers.Gemini.APIKey = "g"
				c.Channels.Active = ChannelDiscord
			},
			wantErr: []string{"discord token"},
		},
		{
			name: "postgres without dsn",
			mutate: func(c *Config) {
				c.Steam.APIKey = "k"
				c.Providers.Gemini.APIKey = "g"
				c.Channels.Active = ChannelTelegram
				c.Channels.Telegram.Token = "t"
				c.Database.Driver = "postgres"
			},
			wantErr: []string{"KGBOT_POSTGRES_DSN"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestUsePostgres(t *testing.T) {
	tests := []struct {
		db   DatabaseConfig
		want bool
	}{
		{DatabaseConfig{}, false},
		{DatabaseConfig{PostgresDSN: "postgres://x"}, true},
		{DatabaseConfig{Driver: "sqlite", PostgresDSN: "postgres://x"}, false},
		{DatabaseConfig{Driver: "postgres"}, true},
	}
	for _, tt := range tests {
		if got := tt.db.UsePostgres(); got != tt.want {
			t.Errorf("%+v.UsePostgres() = %v, want %v", tt.db, got, tt.want)
		}
	}
}
