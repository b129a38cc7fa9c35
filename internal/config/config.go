package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
// Phone numbers in allow lists are often written without quotes.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for KGBot.
type Config struct {
	Bot        BotConfig        `json:"bot"`
	Channels   ChannelsConfig   `json:"channels"`
	Providers  ProvidersConfig  `json:"providers"`
	Steam      SteamConfig      `json:"steam"`
	GamerPower GamerPowerConfig `json:"gamerpower"`
	Gateway    GatewayConfig    `json:"gateway"`
	Database   DatabaseConfig   `json:"database"`
	Sync       SyncConfig       `json:"sync"`
	Telemetry  TelemetryConfig  `json:"telemetry,omitempty"`
	mu         sync.RWMutex
}

// BotConfig holds the persona and conversational settings.
type BotConfig struct {
	Name        string  `json:"name"`                  // persona name used in the system prompt (default "KGBot")
	Provider    string  `json:"provider"`              // "gemini" (default) or "openai"
	Model       string  `json:"model"`                 // model id, provider default when empty
	MaxTokens   int     `json:"max_tokens,omitempty"`  // completion cap (default 2048)
	Temperature float64 `json:"temperature,omitempty"` // sampling temperature (default 0.7)
	PromptFile  string  `json:"prompt_file,omitempty"` // optional system prompt override, reloaded on change
	Currency    string  `json:"currency,omitempty"`    // display currency code (default "BRL")
}

// SteamConfig configures the Steam Web API and store clients.
// APIKey is NEVER read from config.json, only from env.
type SteamConfig struct {
	APIKey       string  `json:"-"`                        // from env KGBOT_STEAM_API_KEY / STEAM_APIKEY
	APIBase      string  `json:"api_base,omitempty"`       // default "http://api.steampowered.com"
	StoreBase    string  `json:"store_base,omitempty"`     // default "https://store.steampowered.com"
	CountryCode  string  `json:"country_code,omitempty"`   // store price region (default "br")
	Language     string  `json:"language,omitempty"`       // store text language (default "brazilian")
	RequestsPerS float64 `json:"requests_per_s,omitempty"` // client-side throttle (default 4)
	Burst        int     `json:"burst,omitempty"`          // throttle burst (default 4)
}

// GamerPowerConfig configures the giveaways client.
type GamerPowerConfig struct {
	APIBase string `json:"api_base,omitempty"` // default "https://www.gamerpower.com/api"
	Limit   int    `json:"limit,omitempty"`    // max giveaways returned to the model (default 10)
}

// GatewayConfig controls the status HTTP server and inbound throttling.
type GatewayConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Token        string `json:"-"`                        // bearer token for /v1 routes, from env KGBOT_GATEWAY_TOKEN
	RateLimitRPM int    `json:"rate_limit_rpm,omitempty"` // inbound messages per minute per sender (default 20, 0 = disabled)
}

// DatabaseConfig selects the storage backend.
// PostgresDSN is NEVER read from config.json (secret), only from env.
type DatabaseConfig struct {
	Driver      string `json:"driver,omitempty"`      // "postgres" (default when a DSN is set) or "sqlite"
	PostgresDSN string `json:"-"`                     // from env KGBOT_POSTGRES_DSN / DATABASE_URL
	SQLitePath  string `json:"sqlite_path,omitempty"` // default "~/.kgbot/kgbot.db"
}

// UsePostgres reports whether the Postgres backend is selected.
func (d DatabaseConfig) UsePostgres() bool {
	if d.Driver == "" {
		return d.PostgresDSN != ""
	}
	return d.Driver == "postgres"
}

// SyncConfig schedules the background library refresh jobs.
// Schedules are cron expressions; empty disables the job.
type SyncConfig struct {
	FamilySchedule  string `json:"family_schedule,omitempty"`  // default "0 5 * * *"
	CatalogSchedule string `json:"catalog_schedule,omitempty"` // default "" (manual only)
	Concurrency     int    `json:"concurrency,omitempty"`      // parallel Steam requests during sync (default 4)
}

// TelemetryConfig configures OpenTelemetry OTLP export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext transport, for local collectors
	ServiceName string            `json:"service_name,omitempty"` // default "kgbot"
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}

// ReplaceFrom copies every field of src into c under the write lock.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Bot = src.Bot
	c.Channels = src.Channels
	c.Providers = src.Providers
	c.Steam = src.Steam
	c.GamerPower = src.GamerPower
	c.Gateway = src.Gateway
	c.Database = src.Database
	c.Sync = src.Sync
	c.Telemetry = src.Telemetry
}
