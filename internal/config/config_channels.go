package config

// Channel names accepted by ChannelsConfig.Active.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelTelegram = "telegram"
	ChannelDiscord  = "discord"
)

// ChannelsConfig contains per-channel configuration.
// Exactly one channel runs per process, chosen by Active.
type ChannelsConfig struct {
	Active   string         `json:"active"` // "whatsapp" (default), "telegram" or "discord"
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type WhatsAppConfig struct {
	BridgeURL   string              `json:"bridge_url"`
	BotNumber   string              `json:"-"`                      // from env KGBOT_BOT_PHONE_NUMBER / BOT_PHONE_NUMBER
	GroupID     string              `json:"-"`                      // from env KGBOT_WHATSAPP_GROUP_ID / WHATSAPP_GROUP_ID
	AllowFrom   FlexibleStringSlice `json:"allow_from"`
	DMPolicy    string              `json:"dm_policy,omitempty"`    // "open" (default), "allowlist", "disabled"
	GroupPolicy string              `json:"group_policy,omitempty"` // "open" (default), "allowlist", "disabled"
}

type TelegramConfig struct {
	Token          string              `json:"-"` // from env KGBOT_TELEGRAM_TOKEN
	Proxy          string              `json:"proxy,omitempty"`
	AllowFrom      FlexibleStringSlice `json:"allow_from"`
	GroupID        string              `json:"group_id,omitempty"`        // restrict group traffic to one chat id
	DMPolicy       string              `json:"dm_policy,omitempty"`       // "open" (default), "allowlist", "disabled"
	GroupPolicy    string              `json:"group_policy,omitempty"`    // "open" (default), "allowlist", "disabled"
	RequireMention *bool               `json:"require_mention,omitempty"` // require @bot mention in groups (default true)
}

type DiscordConfig struct {
	Token          string              `json:"-"` // from env KGBOT_DISCORD_TOKEN
	AllowFrom      FlexibleStringSlice `json:"allow_from"`
	ChannelID      string              `json:"channel_id,omitempty"`      // restrict guild traffic to one channel
	DMPolicy       string              `json:"dm_policy,omitempty"`       // "open" (default), "allowlist", "disabled"
	GroupPolicy    string              `json:"group_policy,omitempty"`    // "open" (default), "allowlist", "disabled"
	RequireMention *bool               `json:"require_mention,omitempty"` // require @bot mention in guilds (default true)
}

// ProvidersConfig holds credentials for the supported model backends.
type ProvidersConfig struct {
	Gemini ProviderConfig `json:"gemini"`
	OpenAI ProviderConfig `json:"openai"`
}

type ProviderConfig struct {
	APIKey  string `json:"-"` // from env only
	APIBase string `json:"api_base,omitempty"`
}

// HasAnyProvider returns true if at least one provider has an API key configured.
func (c *Config) HasAnyProvider() bool {
	return c.Providers.Gemini.APIKey != "" || c.Providers.OpenAI.APIKey != ""
}
