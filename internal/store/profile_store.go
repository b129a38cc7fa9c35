package store

import (
	"context"
	"time"
)

// Profile is a family member known to the bot.
type Profile struct {
	SteamID        string    `json:"steam_id"`
	ChannelAddress string    `json:"channel_address,omitempty"` // messaging identity, empty until registered
	Nickname       string    `json:"nickname"`     // family handle used for mentions, stable across refreshes
	PersonaName    string    `json:"persona_name"` // current Steam display name
	RealName       string    `json:"real_name,omitempty"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	ProfileURL     string    `json:"profile_url,omitempty"`
	CountryCode    string    `json:"country_code,omitempty"`
	PersonaState   int       `json:"persona_state"`
	LastLogoff     time.Time `json:"last_logoff,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProfileStore is the family directory.
// Lookups return (nil, nil) when nothing matches.
type ProfileStore interface {
	// FindByNickname matches case-insensitively.
	FindByNickname(ctx context.Context, nickname string) (*Profile, error)
	FindByChannelAddress(ctx context.Context, address string) (*Profile, error)
	FindByExternalID(ctx context.Context, steamID string) (*Profile, error)

	// Upsert inserts or refreshes a profile keyed by SteamID.
	// An existing nickname and channel address are kept; p.Nickname and
	// p.ChannelAddress only apply to new rows or fill an empty address.
	Upsert(ctx context.Context, p *Profile) error

	// Register binds a channel address (and nickname) to a SteamID,
	// overwriting whatever address was there before.
	Register(ctx context.Context, steamID, nickname, channelAddress string) error

	ListAll(ctx context.Context) ([]Profile, error)
}
