package store

import (
	"context"
	"encoding/json"
	"time"
)

// Game is a catalog entry keyed by Steam app id.
type Game struct {
	AppID            int64           `json:"app_id"`
	Name             string          `json:"name"`
	HeaderImage      string          `json:"header_image,omitempty"`
	Details          json.RawMessage `json:"details,omitempty"` // store appdetails payload
	FamilySharing    bool            `json:"family_sharing"`
	DetailsUpdatedAt time.Time       `json:"details_updated_at,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// OwnedGame is one ownership edge as seen from a profile.
type OwnedGame struct {
	AppID           int64     `json:"app_id"`
	Name            string    `json:"name"`
	PlaytimeMinutes int       `json:"playtime_minutes"`
	IconHash        string    `json:"icon_hash,omitempty"`
	LastPlayedAt    time.Time `json:"last_played_at,omitempty"`
}

// GameCopies is one row of the family aggregate reports.
type GameCopies struct {
	AppID  int64  `json:"app_id"`
	Name   string `json:"name"`
	Copies int    `json:"copy_count"`
}

// GameStore holds the game catalog and the ownership edges.
type GameStore interface {
	Get(ctx context.Context, appID int64) (*Game, error)

	// FindByName tries a case-insensitive exact match first, then the first
	// case-insensitive substring hit. Returns (nil, nil) when neither matches.
	FindByName(ctx context.Context, name string) (*Game, error)

	// Upsert refreshes name and header image, leaving cached details alone.
	Upsert(ctx context.Context, g *Game) error
	// UpsertDetails refreshes everything including the details blob and sharing flag.
	UpsertDetails(ctx context.Context, g *Game) error
	// InsertBatch inserts games that are not yet known and reports how many were new.
	InsertBatch(ctx context.Context, games []Game) (int, error)

	// ReplaceOwnership swaps the whole ownership set of a profile.
	// Games referenced by owned are inserted if absent.
	ReplaceOwnership(ctx context.Context, steamID string, owned []OwnedGame) error
	Owned(ctx context.Context, steamID string) ([]OwnedGame, error)
	// OwnedAppIDs lists every app id owned by at least one profile.
	OwnedAppIDs(ctx context.Context) ([]int64, error)

	// FamilySharing lists family-sharing games with their copy counts,
	// most copies first, then by name.
	FamilySharing(ctx context.Context) ([]GameCopies, error)
	// CopiesReport counts copies of every owned game, most copies first, then by name.
	CopiesReport(ctx context.Context) ([]GameCopies, error)
}
