package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Campaign is a pooled-funding drive ("vaquinha") for one game.
// Amounts are in minor currency units.
type Campaign struct {
	ID              uuid.UUID      `json:"id"`
	AppID           int64          `json:"app_id"`
	GameName        string         `json:"game_name"`
	TargetMinor     int64          `json:"target_minor"`
	CollectedMinor  int64          `json:"collected_minor"`
	Status          CampaignStatus `json:"status"`
	StartedBy       string         `json:"started_by"` // steam id
	StarterNickname string         `json:"starter_nickname"`
	Contributions   []Contribution `json:"contributions"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Contribution is one self-reported payment toward a campaign.
type Contribution struct {
	ID          uuid.UUID `json:"id"`
	SteamID     string    `json:"steam_id"`
	Nickname    string    `json:"nickname"`
	AmountMinor int64     `json:"amount_minor"`
	CreatedAt   time.Time `json:"created_at"`
}

// CampaignStore persists campaigns and their contributions.
type CampaignStore interface {
	// GetActive returns the active campaign with contributions in insertion order,
	// or (nil, nil) when there is none.
	GetActive(ctx context.Context) (*Campaign, error)
	Get(ctx context.Context, id uuid.UUID) (*Campaign, error)
	// ListRecent returns the newest campaigns first, without contributions.
	ListRecent(ctx context.Context, limit int) ([]Campaign, error)

	// Create inserts c as the active campaign. Returns ErrCampaignActive if one exists.
	Create(ctx context.Context, c *Campaign) error
	// AddContribution records a contribution and bumps the running total in one
	// transaction, returning the new total. The same statement completes the
	// campaign when the total reaches the target; completed reports that
	// transition. Returns ErrCampaignNotActive if the campaign is no longer active.
	AddContribution(ctx context.Context, campaignID uuid.UUID, steamID string, amountMinor int64) (total int64, completed bool, err error)
	// SetStatus moves an active campaign to a terminal status.
	// Returns ErrCampaignNotActive if it already left the active state.
	SetStatus(ctx context.Context, campaignID uuid.UUID, status CampaignStatus) error
}
