package store

import (
	"errors"

	"github.com/google/uuid"
)

// Stores is the top-level container for all storage backends.
type Stores struct {
	Profiles  ProfileStore
	Games     GameStore
	Campaigns CampaignStore
	SyncRuns  SyncRunStore
}

var (
	// ErrCampaignActive is returned by CampaignStore.Create when another campaign is active.
	ErrCampaignActive = errors.New("a campaign is already active")
	// ErrCampaignNotActive is returned when a mutation targets a campaign that is no longer active.
	ErrCampaignNotActive = errors.New("campaign is not active")
	// ErrProfileNotFound is returned by mutations that reference an unknown profile.
	ErrProfileNotFound = errors.New("profile not found")
)

// GenNewID returns a time-ordered UUIDv7.
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
