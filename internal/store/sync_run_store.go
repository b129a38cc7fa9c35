package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Sync run kinds.
const (
	SyncKindFamily  = "family"
	SyncKindCatalog = "catalog"
)

// SyncRun records one execution of a library refresh job.
type SyncRun struct {
	ID         uuid.UUID `json:"id"`
	Kind       string    `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Profiles   int       `json:"profiles"`
	Games      int       `json:"games"`
	Error      string    `json:"error,omitempty"`
}

// SyncRunStore keeps the history of sync jobs.
type SyncRunStore interface {
	Start(ctx context.Context, kind string) (uuid.UUID, error)
	Finish(ctx context.Context, id uuid.UUID, profiles, games int, runErr error) error
	// Latest returns the most recent run of kind, or (nil, nil).
	Latest(ctx context.Context, kind string) (*SyncRun, error)
}
