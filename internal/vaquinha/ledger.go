// Package vaquinha runs the pooled-funding state machine: one active
// campaign at a time, contributions that add up exactly, a single
// transition to completed and starter-only cancellation.
package vaquinha

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/steamfamilyzap/kgbot/internal/store"
)

var (
	ErrNoActiveCampaign = errors.New("no active campaign")
	ErrInvalidAmount    = errors.New("contribution amount must be a positive number")
)

// UnauthorizedError is returned when someone other than the starter tries to cancel.
type UnauthorizedError struct {
	StarterNickname string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("only %s can cancel the campaign", e.StarterNickname)
}

// ContributionOutcome describes the effect of one contribution.
type ContributionOutcome struct {
	Campaign    *store.Campaign
	Contributor string
	AmountMinor int64
	TotalMinor  int64
	// Completed is set on the one contribution that reached the target.
	Completed bool
}

// Ledger serialises campaign mutations within the process. Cross-process
// safety comes from the store's transactions and the single-active index.
type Ledger struct {
	mu        sync.Mutex
	campaigns store.CampaignStore
}

func NewLedger(campaigns store.CampaignStore) *Ledger {
	return &Ledger{campaigns: campaigns}
}

// Active returns the active campaign or ErrNoActiveCampaign.
func (l *Ledger) Active(ctx context.Context) (*store.Campaign, error) {
	c, err := l.campaigns.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active campaign: %w", err)
	}
	if c == nil {
		return nil, ErrNoActiveCampaign
	}
	return c, nil
}

// Start opens a campaign for game with the given target.
// Returns store.ErrCampaignActive when another campaign is running.
func (l *Ledger) Start(ctx context.Context, game *store.Game, targetMinor int64, starter *store.Profile) (*store.Campaign, error) {
	if targetMinor <= 0 {
		return nil, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	c := &store.Campaign{
		AppID:           game.AppID,
		GameName:        game.Name,
		TargetMinor:     targetMinor,
		StartedBy:       starter.SteamID,
		StarterNickname: starter.Nickname,
		Contributions:   []store.Contribution{},
	}
	if err := l.campaigns.Create(ctx, c); err != nil {
		if errors.Is(err, store.ErrCampaignActive) {
			return nil, err
		}
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	slog.Info("vaquinha started", "id", c.ID, "game", game.Name, "target", FromMinor(targetMinor).StringFixed(2), "starter", starter.Nickname)
	return c, nil
}

// Contribute adds amountMinor from contributor to the active campaign and
// completes it when the total reaches the target.
func (l *Ledger) Contribute(ctx context.Context, contributor *store.Profile, amountMinor int64) (*ContributionOutcome, error) {
	if amountMinor <= 0 {
		return nil, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.Active(ctx)
	if err != nil {
		return nil, err
	}

	total, completed, err := l.campaigns.AddContribution(ctx, c.ID, contributor.SteamID, amountMinor)
	if errors.Is(err, store.ErrCampaignNotActive) {
		return nil, ErrNoActiveCampaign
	}
	if err != nil {
		return nil, fmt.Errorf("add contribution: %w", err)
	}
	c.CollectedMinor = total
	c.Contributions = append(c.Contributions, store.Contribution{
		SteamID:     contributor.SteamID,
		Nickname:    contributor.Nickname,
		AmountMinor: amountMinor,
	})

	out := &ContributionOutcome{
		Campaign:    c,
		Contributor: contributor.Nickname,
		AmountMinor: amountMinor,
		TotalMinor:  total,
	}
	if completed {
		out.Completed = true
		c.Status = store.CampaignCompleted
		slog.Info("vaquinha completed", "id", c.ID, "game", c.GameName, "total", FromMinor(total).StringFixed(2))
	}
	return out, nil
}

// Cancel cancels the active campaign on behalf of requester.
// Only the starter may cancel; others get *UnauthorizedError.
func (l *Ledger) Cancel(ctx context.Context, requester *store.Profile) (*store.Campaign, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.Active(ctx)
	if err != nil {
		return nil, err
	}
	if c.StartedBy != requester.SteamID {
		return nil, &UnauthorizedError{StarterNickname: c.StarterNickname}
	}
	if err := l.campaigns.SetStatus(ctx, c.ID, store.CampaignCancelled); err != nil {
		if errors.Is(err, store.ErrCampaignNotActive) {
			return nil, ErrNoActiveCampaign
		}
		return nil, fmt.Errorf("cancel campaign: %w", err)
	}
	c.Status = store.CampaignCancelled
	slog.Info("vaquinha cancelled", "id", c.ID, "game", c.GameName, "by", requester.Nickname)
	return c, nil
}
