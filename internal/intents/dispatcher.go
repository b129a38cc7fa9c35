package intents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/steamfamilyzap/kgbot/internal/gamerpower"
	"github.com/steamfamilyzap/kgbot/internal/steam"
	"github.com/steamfamilyzap/kgbot/internal/store"
	"github.com/steamfamilyzap/kgbot/internal/vaquinha"
)

var steamIDRe = regexp.MustCompile(`^\d{17}$`)

// Catalog is the read-through Steam cache (library.Service).
type Catalog interface {
	ResolveVanity(ctx context.Context, vanity string) (string, error)
	RefreshProfile(ctx context.Context, steamID string) (*store.Profile, error)
	OwnedGames(ctx context.Context, steamID string) ([]store.OwnedGame, error)
	RecentGames(ctx context.Context, steamID string) ([]steam.OwnedGame, error)
	FindGame(ctx context.Context, name string) (*store.Game, error)
	GameDetails(ctx context.Context, appID int64) (*steam.AppDetails, error)
}

// Reports are the family aggregates.
type Reports interface {
	FamilySharing(ctx context.Context) ([]store.GameCopies, error)
	CopiesReport(ctx context.Context) ([]store.GameCopies, error)
}

// Directory finds family members by nickname.
type Directory interface {
	FindByNickname(ctx context.Context, nickname string) (*store.Profile, error)
}

// GiveawaySource lists free-game offers.
type GiveawaySource interface {
	Giveaways(ctx context.Context, f gamerpower.Filter) ([]gamerpower.Giveaway, error)
}

// Deps bundles the collaborators of a Dispatcher.
type Deps struct {
	Ledger        *vaquinha.Ledger
	Directory     Directory
	Catalog       Catalog
	Reports       Reports
	Giveaways     GiveawaySource // optional
	GiveawayLimit int
}

// Dispatcher executes intents on behalf of a family member.
type Dispatcher struct {
	ledger        *vaquinha.Ledger
	directory     Directory
	catalog       Catalog
	reports       Reports
	giveaways     GiveawaySource
	giveawayLimit int
	tracer        trace.Tracer
}

func NewDispatcher(d Deps) *Dispatcher {
	limit := d.GiveawayLimit
	if limit <= 0 {
		limit = 10
	}
	return &Dispatcher{
		ledger:        d.Ledger,
		directory:     d.Directory,
		catalog:       d.Catalog,
		reports:       d.Reports,
		giveaways:     d.Giveaways,
		giveawayLimit: limit,
		tracer:        otel.Tracer("github.com/steamfamilyzap/kgbot/internal/intents"),
	}
}

// ParseAndDispatch is Parse followed by Dispatch. Argument errors become an
// InvalidArguments result; unknown names return ErrUnknownIntent.
func (d *Dispatcher) ParseAndDispatch(ctx context.Context, name string, args map[string]any, requester *store.Profile) (*Result, error) {
	in, err := Parse(name, args)
	if err != nil {
		var argErr *ArgumentError
		if errors.As(err, &argErr) {
			return ErrorResult(argErr.Intent, CodeInvalidArguments, argErr.Error()), nil
		}
		return nil, err
	}
	return d.Dispatch(ctx, in, requester)
}

// Dispatch runs exactly one intent. Business outcomes come back as error
// results; only infrastructure faults are returned as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, in Intent, requester *store.Profile) (res *Result, err error) {
	ctx, span := d.tracer.Start(ctx, "intent."+in.Name(),
		trace.WithAttributes(
			attribute.String("intent.name", in.Name()),
			attribute.String("requester.steam_id", requester.SteamID),
		))
	defer func() {
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case res != nil && res.IsError():
			span.SetAttributes(attribute.String("intent.outcome", string(res.Error)))
		}
		span.End()
	}()

	switch v := in.(type) {
	case GetProfile:
		return d.getProfile(ctx, v, requester)
	case GetOwnedGames:
		return d.getOwnedGames(ctx, v, requester)
	case GetRecentGames:
		return d.getRecentGames(ctx, v, requester)
	case GetGameDetails:
		return d.getGameDetails(ctx, v)
	case GetFamilySharingGames:
		rows, err := d.reports.FamilySharing(ctx)
		if err != nil {
			return nil, fmt.Errorf("family sharing report: %w", err)
		}
		return NewResult(v.Name(), rows), nil
	case GetCopiesReport:
		rows, err := d.reports.CopiesReport(ctx)
		if err != nil {
			return nil, fmt.Errorf("copies report: %w", err)
		}
		return NewResult(v.Name(), rows), nil
	case StartCampaign:
		return d.startCampaign(ctx, v, requester)
	case Contribute:
		return d.contribute(ctx, v, requester)
	case GetCampaignStatus:
		return d.campaignStatus(ctx, v)
	case CancelCampaign:
		return d.cancelCampaign(ctx, v, requester)
	case GetGiveaways:
		return d.getGiveaways(ctx, v)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, in.Name())
}

// resolveSteamID maps an identifier to a SteamID: "" or "me" is the
// requester, 17 digits is an id, then a family nickname, then a vanity URL.
// Returns "" when nothing matches.
func (d *Dispatcher) resolveSteamID(ctx context.Context, identifier string, requester *store.Profile) (string, error) {
	id := strings.ToLower(strings.TrimSpace(identifier))
	id = strings.Trim(id, "@[]")
	if id == "" || id == "me" {
		return requester.SteamID, nil
	}
	if steamIDRe.MatchString(id) {
		return id, nil
	}
	p, err := d.directory.FindByNickname(ctx, id)
	if err != nil {
		return "", fmt.Errorf("directory lookup: %w", err)
	}
	if p != nil {
		return p.SteamID, nil
	}
	slog.Debug("identifier not in directory, trying vanity url", "identifier", id)
	steamID, err := d.catalog.ResolveVanity(ctx, id)
	if err != nil {
		return "", fmt.Errorf("resolve vanity url: %w", err)
	}
	return steamID, nil
}

func playerNotFound(intent, identifier string) *Result {
	return ErrorResult(intent, CodePlayerNotFound,
		fmt.Sprintf("Não consegui identificar o jogador \"%s\".", identifier))
}

func gameNotFound(intent, name string) *Result {
	return ErrorResult(intent, CodeNotFound,
		fmt.Sprintf("Não encontrei o jogo \"%s\" em nosso catálogo.", name))
}
