package intents

import (
	"context"
	"fmt"
	"time"

	"github.com/steamfamilyzap/kgbot/internal/gamerpower"
	"github.com/steamfamilyzap/kgbot/internal/steam"
	"github.com/steamfamilyzap/kgbot/internal/store"
)

type profilePayload struct {
	SteamID      string `json:"steam_id"`
	Nickname     string `json:"nickname"`
	PersonaName  string `json:"persona_name"`
	RealName     string `json:"real_name,omitempty"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	ProfileURL   string `json:"profile_url,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
	PersonaState int    `json:"persona_state"`
	LastLogoff   string `json:"last_logoff,omitempty"`
}

type gamePayload struct {
	AppID         int64  `json:"app_id"`
	Name          string `json:"name"`
	PlaytimeHours int    `json:"playtime_hours"`
	IconURL       string `json:"icon_url,omitempty"`
	LastPlayed    string `json:"last_played,omitempty"`
}

type detailsPayload struct {
	AppID            int64    `json:"app_id"`
	Name             string   `json:"name"`
	Type             string   `json:"type"`
	ShortDescription string   `json:"short_description"`
	HeaderImage      string   `json:"header_image"`
	IsFree           bool     `json:"is_free"`
	Price            string   `json:"price,omitempty"`
	DiscountPercent  int      `json:"discount_percent,omitempty"`
	Developers       []string `json:"developers,omitempty"`
	Publishers       []string `json:"publishers,omitempty"`
	Genres           []string `json:"genres,omitempty"`
	Categories       []string `json:"categories,omitempty"`
	FamilySharing    bool     `json:"family_sharing"`
	ReleaseDate      string   `json:"release_date,omitempty"`
	ComingSoon       bool     `json:"coming_soon,omitempty"`
	Metacritic       int      `json:"metacritic,omitempty"`
	Website          string   `json:"website,omitempty"`
}

type giveawayPayload struct {
	Title       string `json:"title"`
	Worth       string `json:"worth"`
	Type        string `json:"type"`
	Platforms   string `json:"platforms"`
	EndDate     string `json:"end_date"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

func (d *Dispatcher) getProfile(ctx context.Context, in GetProfile, requester *store.Profile) (*Result, error) {
	steamID, err := d.resolveSteamID(ctx, in.Identifier, requester)
	if err != nil {
		return nil, err
	}
	if steamID == "" {
		return playerNotFound(in.Name(), in.Identifier), nil
	}
	p, err := d.catalog.RefreshProfile(ctx, steamID)
	if err != nil {
		return nil, fmt.Errorf("refresh profile %s: %w", steamID, err)
	}
	if p == nil {
		return playerNotFound(in.Name(), in.Identifier), nil
	}
	out := profilePayload{
		SteamID:      p.SteamID,
		Nickname:     p.Nickname,
		PersonaName:  p.PersonaName,
		RealName:     p.RealName,
		AvatarURL:    p.AvatarURL,
		ProfileURL:   p.ProfileURL,
		CountryCode:  p.CountryCode,
		PersonaState: p.PersonaState,
	}
	if !p.LastLogoff.IsZero() {
		out.LastLogoff = p.LastLogoff.Format(time.RFC3339)
	}
	return NewResult(in.Name(), out), nil
}

func (d *Dispatcher) getOwnedGames(ctx context.Context, in GetOwnedGames, requester *store.Profile) (*Result, error) {
	steamID, err := d.resolveSteamID(ctx, in.Identifier, requester)
	if err != nil {
		return nil, err
	}
	if steamID == "" {
		return playerNotFound(in.Name(), in.Identifier), nil
	}
	owned, err := d.catalog.OwnedGames(ctx, steamID)
	if err != nil {
		return nil, fmt.Errorf("owned games %s: %w", steamID, err)
	}
	out := make([]gamePayload, 0, len(owned))
	for _, g := range owned {
		gp := gamePayload{
			AppID:         g.AppID,
			Name:          g.Name,
			PlaytimeHours: steam.PlaytimeHours(g.PlaytimeMinutes),
			IconURL:       steam.IconURL(g.AppID, g.IconHash),
		}
		if !g.LastPlayedAt.IsZero() {
			gp.LastPlayed = g.LastPlayedAt.Format(time.DateOnly)
		}
		out = append(out, gp)
	}
	return NewResult(in.Name(), out), nil
}

func (d *Dispatcher) getRecentGames(ctx context.Context, in GetRecentGames, requester *store.Profile) (*Result, error) {
	steamID, err := d.resolveSteamID(ctx, in.Identifier, requester)
	if err != nil {
		return nil, err
	}
	if steamID == "" {
		return playerNotFound(in.Name(), in.Identifier), nil
	}
	games, err := d.catalog.RecentGames(ctx, steamID)
	if err != nil {
		return nil, fmt.Errorf("recent games %s: %w", steamID, err)
	}
	out := make([]gamePayload, 0, len(games))
	for _, g := range games {
		out = append(out, gamePayload{
			AppID:         g.AppID,
			Name:          g.Name,
			PlaytimeHours: steam.PlaytimeHours(g.Playtime2Weeks),
			IconURL:       steam.IconURL(g.AppID, g.ImgIconURL),
		})
	}
	return NewResult(in.Name(), out), nil
}

func (d *Dispatcher) getGameDetails(ctx context.Context, in GetGameDetails) (*Result, error) {
	game, err := d.catalog.FindGame(ctx, in.GameName)
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	if game == nil {
		return gameNotFound(in.Name(), in.GameName), nil
	}
	det, err := d.catalog.GameDetails(ctx, game.AppID)
	if err != nil {
		return nil, fmt.Errorf("game details %d: %w", game.AppID, err)
	}
	if det == nil {
		return gameNotFound(in.Name(), in.GameName), nil
	}

	out := detailsPayload{
		AppID:            game.AppID,
		Name:             det.Name,
		Type:             det.Type,
		ShortDescription: det.ShortDescription,
		HeaderImage:      det.HeaderImage,
		IsFree:           det.IsFree,
		Developers:       det.Developers,
		Publishers:       det.Publishers,
		FamilySharing:    det.FamilySharing(),
		ReleaseDate:      det.ReleaseDate.Date,
		ComingSoon:       det.ReleaseDate.ComingSoon,
		Website:          det.Website,
	}
	if po := det.PriceOverview; po != nil {
		out.Price = po.FinalFormatted
		out.DiscountPercent = po.DiscountPercent
	}
	for _, g := range det.Genres {
		out.Genres = append(out.Genres, g.Description)
	}
	for _, c := range det.Categories {
		out.Categories = append(out.Categories, c.Description)
	}
	if det.Metacritic != nil {
		out.Metacritic = det.Metacritic.Score
	}
	return NewResult(in.Name(), out).WithImage(det.HeaderImage), nil
}

func (d *Dispatcher) getGiveaways(ctx context.Context, in GetGiveaways) (*Result, error) {
	if d.giveaways == nil {
		return NewResult(in.Name(), []giveawayPayload{}), nil
	}
	list, err := d.giveaways.Giveaways(ctx, gamerpower.Filter{Platform: in.Platform, Type: in.Type, SortBy: in.SortBy})
	if err != nil {
		return nil, fmt.Errorf("giveaways: %w", err)
	}
	if len(list) > d.giveawayLimit {
		list = list[:d.giveawayLimit]
	}
	out := make([]giveawayPayload, 0, len(list))
	for _, g := range list {
		out = append(out, giveawayPayload{
			Title:       g.Title,
			Worth:       g.Worth,
			Type:        g.Type,
			Platforms:   g.Platforms,
			EndDate:     g.EndDate,
			URL:         g.OpenGiveawayURL,
			Description: g.Description,
		})
	}
	res := NewResult(in.Name(), out)
	if len(list) > 0 {
		res.WithImage(list[0].Image)
	}
	return res, nil
}
