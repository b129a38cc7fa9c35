// Package steam is a thin client for the Steam Web API and the store
// appdetails endpoint.
package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/steamfamilyzap/kgbot/internal/retry"
)

// ErrLibraryHidden is returned by OwnedGames when the profile keeps its games private.
var ErrLibraryHidden = errors.New("steam library is private")

// FamilySharingCategory is the store category id of "Family Sharing".
const FamilySharingCategory = 62

// Options configures a Client. Zero values get sensible defaults.
type Options struct {
	APIKey            string
	APIBase           string
	StoreBase         string
	CountryCode       string
	Language          string
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Retry             *retry.Config
}

// Client talks to api.steampowered.com and store.steampowered.com.
type Client struct {
	apiKey    string
	apiBase   string
	storeBase string
	cc        string
	lang      string
	http      *http.Client
	limiter   *rate.Limiter
	retry     retry.Config
}

func NewClient(opts Options) *Client {
	c := &Client{
		apiKey:    opts.APIKey,
		apiBase:   strings.TrimRight(opts.APIBase, "/"),
		storeBase: strings.TrimRight(opts.StoreBase, "/"),
		cc:        opts.CountryCode,
		lang:      opts.Language,
		http:      opts.HTTPClient,
		retry:     retry.DefaultConfig(),
	}
	if c.apiBase == "" {
		c.apiBase = "http://api.steampowered.com"
	}
	if c.storeBase == "" {
		c.storeBase = "https://store.steampowered.com"
	}
	if c.cc == "" {
		c.cc = "br"
	}
	if c.lang == "" {
		c.lang = "brazilian"
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 20 * time.Second}
	}
	if opts.Retry != nil {
		c.retry = *opts.Retry
	}
	rps, burst := opts.RequestsPerSecond, opts.Burst
	if rps <= 0 {
		rps = 4
	}
	if burst <= 0 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// getJSON performs a throttled, retried GET and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	_, err := retry.Do(ctx, c.retry, func() (struct{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return struct{}{}, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return struct{}{}, fmt.Errorf("steam: create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("steam: request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return struct{}{}, &retry.HTTPError{
				Status:     resp.StatusCode,
				Body:       "steam: " + string(body),
				RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
			}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, fmt.Errorf("steam: decode response: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// callAPI hits {apiBase}/{iface}/{method}/v{version}/ and unwraps the "response" envelope.
func (c *Client) callAPI(ctx context.Context, iface, method string, version int, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", c.apiKey)
	params.Set("format", "json")
	u := fmt.Sprintf("%s/%s/%s/v%d/?%s", c.apiBase, iface, method, version, params.Encode())

	var env struct {
		Response json.RawMessage `json:"response"`
	}
	if err := c.getJSON(ctx, u, &env); err != nil {
		return fmt.Errorf("%s.%s: %w", iface, method, err)
	}
	if len(env.Response) == 0 {
		return fmt.Errorf("%s.%s: missing response envelope", iface, method)
	}
	return json.Unmarshal(env.Response, out)
}

// PlayerSummary is one entry of ISteamUser/GetPlayerSummaries.
type PlayerSummary struct {
	SteamID      string `json:"steamid"`
	PersonaName  string `json:"personaname"`
	RealName     string `json:"realname,omitempty"`
	Avatar       string `json:"avatar"`
	AvatarMedium string `json:"avatarmedium"`
	AvatarFull   string `json:"avatarfull"`
	ProfileURL   string `json:"profileurl"`
	CountryCode  string `json:"loccountrycode,omitempty"`
	StateCode    string `json:"locstatecode,omitempty"`
	TimeCreated  int64  `json:"timecreated,omitempty"`
	LastLogoff   int64  `json:"lastlogoff,omitempty"`
	PersonaState int    `json:"personastate"`
	Visibility   int    `json:"communityvisibilitystate"`
}

// PlayerSummary returns the public summary of steamID, or (nil, nil) if Steam knows no such player.
func (c *Client) PlayerSummary(ctx context.Context, steamID string) (*PlayerSummary, error) {
	var resp struct {
		Players []PlayerSummary `json:"players"`
	}
	params := url.Values{"steamids": {steamID}}
	if err := c.callAPI(ctx, "ISteamUser", "GetPlayerSummaries", 2, params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Players) == 0 {
		return nil, nil
	}
	return &resp.Players[0], nil
}

// OwnedGame is one entry of IPlayerService/GetOwnedGames or GetRecentlyPlayedGames.
type OwnedGame struct {
	AppID           int64  `json:"appid"`
	Name            string `json:"name"`
	PlaytimeForever int    `json:"playtime_forever"`
	Playtime2Weeks  int    `json:"playtime_2weeks,omitempty"`
	ImgIconURL      string `json:"img_icon_url,omitempty"`
	RTimeLastPlayed int64  `json:"rtime_last_played,omitempty"`
}

// OwnedGames lists the library of steamID with app info.
// Returns ErrLibraryHidden when the profile hides its games.
func (c *Client) OwnedGames(ctx context.Context, steamID string) ([]OwnedGame, error) {
	var resp struct {
		GameCount *int        `json:"game_count"`
		Games     []OwnedGame `json:"games"`
	}
	params := url.Values{
		"steamid":                   {steamID},
		"include_appinfo":           {"true"},
		"include_played_free_games": {"true"},
	}
	if err := c.callAPI(ctx, "IPlayerService", "GetOwnedGames", 1, params, &resp); err != nil {
		return nil, err
	}
	if resp.GameCount == nil {
		return nil, ErrLibraryHidden
	}
	return resp.Games, nil
}

// RecentGames lists the games steamID played in the last two weeks.
func (c *Client) RecentGames(ctx context.Context, steamID string) ([]OwnedGame, error) {
	var resp struct {
		Games []OwnedGame `json:"games"`
	}
	params := url.Values{"steamid": {steamID}}
	if err := c.callAPI(ctx, "IPlayerService", "GetRecentlyPlayedGames", 1, params, &resp); err != nil {
		return nil, err
	}
	return resp.Games, nil
}

// ResolveVanityURL maps a custom profile name to a SteamID, returning "" when there is no match.
func (c *Client) ResolveVanityURL(ctx context.Context, vanity string) (string, error) {
	var resp struct {
		SteamID string `json:"steamid"`
		Success int    `json:"success"`
	}
	params := url.Values{"vanityurl": {vanity}}
	if err := c.callAPI(ctx, "ISteamUser", "ResolveVanityURL", 1, params, &resp); err != nil {
		return "", err
	}
	if resp.Success != 1 {
		return "", nil
	}
	return resp.SteamID, nil
}

// App is one entry of the public app list.
type App struct {
	AppID int64  `json:"appid"`
	Name  string `json:"name"`
}

// AppList downloads the full catalog of app ids and names.
func (c *Client) AppList(ctx context.Context) ([]App, error) {
	var resp struct {
		AppList struct {
			Apps []App `json:"apps"`
		} `json:"applist"`
	}
	u := fmt.Sprintf("%s/ISteamApps/GetAppList/v2/", c.apiBase)
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("ISteamApps.GetAppList: %w", err)
	}
	return resp.AppList.Apps, nil
}

// PriceOverview is the store price block; amounts are in minor units.
type PriceOverview struct {
	Currency         string `json:"currency"`
	Initial          int64  `json:"initial"`
	Final            int64  `json:"final"`
	DiscountPercent  int    `json:"discount_percent"`
	InitialFormatted string `json:"initial_formatted"`
	FinalFormatted   string `json:"final_formatted"`
}

// Category is a store feature category.
type Category struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Genre ids come back as strings.
type Genre struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// AppDetails is the subset of the store appdetails payload the bot reads.
type AppDetails struct {
	Type             string         `json:"type"`
	Name             string         `json:"name"`
	SteamAppID       int64          `json:"steam_appid"`
	IsFree           bool           `json:"is_free"`
	ShortDescription string         `json:"short_description"`
	HeaderImage      string         `json:"header_image"`
	Website          string         `json:"website,omitempty"`
	Developers       []string       `json:"developers,omitempty"`
	Publishers       []string       `json:"publishers,omitempty"`
	PriceOverview    *PriceOverview `json:"price_overview,omitempty"`
	Categories       []Category     `json:"categories,omitempty"`
	Genres           []Genre        `json:"genres,omitempty"`
	Platforms        struct {
		Windows bool `json:"windows"`
		Mac     bool `json:"mac"`
		Linux   bool `json:"linux"`
	} `json:"platforms"`
	Metacritic *struct {
		Score int    `json:"score"`
		URL   string `json:"url"`
	} `json:"metacritic,omitempty"`
	ReleaseDate struct {
		ComingSoon bool   `json:"coming_soon"`
		Date       string `json:"date"`
	} `json:"release_date"`
}

// FamilySharing reports whether the store lists the Family Sharing category.
func (d *AppDetails) FamilySharing() bool {
	for _, cat := range d.Categories {
		if cat.ID == FamilySharingCategory {
			return true
		}
	}
	return false
}

// AppDetails fetches store details for appID priced for the configured country.
// It returns the parsed subset plus the raw "data" object, or (nil, nil, nil)
// when the store has no page for the app.
func (c *Client) AppDetails(ctx context.Context, appID int64) (*AppDetails, json.RawMessage, error) {
	id := strconv.FormatInt(appID, 10)
	params := url.Values{"appids": {id}, "cc": {c.cc}, "l": {c.lang}}
	u := c.storeBase + "/api/appdetails?" + params.Encode()

	var resp map[string]struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, nil, fmt.Errorf("appdetails %d: %w", appID, err)
	}
	entry, ok := resp[id]
	if !ok || !entry.Success || len(entry.Data) == 0 {
		return nil, nil, nil
	}
	var d AppDetails
	if err := json.Unmarshal(entry.Data, &d); err != nil {
		return nil, nil, fmt.Errorf("appdetails %d: decode data: %w", appID, err)
	}
	if d.SteamAppID == 0 {
		d.SteamAppID = appID
	}
	return &d, entry.Data, nil
}

// IconURL builds the community CDN URL of a game icon.
func IconURL(appID int64, hash string) string {
	if hash == "" {
		return ""
	}
	return fmt.Sprintf("http://media.steampowered.com/steamcommunity/public/images/apps/%d/%s.jpg", appID, hash)
}

// PlaytimeHours rounds minutes to whole hours.
func PlaytimeHours(minutes int) int {
	return (minutes + 30) / 60
}
