// Package gamerpower lists free-game giveaways from gamerpower.com.
package gamerpower

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/steamfamilyzap/kgbot/internal/retry"
)

const userAgent = "Mozilla/5.0 (compatible; kgbot/1.0)"

// Giveaway is one entry of the /filter endpoint.
type Giveaway struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Worth           string `json:"worth"`
	Thumbnail       string `json:"thumbnail"`
	Image           string `json:"image"`
	Description     string `json:"description"`
	Instructions    string `json:"instructions"`
	OpenGiveawayURL string `json:"open_giveaway_url"`
	PublishedDate   string `json:"published_date"`
	Type            string `json:"type"`
	Platforms       string `json:"platforms"`
	EndDate         string `json:"end_date"`
	Users           int    `json:"users"`
	Status          string `json:"status"`
	GamerPowerURL   string `json:"gamerpower_url"`
}

// Filter narrows the listing. Empty fields are omitted.
// Platform and Type accept dot-separated lists ("steam.epic-games-store").
type Filter struct {
	Platform string
	Type     string
	SortBy   string // date, value or popularity
}

type Client struct {
	base  string
	http  *http.Client
	retry retry.Config
}

func NewClient(base string, httpClient *http.Client) *Client {
	if base == "" {
		base = "https://www.gamerpower.com/api"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{base: strings.TrimRight(base, "/"), http: httpClient, retry: retry.DefaultConfig()}
}

// Giveaways returns the live giveaways matching f. The API answers with an
// object instead of a list when nothing matches; that is an empty result.
func (c *Client) Giveaways(ctx context.Context, f Filter) ([]Giveaway, error) {
	params := url.Values{}
	if f.Platform != "" {
		params.Set("platform", f.Platform)
	}
	if f.Type != "" {
		params.Set("type", f.Type)
	}
	if f.SortBy != "" {
		params.Set("sort-by", f.SortBy)
	}
	u := c.base + "/filter"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	body, err := retry.Do(ctx, c.retry, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("gamerpower: request failed: %w", err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gamerpower: read body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			// 201 is how the API reports "no giveaways" on some filters.
			if resp.StatusCode == http.StatusCreated {
				return []byte("[]"), nil
			}
			return nil, &retry.HTTPError{
				Status:     resp.StatusCode,
				Body:       "gamerpower: " + string(data),
				RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
			}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return []Giveaway{}, nil
	}
	var out []Giveaway
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("gamerpower: decode giveaways: %w", err)
	}
	return out, nil
}
