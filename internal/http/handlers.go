package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/steamfamilyzap/kgbot/internal/channels"
	"github.com/steamfamilyzap/kgbot/internal/store"
	"github.com/steamfamilyzap/kgbot/internal/vaquinha"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(HealthBody))
}

type statusResponse struct {
	Version     string                              `json:"version"`
	Uptime      string                              `json:"uptime"`
	Channels    map[string]bool                     `json:"channels,omitempty"`
	Connections map[string]channels.ConnectionEvent `json:"connections,omitempty"`
	LastSync    map[string]*store.SyncRun           `json:"last_sync"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:  s.deps.Version,
		Uptime:   time.Since(s.started).Truncate(time.Second).String(),
		LastSync: map[string]*store.SyncRun{},
	}
	if s.deps.Channels != nil {
		resp.Channels = s.deps.Channels.Status()
	}
	s.mu.RLock()
	if len(s.conns) > 0 {
		resp.Connections = make(map[string]channels.ConnectionEvent, len(s.conns))
		for k, v := range s.conns {
			resp.Connections[k] = v
		}
	}
	s.mu.RUnlock()

	for _, kind := range []string{store.SyncKindFamily, store.SyncKindCatalog} {
		run, err := s.deps.Stores.SyncRuns.Latest(r.Context(), kind)
		if err != nil {
			s.internalError(w, "status: latest sync", err)
			return
		}
		resp.LastSync[kind] = run
	}
	writeJSON(w, http.StatusOK, resp)
}

type contributionResponse struct {
	Nickname string  `json:"nickname"`
	Amount   float64 `json:"amount"`
	At       string  `json:"at"`
}

type campaignResponse struct {
	ID            string                 `json:"id"`
	AppID         int64                  `json:"app_id"`
	GameName      string                 `json:"game_name"`
	Target        float64                `json:"target_amount"`
	Collected     float64                `json:"amount_collected"`
	Remaining     float64                `json:"remaining"`
	Status        string                 `json:"status"`
	Starter       string                 `json:"starter"`
	CreatedAt     string                 `json:"created_at"`
	Contributions []contributionResponse `json:"contributions,omitempty"`
}

func toCampaignResponse(c *store.Campaign) campaignResponse {
	remaining := max(c.TargetMinor-c.CollectedMinor, 0)
	out := campaignResponse{
		ID:        c.ID.String(),
		AppID:     c.AppID,
		GameName:  c.GameName,
		Target:    vaquinha.FromMinor(c.TargetMinor).InexactFloat64(),
		Collected: vaquinha.FromMinor(c.CollectedMinor).InexactFloat64(),
		Remaining: vaquinha.FromMinor(remaining).InexactFloat64(),
		Status:    string(c.Status),
		Starter:   c.StarterNickname,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
	for _, ct := range c.Contributions {
		out.Contributions = append(out.Contributions, contributionResponse{
			Nickname: ct.Nickname,
			Amount:   vaquinha.FromMinor(ct.AmountMinor).InexactFloat64(),
			At:       ct.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

func (s *Server) activeCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Stores.Campaigns.GetActive(r.Context())
	if err != nil {
		s.internalError(w, "vaquinha: get active", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "no_active_campaign", "no active campaign")
		return
	}
	writeJSON(w, http.StatusOK, toCampaignResponse(c))
}

func (s *Server) campaignHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 200")
			return
		}
		limit = n
	}
	list, err := s.deps.Stores.Campaigns.ListRecent(r.Context(), limit)
	if err != nil {
		s.internalError(w, "vaquinha: list recent", err)
		return
	}
	out := make([]campaignResponse, 0, len(list))
	for i := range list {
		out = append(out, toCampaignResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

type memberResponse struct {
	Nickname    string `json:"nickname"`
	PersonaName string `json:"persona_name"`
	SteamID     string `json:"steam_id"`
	ProfileURL  string `json:"profile_url,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Registered  bool   `json:"registered"`
}

func (s *Server) family(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.deps.Stores.Profiles.ListAll(r.Context())
	if err != nil {
		s.internalError(w, "family: list", err)
		return
	}
	out := make([]memberResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, memberResponse{
			Nickname:    p.Nickname,
			PersonaName: p.PersonaName,
			SteamID:     p.SteamID,
			ProfileURL:  p.ProfileURL,
			AvatarURL:   p.AvatarURL,
			Registered:  p.ChannelAddress != "",
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) copies(w http.ResponseWriter, r *http.Request) {
	rows, err := s.deps.Stores.Games.CopiesReport(r.Context())
	if err != nil {
		s.internalError(w, "family: copies report", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) sharing(w http.ResponseWriter, r *http.Request) {
	rows, err := s.deps.Stores.Games.FamilySharing(r.Context())
	if err != nil {
		s.internalError(w, "family: sharing report", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	slog.Error("http: "+op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
