// Package http serves the health check and a small read-only status API
// over the family data.
package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/steamfamilyzap/kgbot/internal/bus"
	"github.com/steamfamilyzap/kgbot/internal/channels"
	"github.com/steamfamilyzap/kgbot/internal/store"
)

// HealthBody is the plain-text /health response.
const HealthBody = "Bot is healthy!"

// ChannelStatus reports whether each channel is running.
type ChannelStatus interface {
	Status() map[string]bool
}

// Deps are the read sides the API exposes.
type Deps struct {
	Stores   *store.Stores
	Channels ChannelStatus      // optional
	Events   bus.EventPublisher // optional: connection events feed /v1/status
	Token    string             // bearer token for /v1; empty disables auth
	Version  string
}

// Server holds the router and the last connection event per channel.
type Server struct {
	deps    Deps
	started time.Time

	mu    sync.RWMutex
	conns map[string]channels.ConnectionEvent
}

func NewServer(deps Deps) *Server {
	s := &Server{deps: deps, started: time.Now(), conns: make(map[string]channels.ConnectionEvent)}
	if deps.Events != nil {
		deps.Events.Subscribe("http-status", s.onEvent)
	}
	return s
}

func (s *Server) onEvent(e bus.Event) {
	if e.Name != bus.EventConnection {
		return
	}
	ev, ok := e.Payload.(channels.ConnectionEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	s.conns[ev.Channel] = ev
	s.mu.Unlock()
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/status", s.status)
		r.Get("/vaquinha", s.activeCampaign)
		r.Get("/vaquinha/history", s.campaignHistory)
		r.Get("/family", s.family)
		r.Get("/family/copies", s.copies)
		r.Get("/family/sharing", s.sharing)
	})
	return r
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Token != "" {
			got := extractBearerToken(r)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.deps.Token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
