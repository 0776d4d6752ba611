// Package server wires the relay together: presence registry, WebSocket
// hub and handler, metrics, and the HTTP routes that expose them.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/lucasgreene/chatrelay/internal/config"
	"github.com/lucasgreene/chatrelay/internal/metrics"
	"github.com/lucasgreene/chatrelay/internal/moderation"
	"github.com/lucasgreene/chatrelay/internal/presence"
	"github.com/lucasgreene/chatrelay/internal/ratelimit"
	"github.com/lucasgreene/chatrelay/internal/ws"
)

// Server is the chatrelay HTTP server.
type Server struct {
	addr      string
	cfg       config.Config
	router    chi.Router
	registry  presence.Registry
	hub       *ws.Hub
	limiter   *ratelimit.Limiter
	collector *metrics.Collector
	promReg   *prometheus.Registry
	filter    moderation.Filter
	httpSrv   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithConfig applies a loaded configuration.
func WithConfig(cfg config.Config) Option {
	return func(s *Server) { s.cfg = cfg }
}

// WithRedis backs the presence registry with Redis instead of process memory.
func WithRedis(client redis.Cmdable) Option {
	return func(s *Server) { s.registry = presence.NewRedis(client) }
}

// WithRegistry injects a presence registry directly.
func WithRegistry(r presence.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// WithModeration replaces the default profanity filter.
func WithModeration(f moderation.Filter) Option {
	return func(s *Server) { s.filter = f }
}

// New creates a Server listening on addr.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		cfg:    config.Default(),
		router: chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry = presence.NewMemory()
	}
	if s.filter == nil {
		s.filter = moderation.Default()
	}

	s.promReg = prometheus.NewRegistry()
	s.collector = metrics.NewCollector(s.promReg)

	s.hub = ws.NewHub(
		ws.WithMaxConns(s.cfg.MaxConns),
		ws.WithConnMetrics(s.collector),
	)
	if s.cfg.MessageRate > 0 {
		s.limiter = ratelimit.New(rate.Limit(s.cfg.MessageRate), s.cfg.MessageBurst)
	}

	s.routes()

	// Built here, not in Run, so a shutdown signal that wins the race
	// against Run still drains the right server.
	s.httpSrv = &http.Server{Addr: s.addr, Handler: s.router}
	return s
}

func (s *Server) routes() {
	wsHandler := ws.NewHandler(s.hub, s.registry, s.filter, s.limiter, s.collector, s.cfg.MaxMessageLen)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/rooms", s.handleListRooms)
	s.router.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
	s.router.Method(http.MethodGet, "/ws", wsHandler)
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops accepting connections, closes every WebSocket with a
// going-away status, and drains the HTTP server. Calling it before Run
// makes a later Run return http.ErrServerClosed immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Shutdown()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// roomInfo is one entry in the room listing.
type roomInfo struct {
	Name  string `json:"name"`
	Users int    `json:"users"`
}

// handleListRooms reports the currently non-empty rooms. Rooms are derived
// from presence membership; an empty room simply does not exist.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	names := s.registry.Rooms()
	rooms := make([]roomInfo, 0, len(names))
	for _, name := range names {
		rooms = append(rooms, roomInfo{
			Name:  name,
			Users: len(s.registry.InRoom(name)),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rooms)
}
