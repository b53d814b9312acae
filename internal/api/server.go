// Package api serves the companion over HTTP and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/nanaoosaki/health-companion/internal/buildinfo"
	"github.com/nanaoosaki/health-companion/internal/companion"
	"github.com/nanaoosaki/health-companion/internal/episode"
	"github.com/nanaoosaki/health-companion/internal/healthstore"
	"github.com/nanaoosaki/health-companion/internal/router"
	"github.com/nanaoosaki/health-companion/internal/session"
	"github.com/nanaoosaki/health-companion/internal/usage"
)

// Chatter answers one message within a session.
type Chatter interface {
	Handle(ctx context.Context, sessionID, message string) companion.Reply
}

// EpisodeStore is the slice of the health store the API reads and closes.
type EpisodeStore interface {
	ListEpisodes(ctx context.Context, f healthstore.EpisodeFilter) []episode.Episode
	GetEpisode(ctx context.Context, id string) (*episode.Episode, error)
	CloseEpisode(ctx context.Context, id string, now time.Time) bool
	FetchCandidates(ctx context.Context, window time.Duration, now time.Time) []episode.Candidate
	DailyRollup(ctx context.Context, day time.Time) (healthstore.DailyHistory, error)
	RecentEvents(ctx context.Context, limit int) []healthstore.Event
}

// SessionRegistry looks up and forgets live conversations.
type SessionRegistry interface {
	Peek(id string) (*session.Session, bool)
	Drop(id string)
}

// RouterIntrospector exposes the router's audit trail.
type RouterIntrospector interface {
	GetAuditLog(limit int) []router.Decision
	GetStats() router.Stats
	Explain(requestID string) *router.Decision
}

// UsageReader reports LLM token usage.
type UsageReader interface {
	Total(ctx context.Context, start, end time.Time) (usage.Summary, error)
	ByRole(ctx context.Context, start, end time.Time) (map[string]usage.Summary, error)
}

// Config holds listener and query defaults.
type Config struct {
	Address         string
	Port            int
	CandidateWindow time.Duration
}

// writeJSON encodes v as JSON to w. Encode errors usually mean the
// client went away and are only logged at debug.
func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	config   Config
	chat     Chatter
	store    EpisodeStore
	router   RouterIntrospector
	usage    UsageReader
	sessions SessionRegistry
	logger   *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
	now      func() time.Time
}

// NewServer creates a server. store and rtr may be nil, in which case
// their endpoints answer 503.
func NewServer(config Config, chat Chatter, store EpisodeStore, rtr RouterIntrospector, logger *slog.Logger) *Server {
	if config.CandidateWindow <= 0 {
		config.CandidateWindow = 24 * time.Hour
	}
	return &Server{
		config: config,
		chat:   chat,
		store:  store,
		router: rtr,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The companion is a single-user local service.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
}

// SetUsage enables the /v1/usage endpoint.
func (s *Server) SetUsage(u UsageReader) {
	s.usage = u
}

// SetSessions enables the /v1/sessions endpoints.
func (s *Server) SetSessions(reg SessionRegistry) {
	s.sessions = reg
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.withLogging)

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)

		r.Post("/chat", s.handleChat)
		r.Get("/ws", s.handleWebSocket)

		r.Get("/episodes", s.handleEpisodeList)
		r.Get("/episodes/{id}", s.handleEpisodeGet)
		r.Post("/episodes/{id}/close", s.handleEpisodeClose)
		r.Get("/candidates", s.handleCandidates)
		r.Get("/history/{date}", s.handleHistory)
		r.Get("/events", s.handleEvents)

		r.Get("/sessions/{id}", s.handleSessionGet)
		r.Delete("/sessions/{id}", s.handleSessionDelete)

		r.Get("/router/stats", s.handleRouterStats)
		r.Get("/router/audit", s.handleRouterAudit)
		r.Get("/router/explain/{requestID}", s.handleRouterExplain)
		r.Get("/usage", s.handleUsage)
	})
	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Address, s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	addr := s.config.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.config.Port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Current(), s.logger)
}

// queryInt reads a positive integer query parameter, or def.
func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
