// Package statusapi is the engine's operational surface: a chi+logrus JSON
// API exposing open positions and daily activity per account, grounded on
// the teacher's internal/dashboard/server.go (same router/middleware stack,
// same constant-time auth-token check) but rebuilt as a clean JSON API —
// the teacher's HTML templates have no analogue here; the external Sheets
// dashboard named in §1 consumes exactly the JSON this package serves.
package statusapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/uoa-systems/flowwatch/internal/models"
	"github.com/uoa-systems/flowwatch/internal/position"
)

// PositionManager is the narrow read surface one account's Position
// Manager exposes to the status API.
type PositionManager interface {
	Active() []*models.Position
	Stats() position.DailyStats
}

// AggregatorStats exposes the trade aggregator's drop counters. /api/stats
// sums them across ActiveSymbols (symbols with a non-empty window);
// counters of symbols without a current window are not included.
type AggregatorStats interface {
	ActiveSymbols() []string
	DroppedCount(symbol string) int64
	SoftCapDropCount(symbol string) int64
}

// Account pairs a display name with its Position Manager.
type Account struct {
	Name    string
	Manager PositionManager
}

// Config holds the HTTP server's listen address and optional bearer token.
type Config struct {
	Addr      string
	AuthToken string
}

// Server is the engine's read-only status surface.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	logger    *logrus.Logger
	authToken string
	accounts  []Account
	agg       AggregatorStats
	startedAt time.Time
}

// PositionView is one account's open position, JSON-shaped for the status API.
type PositionView struct {
	Symbol     string    `json:"symbol"`
	State      string    `json:"state"`
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	Shares     int64     `json:"shares"`
	Score      int       `json:"score"`
	Sector     string    `json:"sector"`
}

// AccountStats summarizes one account's positions and daily activity.
type AccountStats struct {
	Name        string       `json:"name"`
	OpenCount   int          `json:"open_count"`
	OpenedToday int          `json:"opened_today"`
	ClosedToday int          `json:"closed_today"`
	Positions   []PositionView `json:"positions,omitempty"`
}

// StatsResponse is /api/stats's payload.
type StatsResponse struct {
	UptimeSeconds    float64        `json:"uptime_seconds"`
	DroppedTrades    int64          `json:"dropped_trades,omitempty"`
	SoftCapDrops     int64          `json:"soft_cap_drops,omitempty"`
	Accounts         []AccountStats `json:"accounts"`
}

// New builds a Server. agg may be nil, in which case the aggregator drop
// counters are omitted from /api/stats.
func New(cfg Config, accounts []Account, agg AggregatorStats, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger,
		authToken: cfg.AuthToken,
		accounts:  accounts,
		agg:       agg,
		startedAt: time.Now(),
	}
	s.setupRoutes(cfg.Addr)
	return s
}

func (s *Server) setupRoutes(addr string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLoggerMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(middleware.Compress(5))

	s.router.Get("/health", s.handleHealth)

	if s.authToken != "" {
		s.router.Route("/", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/api/positions", s.handlePositions)
			r.Get("/api/stats", s.handleStats)
		})
	} else {
		s.router.Get("/api/positions", s.handlePositions)
		s.router.Get("/api/stats", s.handleStats)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.Status(),
			"duration": time.Since(start),
		}).Info("status api request")
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if !s.isValidToken(token) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isValidToken(token string) bool {
	if len(token) != len(s.authToken) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string][]PositionView, len(s.accounts))
	for _, acct := range s.accounts {
		out[acct.Name] = toViews(acct.Manager.Active())
	}
	s.writeJSON(w, out)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := StatsResponse{UptimeSeconds: time.Since(s.startedAt).Seconds()}
	if s.agg != nil {
		for _, sym := range s.agg.ActiveSymbols() {
			resp.DroppedTrades += s.agg.DroppedCount(sym)
			resp.SoftCapDrops += s.agg.SoftCapDropCount(sym)
		}
	}
	for _, acct := range s.accounts {
		stats := acct.Manager.Stats()
		resp.Accounts = append(resp.Accounts, AccountStats{
			Name:        acct.Name,
			OpenCount:   len(acct.Manager.Active()),
			OpenedToday: stats.Opened,
			ClosedToday: stats.Closed,
		})
	}
	s.writeJSON(w, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

func toViews(positions []*models.Position) []PositionView {
	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, PositionView{
			Symbol:     p.Symbol,
			State:      string(p.State()),
			EntryTime:  p.EntryTime,
			EntryPrice: p.EntryPrice,
			Shares:     p.Shares,
			Score:      p.Signal.Score,
			Sector:     p.Signal.Sector,
		})
	}
	return views
}

// Start begins serving until Shutdown is called, blocking the caller.
func (s *Server) Start() error {
	s.logger.Infof("status api listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("statusapi: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
