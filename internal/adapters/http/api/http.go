// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	service "github.com/okian/nback/internal/app"
	"github.com/okian/nback/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SubmitDependencies
	LeaderboardDependencies
	RankDependencies
	AdminDependencies
	ReadinessChecker
	StatsProvider
}

var _ Dependencies = (*service.Service)(nil)

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	submitHandler      *SubmitHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	adminHandler       *AdminHandler

	auth *authenticator
	log  logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithVerifier sets the bearer token verifier used on submit.
func WithVerifier(v TokenVerifier) ServerOption {
	return func(s *Server) {
		s.auth.verifier = v
	}
}

// WithAnonymousSubmissions lets requests without a token submit under a body-supplied name.
func WithAnonymousSubmissions(allow bool) ServerOption {
	return func(s *Server) {
		s.auth.allowAnonymous = allow
	}
}

// WithAdminToken sets the shared secret expected in X-Admin-Token. Empty disables admin routes.
func WithAdminToken(token string) ServerOption {
	return func(s *Server) {
		s.adminHandler.token = token
	}
}

// WithServerLogger sets the request logger.
func WithServerLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...ServerOption) *Server {
	s := &Server{
		healthHandler:      NewHealthHandler(deps),
		statsHandler:       NewStatsHandler(deps),
		submitHandler:      NewSubmitHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
		rankHandler:        NewRankHandler(deps),
		adminHandler:       NewAdminHandler(deps, ""),
		auth:               &authenticator{},
		log:                logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	})

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	r.Get("/readyz", MetricsMiddleware(s.healthHandler.HandleReady, "readyz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Group(func(r chi.Router) {
		r.Use(s.auth.middleware)
		r.Post("/sessions", MetricsMiddleware(s.submitHandler.HandleSubmit, "sessions"))
		r.Post("/submit-game", MetricsMiddleware(s.submitHandler.HandleSubmit, "sessions"))
	})

	r.Get("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	r.Get("/rank/{userID}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	r.Get("/ranks", MetricsMiddleware(s.rankHandler.HandleGetRanks, "ranks"))
	r.Post("/admin/init-db", MetricsMiddleware(s.adminHandler.HandleInitDB, "admin_init_db"))
}

// Handler returns a router with every route registered.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
