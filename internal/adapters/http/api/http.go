// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/okian/arena/internal/domain/types"
)

const defaultMaxListLimit = 100

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ModelDependencies
	BenchmarkDependencies
	BattleDependencies
	LeaderboardDependencies
	HealthDependencies
	StatsProvider
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	modelsHandler      *ModelsHandler
	benchmarksHandler  *BenchmarksHandler
	battlesHandler     *BattlesHandler
	leaderboardHandler *LeaderboardHandler

	stream       http.Handler
	authenticate func(http.Handler) http.Handler
	maxLimit     int
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithStream mounts the websocket stream at /ws.
func WithStream(h http.Handler) Option {
	return func(s *Server) {
		s.stream = h
	}
}

// WithAuth guards write routes with mw, typically auth.Verifier.Middleware.
func WithAuth(mw func(http.Handler) http.Handler) Option {
	return func(s *Server) {
		s.authenticate = mw
	}
}

// WithMaxListLimit caps ?limit on list endpoints.
func WithMaxListLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{maxLimit: defaultMaxListLimit}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(deps)
	s.modelsHandler = NewModelsHandler(deps, s.maxLimit)
	s.benchmarksHandler = NewBenchmarksHandler(deps, s.maxLimit)
	s.battlesHandler = NewBattlesHandler(deps, s.maxLimit)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.maxLimit)
	return s
}

// Handler returns the router with every route attached.
func (s *Server) Handler(_ context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	if s.stream != nil {
		// Not wrapped: the upgrade needs the raw writer.
		r.Get("/ws", s.stream.ServeHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/models", MetricsMiddleware(s.modelsHandler.HandleList, "models"))
		r.Get("/models/{id}", MetricsMiddleware(s.modelsHandler.HandleGet, "model"))
		r.Get("/models/{id}/benchmarks", MetricsMiddleware(s.benchmarksHandler.HandleList, "model_benchmarks"))
		r.Get("/models/{id}/series", MetricsMiddleware(s.benchmarksHandler.HandleSeries, "model_series"))
		r.Get("/battles/recent", MetricsMiddleware(s.battlesHandler.HandleRecent, "battles_recent"))
		r.Get("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))

		r.Group(func(r chi.Router) {
			if s.authenticate != nil {
				r.Use(s.authenticate)
			}
			r.Post("/models", MetricsMiddleware(s.modelsHandler.HandleCreate, "models"))
			r.Patch("/models/{id}", MetricsMiddleware(s.modelsHandler.HandleUpdate, "model"))
			r.Post("/benchmarks", MetricsMiddleware(s.benchmarksHandler.HandleSubmit, "benchmarks"))
			r.Post("/battles", MetricsMiddleware(s.battlesHandler.HandleCreate, "battles"))
		})
	})
	return r
}
