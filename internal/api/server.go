// Package api implements the GMLC's HTTP surface: the /gmlc location
// endpoints (REST and MLP ingress), the admin API for CDR queries, and
// the Prometheus scrape endpoint.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/openlcs/gmlc/internal/api/middleware"
	"github.com/openlcs/gmlc/internal/cdrstore"
	"github.com/openlcs/gmlc/internal/config"
	"github.com/openlcs/gmlc/internal/engine"
)

// Locator drives one location request to its terminal result.
type Locator interface {
	Locate(ctx context.Context, req *engine.LocationRequest) (*engine.Result, error)
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router  *chi.Mux
	locator Locator
	store   cdrstore.Store
	cfg     *config.Config
	metrics http.Handler
	limiter *middleware.IPRateLimiter
}

// NewServer creates the HTTP handler with all routes mounted. store and
// metrics may be nil; the corresponding routes then answer 404.
func NewServer(cfg *config.Config, locator Locator, store cdrstore.Store, metrics http.Handler) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		locator: locator,
		store:   store,
		cfg:     cfg,
		metrics: metrics,
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background resources owned by the server.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	// Location endpoints. Both verbs are accepted on both: MLP clients
	// habitually POST, but the original REST surface also answers GET.
	r.Route("/gmlc", func(r chi.Router) {
		if s.cfg.RateLimitRPS > 0 {
			s.limiter = middleware.NewIPRateLimiter(
				middleware.LocationRateLimitConfig(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst))
			r.Use(middleware.RateLimit(s.limiter))
		}
		r.Get("/rest", s.handleREST)
		r.Post("/rest", s.handleREST)
		r.Get("/mlp", s.handleMLP)
		r.Post("/mlp", s.handleMLP)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		if !s.cfg.AdminEnabled() {
			return
		}
		r.Post("/auth/login", s.handleLogin)

		// Config validation rejects a malformed secret before the server
		// is built.
		secret, err := s.cfg.JWTSecretBytes()
		if err != nil {
			panic(err)
		}
		r.Route("/cdrs", func(r chi.Router) {
			r.Use(middleware.RequireAuth(secret))
			r.Get("/", s.handleListCDRs)
			r.Get("/export", s.handleExportCDRs)
			r.Get("/{id}", s.handleGetCDR)
		})
	})
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
