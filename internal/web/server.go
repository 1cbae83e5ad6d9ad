// Package web provides the HTTP server, dashboard and JSON API for the
// pipeline stages.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/sheetpipe/internal/config"
	"github.com/JonMunkholm/sheetpipe/internal/core"
	"github.com/JonMunkholm/sheetpipe/internal/web/middleware"
)

// Server is the HTTP server for the pipeline.
type Server struct {
	service *core.Service
	cfg     config.Config
	router  *chi.Mux
	server  *http.Server
	limiter *middleware.RateLimiter
}

// NewServer creates a Server over service.
func NewServer(service *core.Service, cfg config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(recordOrigin)
	s.router.Use(chimw.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Security.RateLimitRPS > 0 {
		s.limiter = middleware.NewRateLimiter(s.cfg.Security.RateLimitRPS, s.cfg.Security.RateLimitBurst)
		s.router.Use(middleware.RateLimit(s.limiter))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	auth := middleware.APIKeyAuth(s.cfg.Security)

	// Pages
	s.router.Get("/", s.handleDashboard)
	s.router.With(auth).Post("/run", s.handleRunAll)

	// Operational
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/tables", s.handleListTables)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)

		r.Route("/tables/{table}", func(r chi.Router) {
			r.Get("/", s.handleTableData)
			r.Get("/export", s.handleExport)
			r.Get("/summary", s.handleSummary)

			r.Group(func(r chi.Router) {
				r.Use(auth)
				r.Post("/import", s.handleImport)
				r.Post("/normalize-header", s.handleNormalizeHeader)
				r.Post("/sort", s.handleSort)
				r.Post("/separate", s.handleSeparate)
				r.Post("/markers", s.handleFillMarkers)
				r.Post("/subtotals", s.handleResolveSubtotals)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/remap", s.handleRemap)
			r.Post("/pipeline", s.handlePipeline)
		})
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// recordOrigin tags the request context with the client so run records
// show who started them. It runs after TrustedRealIP.
func recordOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithOrigin(r.Context(), core.Origin{
			Source:    "http",
			Client:    r.RemoteAddr,
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// securityHeaders adds security headers to all responses. The dashboard
// uses one inline stylesheet and no scripts.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'none'; form-action 'self'")
			}
			next.ServeHTTP(w, r)
		})
	}
}
