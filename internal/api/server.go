package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/phishdash/internal/config"
	"github.com/foxzi/phishdash/internal/ipfilter"
	"github.com/foxzi/phishdash/internal/metrics"
	"github.com/foxzi/phishdash/internal/ratelimit"
	"github.com/foxzi/phishdash/internal/results"
)

// Version is reported by the health endpoint
var Version = "dev"

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	registry   *results.Registry
	config     *config.APIConfig
	metrics    *metrics.Metrics
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server. m may be nil when metrics are disabled.
func NewServer(reg *results.Registry, cfg *config.APIConfig, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		registry:  reg,
		config:    cfg,
		metrics:   m,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// SetRateLimiter limits manual refreshes. Without one they are unlimited.
func (s *Server) SetRateLimiter(rl *ratelimit.Limiter) {
	s.limiter = rl
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware(s.metrics))

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	filter := ipfilter.New(s.config.AllowedIPs, s.logger)
	if filter.Enabled() {
		s.logger.Info("API IP filtering enabled", "allowed_networks", filter.Count())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(filter.Middleware)
		r.Use(s.authMiddleware)

		r.Get("/workspaces", s.handleWorkspaces)
		r.Route("/workspaces/{id}", func(r chi.Router) {
			r.Get("/", s.handleDashboard)
			r.Get("/counters", s.handleCounters)
			r.Get("/visuals", s.handleVisuals)
			r.Get("/results", s.handleResults)
			r.Get("/results/{resultID}/email", s.handleResultEmail)
			r.Get("/results/{resultID}/campaign", s.handleResultCampaign)
			r.Get("/forms", s.handleForms)
			r.Get("/drilldown/{status}", s.handleDrilldown)
			r.Put("/selection", s.handleToggleAll)
			r.Put("/selection/{campaignID}", s.handleToggleOne)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/events", s.handleEvents)
		})
	})
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves the API until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		BaseContext:    func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP API server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
