package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/foxzi/phishdash/internal/api"
	"github.com/foxzi/phishdash/internal/config"
	"github.com/foxzi/phishdash/internal/metrics"
	"github.com/foxzi/phishdash/internal/platform"
	"github.com/foxzi/phishdash/internal/ratelimit"
	"github.com/foxzi/phishdash/internal/results"
	"github.com/foxzi/phishdash/internal/store"
)

// App is the main application
type App struct {
	config        *config.Config
	store         *store.BoltStore
	client        *platform.Client
	registry      *results.Registry
	apiServer     *api.Server
	metrics       *metrics.Metrics
	metricsServer *metrics.Server
	collector     *metrics.Collector
	rateLimiter   *ratelimit.Limiter
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := NewLogger(cfg.Logging)

	st, err := store.NewBoltStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	pruneWorkspaces(st, cfg.Workspaces, logger)

	a := &App{
		config: cfg,
		store:  st,
		client: platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.APIKey, cfg.Platform.Timeout),
		logger: logger,
	}

	aggCfg := results.AggregatorConfig{
		PollInterval: cfg.Poll.Interval,
		FetchTimeout: cfg.Platform.Timeout,
		Store:        st,
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		aggCfg.Observer = a.metrics
		a.metricsServer = metrics.NewServer(a.metrics, cfg.Metrics.ListenAddr, cfg.Metrics.Path,
			cfg.Metrics.AllowedIPs, logger.With("component", "metrics"))
		a.collector = metrics.NewCollector(a.metrics, cfg.Storage.Path, 0)
	}

	a.registry = results.NewRegistry(cfg.Workspaces, a.client, aggCfg, logger.With("component", "aggregator"))
	a.apiServer = api.NewServer(a.registry, &cfg.API, a.metrics, logger.With("component", "api"))

	if cfg.RateLimit.Enabled {
		a.rateLimiter, err = ratelimit.NewLimiter(st.DB(), rateLimitConfig(cfg.RateLimit))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		a.apiServer.SetRateLimiter(a.rateLimiter)
		logger.Info("refresh rate limiting enabled")
	}

	return a, nil
}

// Run starts every component and blocks until ctx is done, SIGINT/SIGTERM
// arrives or a component fails
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting phishdash",
		"platform", a.config.Platform.BaseURL,
		"workspaces", a.config.Workspaces,
		"poll_interval", a.config.Poll.Interval,
		"api_addr", a.config.API.ListenAddr,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.registry.Run(ctx)
	})
	g.Go(func() error {
		if err := a.apiServer.Run(ctx); err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	if a.metricsServer != nil {
		g.Go(func() error {
			if err := a.metricsServer.Run(ctx); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			return a.collector.Run(ctx)
		})
	}

	if a.rateLimiter != nil {
		g.Go(func() error {
			if err := a.rateLimiter.Run(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()

	if cerr := a.store.Close(); cerr != nil {
		a.logger.Error("failed to close storage", "error", cerr)
	}
	a.logger.Info("phishdash stopped")
	return err
}

// pruneWorkspaces drops stored state of workspaces that are no longer configured
func pruneWorkspaces(st *store.BoltStore, configured []string, logger *slog.Logger) {
	stored, err := st.Workspaces()
	if err != nil {
		logger.Warn("failed to list stored workspaces", "error", err)
		return
	}
	for _, ws := range stored {
		if slices.Contains(configured, ws) {
			continue
		}
		if err := st.Forget(ws); err != nil {
			logger.Warn("failed to forget workspace", "workspace", ws, "error", err)
			continue
		}
		logger.Info("forgot unconfigured workspace", "workspace", ws)
	}
}

func rateLimitConfig(cfg config.RateLimitConfig) *ratelimit.Config {
	convert := func(v *config.LimitValues) *ratelimit.LimitConfig {
		if v == nil {
			return nil
		}
		return &ratelimit.LimitConfig{
			PerMinute: v.PerMinute,
			PerHour:   v.PerHour,
		}
	}

	return &ratelimit.Config{
		Global:           convert(cfg.Global),
		DefaultWorkspace: convert(cfg.PerWorkspace),
		DefaultClient:    convert(cfg.PerClient),
		FlushInterval:    cfg.FlushInterval,
	}
}

// NewLogger builds the slog logger described by cfg
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
