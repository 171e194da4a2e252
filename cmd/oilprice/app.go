package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/johnayoung/go-oilprice-trend/internal/cache"
	"github.com/johnayoung/go-oilprice-trend/internal/config"
	"github.com/johnayoung/go-oilprice-trend/internal/logger"
	"github.com/johnayoung/go-oilprice-trend/internal/metrics"
	"github.com/johnayoung/go-oilprice-trend/internal/rpc"
	"github.com/johnayoung/go-oilprice-trend/internal/server"
	"github.com/johnayoung/go-oilprice-trend/internal/upstream"
	"github.com/johnayoung/go-oilprice-trend/internal/validator"
)

// App holds the wired service components
type App struct {
	config     *config.AppConfig
	logs       *logger.LoggerManager
	logger     *logger.ComponentLogger
	metrics    *metrics.Metrics
	fetcher    *upstream.Fetcher
	cache      *cache.CachingProvider // nil when caching is disabled
	dispatcher *rpc.Dispatcher
}

// newApp loads configuration and builds the provider chain.
// The query command keeps stdout for its own output, so its logs go to stderr.
func newApp(ctx context.Context, global *GlobalFlags, command string) (*App, error) {
	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.NewConfigManager(global.ConfigPath, bootstrap, global.EnvFile).LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if command == "query" && cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}

	logs, err := logger.NewLoggerManager(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}

	app := &App{
		config: cfg,
		logs:   logs,
		logger: logs.GetComponentLogger("app"),
	}
	if cfg.Metrics.Enabled {
		app.metrics = metrics.New()
	}

	app.fetcher, err = upstream.NewFetcher(cfg.Upstream, logs.GetComponentLogger("upstream").Logger,
		upstream.WithMetrics(app.metrics))
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("failed to initialize upstream fetcher: %w", err)
	}

	var provider upstream.PriceProvider = app.fetcher
	if cfg.Cache.Enabled() {
		app.cache, err = cache.NewCachingProvider(app.fetcher, cfg.Cache, logs.GetComponentLogger("cache").Logger,
			cache.WithMetrics(app.metrics))
		if err != nil {
			logs.Close()
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		provider = app.cache
	}

	app.dispatcher = rpc.NewDispatcher(provider, validator.New(), logs.GetComponentLogger("rpc"), app.metrics)

	app.logger.Info("service initialized",
		slog.String("client_name", cfg.Upstream.ClientName),
		slog.Bool("cache_enabled", cfg.Cache.Enabled()),
		slog.Bool("metrics_enabled", cfg.Metrics.Enabled))

	return app, nil
}

// handleServe preloads the cache and serves until ctx is canceled.
func (app *App) handleServe(ctx context.Context) error {
	app.preload(ctx)

	opts := []server.Option{server.WithHealthChecker(app.fetcher)}
	if app.metrics != nil {
		opts = append(opts, server.WithMetrics(app.metrics, app.config.Metrics.Path))
	}

	srv := server.New(app.config.Server, app.dispatcher, app.logs.GetComponentLogger("server"), opts...)
	return srv.Run(ctx)
}

// preload fills the cache before traffic arrives. A failure only means the
// first request populates it instead.
func (app *App) preload(ctx context.Context) {
	if app.cache == nil || !app.config.Cache.Preload {
		return
	}
	if err := app.logger.LogOperation(ctx, "cache_preload", func() error {
		return app.cache.Preload(ctx)
	}); err != nil {
		app.logger.Warn("cache preload failed, continuing with lazy population", "error", err)
	}
}

// Close releases logging resources
func (app *App) Close() {
	if err := app.logs.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to close logger: %v\n", err)
	}
}
