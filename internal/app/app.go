package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aspcranes/quotegen/internal/api"
	"github.com/aspcranes/quotegen/internal/config"
	"github.com/aspcranes/quotegen/internal/metrics"
	"github.com/aspcranes/quotegen/internal/ratelimit"
	quotegentls "github.com/aspcranes/quotegen/internal/tls"
)

// App is the main application
type App struct {
	config        *config.Config
	services      *Services
	apiServer     *api.Server
	metricsServer *metrics.Server
	collector     *metrics.Collector
	limiter       *ratelimit.Limiter
	logger        *slog.Logger
}

// New creates a new application
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := SetupLogger(cfg.Logging, os.Stdout)

	// Metrics are registered before any component records to them
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metrics.SetGlobal(m)
	}

	services, err := OpenServices(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:   cfg,
		services: services,
		logger:   logger,
	}

	if m != nil {
		stats, _ := services.Templates.(metrics.TemplateStatsProvider)
		a.collector, err = metrics.NewCollector(
			services.DB,
			m,
			stats,
			cfg.Storage.Path,
			cfg.Metrics.FlushInterval,
			logger,
		)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("failed to create metrics collector: %w", err)
		}
		a.metricsServer = metrics.NewServer(m, metrics.ServerConfig{
			Addr:       cfg.Metrics.ListenAddr,
			Path:       cfg.Metrics.Path,
			AllowedIPs: cfg.Metrics.AllowedIPs,
		}, logger)
		logger.Info("metrics enabled", "addr", cfg.Metrics.ListenAddr, "path", cfg.Metrics.Path)
	}

	if cfg.RateLimit.Enabled {
		a.limiter, err = ratelimit.NewLimiter(services.DB, rateLimitConfig(cfg.RateLimit), logger)
		if err != nil {
			a.closeComponents()
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		logger.Info("document quotas enabled")
	}

	tlsConfig, err := quotegentls.ServerConfig(cfg.API.TLS)
	if err != nil {
		a.closeComponents()
		return nil, err
	}
	if tlsConfig != nil {
		logger.Info("API TLS enabled", "acme", cfg.API.TLS.ACME.Enabled)
	}

	a.apiServer = api.NewServer(api.ServerOptions{
		Config:     &cfg.API,
		Templates:  services.Templates,
		Resolver:   services.Resolver,
		Quotations: services.Quotations,
		Documents:  services.Documents,
		Limiter:    a.limiter,
		TLS:        tlsConfig,
		Logger:     logger.With("component", "api"),
	})

	return a, nil
}

func rateLimitConfig(cfg config.RateLimitConfig) *ratelimit.Config {
	rl := &ratelimit.Config{FlushInterval: cfg.FlushInterval}
	if cfg.Global != nil {
		rl.Global = &ratelimit.LimitConfig{
			DocumentsPerHour: cfg.Global.DocumentsPerHour,
			DocumentsPerDay:  cfg.Global.DocumentsPerDay,
		}
	}
	if cfg.PerIP != nil {
		rl.PerIP = &ratelimit.LimitConfig{
			DocumentsPerHour: cfg.PerIP.DocumentsPerHour,
			DocumentsPerDay:  cfg.PerIP.DocumentsPerDay,
		}
	}
	return rl
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting quotegen",
		"api_addr", a.config.API.ListenAddr,
		"storage_driver", a.config.Storage.Driver,
		"cache", a.config.Cache.Enabled,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.collector != nil {
		a.collector.Start(ctx)
	}

	// Channel to collect errors
	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("server error", "error", runErr)
		cancel()
	}

	// Graceful shutdown
	if err := a.Shutdown(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Create timeout context
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	a.closeComponents()

	a.logger.Info("shutdown complete")
	return nil
}

// closeComponents stops background workers, then closes storage. Counters
// are persisted before the database closes.
func (a *App) closeComponents() {
	if a.collector != nil {
		if err := a.collector.Stop(); err != nil {
			a.logger.Error("metrics collector stop error", "error", err)
		}
	}

	if a.limiter != nil {
		if err := a.limiter.Stop(); err != nil {
			a.logger.Error("rate limiter stop error", "error", err)
		}
	}

	if err := a.services.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
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
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
