package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/adlaunch/adlaunch/internal/analytics"
	"github.com/adlaunch/adlaunch/internal/api"
	"github.com/adlaunch/adlaunch/internal/config"
	"github.com/adlaunch/adlaunch/internal/db"
	"github.com/adlaunch/adlaunch/internal/mediastore"
	"github.com/adlaunch/adlaunch/internal/observability"
	"github.com/adlaunch/adlaunch/internal/orchestrator"
	"github.com/adlaunch/adlaunch/internal/platform"
	"github.com/adlaunch/adlaunch/internal/platform/ratelimit"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	// Initialize metrics registry
	metricsRegistry := observability.NewPrometheusRegistry()

	if cfg.MediaSecret == "" {
		return fmt.Errorf("MEDIA_SECRET is required")
	}
	media, err := mediastore.New(cfg.MediaDir, []byte(cfg.MediaSecret),
		mediastore.WithTTL(cfg.MediaTTL),
		mediastore.WithSweepInterval(cfg.SweepInterval),
		mediastore.WithLogger(logger),
		mediastore.WithMetrics(metricsRegistry))
	if err != nil {
		return fmt.Errorf("init media store: %w", err)
	}
	defer media.Close()

	// Optional backends: an empty DSN or address runs the pipeline
	// without that integration.
	var pg *db.Postgres
	if cfg.PostgresDSN != "" {
		pg, err = db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
		if err != nil {
			return fmt.Errorf("failed to connect postgres: %w", err)
		}
		defer pg.Close()
	}

	var store *db.RedisStore
	if cfg.RedisAddr != "" {
		store, err = db.InitRedis(cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer store.Close()
	}

	var analyticsSvc *analytics.Analytics
	if cfg.ClickHouseDSN != "" {
		analyticsSvc, err = analytics.InitClickHouse(cfg.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("failed to connect clickhouse: %w", err)
		}
		defer analyticsSvc.Close()
	}

	// Outbound pacing toward the platform APIs
	limiter := ratelimit.NewPlatformLimiter(ratelimit.Config{
		Capacity:   cfg.RateLimitCapacity,
		RefillRate: cfg.RateLimitRefillRate,
		Enabled:    cfg.RateLimitEnabled,
	}, metricsRegistry)

	registry := platform.NewRegistry(
		platform.NewMetaAdapter(media, logger, metricsRegistry,
			platform.WithMetaBaseURL(cfg.MetaBaseURL),
			platform.WithMetaVersion(cfg.MetaAPIVersion),
			platform.WithMetaLimiter(limiter),
			platform.WithMetaCountry(cfg.DefaultCountry)),
		platform.NewTikTokAdapter(media, logger, metricsRegistry,
			platform.WithTikTokBaseURL(cfg.TikTokBaseURL),
			platform.WithTikTokLimiter(limiter)),
		platform.NewGoogleAdapter(media, logger, metricsRegistry,
			platform.WithGoogleBaseURL(cfg.GoogleBaseURL),
			platform.WithGoogleLimiter(limiter),
			platform.WithGoogleDeveloperToken(cfg.GoogleDeveloperToken)),
	)

	orchOpts := []orchestrator.Option{
		orchestrator.WithAdapterTimeout(cfg.AdapterTimeout),
	}
	if store != nil {
		orchOpts = append(orchOpts, orchestrator.WithRedis(store))
	}
	if pg != nil {
		orchOpts = append(orchOpts, orchestrator.WithPostgres(pg))
	}
	if analyticsSvc != nil {
		orchOpts = append(orchOpts, orchestrator.WithAnalytics(analyticsSvc))
	}
	orch := orchestrator.New(registry, media, logger, metricsRegistry, orchOpts...)

	srvDeps := api.NewServer(logger, media, orch, metricsRegistry, cfg)
	var handler http.Handler = srvDeps.Router()
	if cfg.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server")
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Deployment pipeline running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ReadTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
