// Package main is the entry point for the dashboard API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/quickgraph/internal/agreement"
	"github.com/onnwee/quickgraph/internal/api"
	"github.com/onnwee/quickgraph/internal/archive"
	"github.com/onnwee/quickgraph/internal/auth"
	"github.com/onnwee/quickgraph/internal/cache"
	"github.com/onnwee/quickgraph/internal/config"
	"github.com/onnwee/quickgraph/internal/dashboard"
	"github.com/onnwee/quickgraph/internal/dataset"
	"github.com/onnwee/quickgraph/internal/health"
	"github.com/onnwee/quickgraph/internal/middleware"
	"github.com/onnwee/quickgraph/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file; environment variables override it")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("quickgraph dashboard API server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logConfig(logger, cfg)

	tp, err := tracing.NewProvider(ctx, tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: cfg.TracingInsecure,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown failed", "error", err)
		}
	}()

	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := middleware.NewMetrics()
	agreementMetrics := agreement.NewMetrics()
	dashboardMetrics := dashboard.NewMetrics()
	for _, r := range []interface{ Register(prometheus.Registerer) error }{httpMetrics, agreementMetrics, dashboardMetrics} {
		if err := r.Register(reg); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	healthConfig := api.HealthHandlersConfig{
		DBChecker: health.NewDBChecker(db),
		Logger:    logger,
	}

	var (
		store     cache.Store
		rateStore middleware.RateLimitStore
	)
	if cfg.RedisURL != "" {
		client, err := openRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		store = cache.NewRedisStore(client, "quickgraph:adjudication:")
		rateStore = middleware.NewRedisRateLimitStore(client).WithMetrics(httpMetrics)
		healthConfig.RedisChecker = health.NewRedisChecker(client)
	} else {
		logger.Info("REDIS_URL not set, using in-memory cache and rate limiter")
		store = cache.NewMemoryStore()
		memStore := middleware.NewInMemoryRateLimitStore()
		go sweepRateLimits(ctx, memStore, time.Duration(cfg.ExportRateLimitWindowSeconds)*time.Second)
		rateStore = memStore
	}

	var sink archive.Sink
	if cfg.ArchiveEnabled() {
		s3Sink, err := archive.NewS3Sink(archive.Config{
			Bucket:           cfg.ExportBucket,
			AccessKeyID:      cfg.ExportAccessKeyID,
			SecretAccessKey:  cfg.ExportSecretAccessKey,
			Endpoint:         cfg.ExportEndpoint,
			Region:           cfg.ExportRegion,
			URLExpiryMinutes: cfg.ExportURLExpiryMinutes,
		})
		if err != nil {
			return fmt.Errorf("failed to create export archive: %w", err)
		}
		sink = s3Sink
		healthConfig.ArchiveChecker = s3Sink
	}

	service := dashboard.NewService(dashboard.ServiceConfig{
		Repository:       dataset.NewPostgresRepository(db),
		Cache:            store,
		CacheTTL:         cfg.AdjudicationCacheTTL(),
		Archive:          sink,
		Logger:           logger,
		Metrics:          dashboardMetrics,
		AgreementMetrics: agreementMetrics,
	})

	deps := serverDeps{
		Logger:    logger,
		Dashboard: service,
		Health:    api.NewHealthHandlers(healthConfig),
		Registry:  reg,
		Metrics:   httpMetrics,

		RateLimitStore: rateStore,
		ExportRateLimit: middleware.RateLimitConfig{
			RequestsPerWindow: cfg.ExportRateLimitRequests,
			WindowDuration:    time.Duration(cfg.ExportRateLimitWindowSeconds) * time.Second,
		},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	if cfg.AuthEnabled() {
		deps.Validator = auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)
	} else {
		logger.Warn("JWT_SECRET not set, dashboard endpoints are unauthenticated")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newHandler(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Large exports are encoded in memory before the first byte.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serve(ctx, server, logger, 10*time.Second)
}

// serve runs server until ctx is done, then shuts it down within grace.
func serve(ctx context.Context, server *http.Server, logger *slog.Logger, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func openDB(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openRedis connects to Redis. An unreachable server is logged, not fatal:
// the cache and rate limiter degrade on their own.
func openRedis(ctx context.Context, url string, logger *slog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable at startup", "error", err)
	}
	return client, nil
}

// sweepRateLimits drops expired in-memory buckets until ctx is done.
func sweepRateLimits(ctx context.Context, store *middleware.InMemoryRateLimitStore, window time.Duration) {
	if window < time.Minute {
		window = time.Minute
	}
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Cleanup()
		}
	}
}

func logConfig(logger *slog.Logger, cfg *config.Config) {
	summary := cfg.LogSummary()
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]any, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, summary[k]))
	}
	logger.Info("configuration loaded", attrs...)
}
