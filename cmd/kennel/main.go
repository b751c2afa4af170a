package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/kennel/pkg/api"
	"github.com/platinummonkey/kennel/pkg/app"
	"github.com/platinummonkey/kennel/pkg/config"
	"github.com/platinummonkey/kennel/pkg/credentials"
	"github.com/platinummonkey/kennel/pkg/middleware"
	"github.com/platinummonkey/kennel/pkg/observability"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("kennel stopped")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otel, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	a, err := app.New(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}

	opts := api.Options{
		Version:               version,
		BaseDomain:            cfg.Server.BaseDomain,
		RestrictBackendCreate: cfg.Server.RestrictBackendCreate,
		CORSOrigins:           cfg.Server.CORSOrigins,
		MaxBodyBytes:          cfg.Server.MaxBodyBytes,
		ExportSink:            a.Sink,
		Logger:                logger,
		Metrics:               metrics,
	}
	if cfg.Server.RateLimitEnabled {
		opts.Limiter, opts.AuthenticatedLimiter, opts.LoginLimiter = limiters(ctx, a)
	}
	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(a.Services, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(version)
	if a.SQL != nil {
		health.RegisterDatabase(cfg.Engine.Type, a.SQL.DB())
	}
	if a.Redis != nil {
		health.RegisterRedis("redis", a.Redis.GetClient())
	}
	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, health)
	if metrics != nil {
		observability.RegisterMetricsEndpoint(healthRouter, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthRouter,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.Register("engine", func(context.Context) error { return a.Close() })
	shutdown.Register("notifications", a.Notifier.Wait)
	if otel != nil {
		shutdown.Register("otel", otel.Shutdown)
	}
	shutdown.Register("health server", healthServer.Shutdown)

	if cfg.Credentials.JanitorSchedule != "" {
		janitor := credentials.NewJanitor(a.Services.Credentials, cfg.Credentials.JanitorConcurrency, logger)
		if err := janitor.Start(cfg.Credentials.JanitorSchedule); err != nil {
			a.Close()
			return fmt.Errorf("failed to start the credentials janitor: %w", err)
		}
		shutdown.Register("janitor", func(context.Context) error {
			janitor.Stop()
			return nil
		})
		logger.WithField("schedule", cfg.Credentials.JanitorSchedule).Info("credentials janitor started")
	}

	serveErr := make(chan error, 2)
	go serve(healthServer, logger.WithField("listener", "health"), serveErr)
	go serve(server, logger.WithField("listener", "api"), serveErr)
	logger.WithFields(map[string]interface{}{
		"addr":    server.Addr,
		"engine":  cfg.Engine.Type,
		"version": version,
	}).Info("kennel started")

	go func() {
		if err := <-serveErr; err != nil {
			logger.WithError(err).Error("listener failed")
			cancel()
		}
	}()
	return shutdown.WaitForSignal(ctx)
}

func serve(s *http.Server, logger *observability.Logger, errCh chan<- error) {
	logger.Infof("listening on %s", s.Addr)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- err
	}
}

// limiters shares buckets through Redis when available
func limiters(ctx context.Context, a *app.App) (anonymous, authenticated, login middleware.Limiter) {
	if a.Redis != nil {
		client := a.Redis.GetClient()
		return middleware.NewDistributedRateLimiter(client, middleware.DefaultRateLimitConfig(), "kennel:ratelimit:anon:"),
			middleware.NewDistributedRateLimiter(client, middleware.PerCredentialsRateLimitConfig(), "kennel:ratelimit:auth:"),
			middleware.NewDistributedRateLimiter(client, middleware.LoginRateLimitConfig(), "kennel:ratelimit:login:")
	}
	anon := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	auth := middleware.NewRateLimiter(middleware.PerCredentialsRateLimitConfig())
	lg := middleware.NewRateLimiter(middleware.LoginRateLimitConfig())
	for _, rl := range []*middleware.RateLimiter{anon, auth, lg} {
		rl.StartCleanup(ctx)
	}
	return anon, auth, lg
}
