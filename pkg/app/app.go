// Package app wires the engine, caches and domain services from a
// configuration. Both the server and the seed tool start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/kennel/pkg/acl"
	"github.com/platinummonkey/kennel/pkg/api"
	"github.com/platinummonkey/kennel/pkg/backend"
	"github.com/platinummonkey/kennel/pkg/config"
	"github.com/platinummonkey/kennel/pkg/credentials"
	"github.com/platinummonkey/kennel/pkg/data"
	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/engine/memory"
	"github.com/platinummonkey/kennel/pkg/engine/sqlstore"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/schema"
	"github.com/platinummonkey/kennel/pkg/settings"
	"github.com/platinummonkey/kennel/pkg/storage"
)

// App holds the wired dependencies of a process
type App struct {
	Engine   engine.Engine
	Services api.Services
	// SQL is set for SQL engines
	SQL *sqlstore.Engine
	// Redis is set when a Redis URL is configured
	Redis *storage.RedisClient
	// Sink receives exports written to object storage
	Sink storage.Sink
	// Notifier delivers password reset codes in the background
	Notifier *credentials.AsyncNotifier
}

// notifyTimeout bounds one password reset delivery
const notifyTimeout = 30 * time.Second

// OpenEngine opens the configured engine wrapped with metrics and timeouts
func OpenEngine(ctx context.Context, cfg config.EngineConfig, metrics *observability.Metrics) (engine.Engine, *sqlstore.Engine, error) {
	switch cfg.Type {
	case config.EngineMemory:
		return engine.Instrument(memory.New(), cfg.Type, cfg.Timeout, metrics), nil, nil
	case config.EngineSQLite, config.EnginePostgres:
		e, err := sqlstore.Open(ctx, sqlstore.Config{
			Driver:          cfg.Type,
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnectTimeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return engine.Instrument(e, cfg.Type, cfg.Timeout, metrics), e, nil
	default:
		return nil, nil, fmt.Errorf("unsupported engine %q", cfg.Type)
	}
}

// New opens every configured dependency and creates the domain services.
// The root backend and its superdog are created when credentials for it are
// configured.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*App, error) {
	e, sqlEngine, err := OpenEngine(ctx, cfg.Engine, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	a := &App{Engine: e, SQL: sqlEngine}

	if cfg.Storage.RedisURL != "" {
		a.Redis, err = storage.NewRedisClient(ctx, cfg.Storage)
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("redis settings cache enabled")
	}

	if cfg.Storage.S3Bucket != "" {
		a.Sink, err = storage.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		logger.WithField("bucket", cfg.Storage.S3Bucket).Info("exports go to S3")
	} else if cfg.Storage.ExportDir != "" {
		a.Sink, err = storage.NewFileSink(cfg.Storage.ExportDir)
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.WithField("dir", cfg.Storage.ExportDir).Info("exports go to the filesystem")
	}

	st := settings.NewStore(e, settings.Options{
		CacheTTL: cfg.Storage.TTL("settings"),
		Redis:    a.Redis,
		Metrics:  metrics,
	})
	a.Notifier = credentials.NewAsyncNotifier(credentials.NewLogNotifier(logger), logger, notifyTimeout)
	creds := credentials.NewService(e, st, credentials.Options{
		RootTenant: cfg.Credentials.RootTenant,
		Notifier:   a.Notifier,
		Metrics:    metrics,
	})
	schemas := schema.NewRegistry(e, st)
	a.Services = api.Services{
		Backends:    backend.NewService(e, creds, st, metrics),
		Credentials: creds,
		Schemas:     schemas,
		Settings:    st,
		Data:        data.NewStore(e, schemas, acl.NewEvaluator(st), data.Options{}),
	}

	if cfg.Credentials.SuperdogUsername != "" {
		dog, err := a.Services.Backends.EnsureRoot(ctx, credentials.CreateRequest{
			Username: cfg.Credentials.SuperdogUsername,
			Password: cfg.Credentials.SuperdogPassword,
			Email:    cfg.Credentials.SuperdogEmail,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create the root backend: %w", err)
		}
		if dog != nil {
			logger.WithField("backend", cfg.Credentials.RootTenant).Info("root backend created")
		}
	}
	return a, nil
}

// Close releases the engine and the cache connections
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.Engine != nil {
		if err := a.Engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("engine: %w", err))
		}
	}
	return errors.Join(errs...)
}
