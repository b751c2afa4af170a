package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/kennel/pkg/app"
	"github.com/platinummonkey/kennel/pkg/config"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/seed"
)

func main() {
	dir := flag.String("dir", "seeds", "Directory of backend manifests (*.yaml)")
	watch := flag.Bool("watch", false, "Keep running and re-apply manifests when they change")
	debounce := flag.Duration("debounce", seed.DefaultDebounce, "Delay before applying a changed manifest")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, observability.NewLogger(cfg.Observability.LogLevel, os.Stderr), nil)
	if err != nil {
		log.Fatalf("Failed to open the engine: %v", err)
	}
	defer a.Close()

	loader := seed.NewLoader(log)
	applier := seed.NewApplier(a.Services.Backends, a.Services.Credentials, a.Services.Schemas, a.Services.Settings, log)

	manifests, err := loader.LoadDir(*dir)
	if err != nil {
		log.Fatalf("Failed to load manifests: %v", err)
	}
	results, err := applier.ApplyAll(ctx, manifests)
	for _, r := range results {
		log.WithFields(logrus.Fields{
			"backend":     r.BackendID,
			"created":     r.Created,
			"settings":    r.Settings,
			"schemas":     r.Schemas,
			"credentials": r.CredentialsCreated,
			"kept":        r.CredentialsKept,
		}).Info("Backend seeded")
	}
	if err != nil {
		log.Fatalf("Failed to apply manifests: %v", err)
	}
	if !*watch {
		return
	}

	log.Infof("Watching %s for manifest changes", *dir)
	watcher := seed.NewWatcher(loader, log, *debounce)
	err = watcher.Watch(ctx, *dir, func(ctx context.Context, m *seed.Manifest) error {
		_, err := applier.Apply(ctx, m)
		return err
	})
	if err != nil && ctx.Err() == nil {
		log.Fatalf("Watcher stopped: %v", err)
	}
}
