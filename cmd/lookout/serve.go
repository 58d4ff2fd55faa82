package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/lookout/internal/api"
	"github.com/mattjoyce/lookout/internal/auth"
	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/config"
	"github.com/mattjoyce/lookout/internal/events"
	"github.com/mattjoyce/lookout/internal/lock"
	"github.com/mattjoyce/lookout/internal/log"
	"github.com/mattjoyce/lookout/internal/storage"
	"github.com/mattjoyce/lookout/internal/webhook"
)

const eventBufferSize = 256

func runServe(args []string) int {
	fs := newFlagSet("serve")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	cfg, err := loadConfig(*configPath, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logger := log.WithComponent("main")
	logger.Info("lookout starting", "version", version, "config", cfg.SourcePath)

	pidLock, err := lock.AcquirePIDLock(cfg.Catalog.LockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.Catalog.LockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenSQLite(ctx, cfg.Catalog.Path)
	if err != nil {
		logger.Error("failed to open catalog", "path", cfg.Catalog.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("catalog opened", "path", cfg.Catalog.Path)

	store := catalog.NewStore(db)
	hub := events.NewHub(eventBufferSize)

	if _, err := importSeeds(ctx, store, cfg.Catalog.Seeds, logger); err != nil {
		// Bad seed files are skipped; the rest of the catalog is still served.
		logger.Error("some seeds failed to import", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Catalog.Watch && len(cfg.Catalog.Seeds) > 0 {
		w, err := catalog.NewWatcher(store, cfg.Catalog.Seeds, catalog.OnChange(func(r catalog.ImportReport) {
			publishChange(hub, r)
		}))
		if err != nil {
			logger.Error("failed to start seed watcher", "error", err)
			return 1
		}
		g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				return fmt.Errorf("watcher: %w", err)
			}
			return nil
		})
		logger.Info("watching seeds", "patterns", cfg.Catalog.Seeds)
	}

	server := api.New(apiConfig(cfg), store, hub, log.WithComponent("api"))
	g.Go(func() error {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("api: %w", err)
		}
		return nil
	})

	if len(cfg.Webhooks.Endpoints) > 0 {
		webhookConfig, err := webhook.FromConfig(cfg.Webhooks)
		if err != nil {
			logger.Error("failed to configure webhooks", "error", err)
			return 1
		}
		webhookServer := webhook.New(webhookConfig, store, hub, log.WithComponent("webhook"))
		g.Go(func() error {
			if err := webhookServer.Start(ctx); err != nil {
				return fmt.Errorf("webhook: %w", err)
			}
			return nil
		})
		logger.Info("webhook server enabled", "listen", webhookConfig.Listen, "endpoints", len(webhookConfig.Endpoints))
	}

	logger.Info("lookout running (press Ctrl+C to stop)", "listen", cfg.API.Listen)
	if err := g.Wait(); err != nil {
		logger.Error("component failed", "error", err)
		return 1
	}
	logger.Info("lookout stopped")
	return 0
}

func apiConfig(cfg *config.Config) api.Config {
	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return api.Config{
		Listen:       cfg.API.Listen,
		APIKey:       cfg.API.Auth.APIKey,
		Tokens:       tokens,
		AuthDisabled: cfg.API.Auth.Disabled,
	}
}

// importSeeds imports every file matching patterns, logging one line per source.
func importSeeds(ctx context.Context, store *catalog.Store, patterns []string, logger *slog.Logger) ([]catalog.ImportReport, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	paths, err := catalog.DiscoverSeeds(patterns)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		logger.Warn("no seed files matched", "patterns", patterns)
		return nil, nil
	}
	reports, err := store.ImportFiles(ctx, paths)
	for _, r := range reports {
		log.WithSource(r.Source).Info("seed imported",
			"path", r.Origin,
			"added", r.Added,
			"updated", r.Updated,
			"unchanged", r.Unchanged,
			"removed", r.Removed,
		)
	}
	return reports, err
}

// publishChange announces a watcher-driven catalog change to subscribers.
func publishChange(hub *events.Hub, r catalog.ImportReport) {
	if r.Source == "" {
		hub.Publish(events.TypeCatalogRemoved, r)
		return
	}
	hub.Publish(events.TypeCatalogImported, r)
}
