// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

// Package main is the entry point for the komf daemon.
//
// Komf watches Komga and Kavita libraries for new books, matches each
// affected series against external metadata providers (MangaDex,
// MangaUpdates), and writes the merged metadata back to the media
// server. A small HTTP API exposes manual matching, provider search and
// job progress streams.
//
// # Startup order
//
//  1. Configuration: Koanf layered load (env > file > defaults)
//  2. Logging: zerolog, configured from the logging block
//  3. Database: DuckDB file for matches, thumbnails and job history
//  4. Provider cache: optional BadgerDB TTL cache
//  5. Providers, matcher, per-server metadata services
//  6. Event handlers: Komga SSE / Kavita SignalR subscriptions
//  7. HTTP API
//
// Components 5-7 run under a suture supervisor tree; the process shuts
// down gracefully on SIGINT and SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/komf-project/komf/internal/api"
	"github.com/komf-project/komf/internal/config"
	"github.com/komf-project/komf/internal/database"
	"github.com/komf-project/komf/internal/events"
	"github.com/komf-project/komf/internal/jobs"
	"github.com/komf-project/komf/internal/logging"
	"github.com/komf-project/komf/internal/mediaserver/kavita"
	"github.com/komf-project/komf/internal/mediaserver/komga"
	"github.com/komf-project/komf/internal/metadata"
	"github.com/komf-project/komf/internal/notifications"
	"github.com/komf-project/komf/internal/providers"
	"github.com/komf-project/komf/internal/providers/mangadex"
	"github.com/komf-project/komf/internal/providers/mangaupdates"
	"github.com/komf-project/komf/internal/providers/provcache"
	"github.com/komf-project/komf/internal/supervisor"
	"github.com/komf-project/komf/internal/throttle"
)

// version is set at build time via -ldflags.
var version = "dev"

const cacheGCInterval = 10 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to config file (overrides search paths)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("komf " + version)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	config.Store(cfg)

	logging.Info().
		Str("version", version).
		Bool("komga", cfg.Komga.Enabled).
		Bool("kavita", cfg.Kavita.Enabled).
		Str("db_path", cfg.Database.Path).
		Msg("Starting komf")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("komf exited with error")
	}
	logging.Info().Msg("Shutdown complete")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())

	var cache *provcache.Cache
	if cfg.Cache.Enabled {
		cache, err = provcache.Open(cfg.Cache.Path, cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("open provider cache: %w", err)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing provider cache")
			}
		}()
		tree.AddDataService(supervisor.NewCacheGCService(cache, cacheGCInterval))
	}

	registry := buildRegistry(&cfg.Providers, cache)
	if registry.Empty() {
		logging.Warn().Msg("No metadata providers enabled, syncs will find no matches")
	}
	matcher := providers.NewMatcher(cfg.Providers.NameMatchingMode)

	tracker := jobs.NewTracker(db, cfg.Server.JobEventBuffer)
	defer tracker.Stop()

	var notifier metadata.Notifier
	if svc := notifications.NewService(cfg.Notifications); svc.Enabled() {
		notifier = svc
	}

	services := make(map[string]*metadata.ServiceProvider)

	if cfg.Komga.Enabled {
		client := komga.NewClient(cfg.Komga.URL, cfg.Komga.User, cfg.Komga.Password)
		sp := metadata.NewServiceProvider(client, registry, matcher, db, db, tracker, notifier, cfg.Komga.Metadata)
		services["komga"] = sp

		if cfg.Komga.EventListener.Enabled {
			source := komga.NewEventSource(cfg.Komga.URL, cfg.Komga.User, cfg.Komga.Password, cfg.Komga.EventListener.Libraries)
			handler := events.NewHandler(source, db)
			handler.SetReconnectBackoff(cfg.Komga.EventListener.ReconnectBackoff)
			handler.Register(metadata.NewListener(sp))
			tree.AddEventService(supervisor.NewRunnerService("komga-events", handler))
		}
	}

	if cfg.Kavita.Enabled {
		client := kavita.NewClient(cfg.Kavita.URL, cfg.Kavita.APIKey)
		sp := metadata.NewServiceProvider(client, registry, matcher, db, db, tracker, notifier, cfg.Kavita.Metadata)
		services["kavita"] = sp

		if cfg.Kavita.EventListener.Enabled {
			source := kavita.NewEventSource(cfg.Kavita.URL, client, cfg.Kavita.EventListener.Libraries)
			handler := events.NewHandler(source, db)
			handler.SetReconnectBackoff(cfg.Kavita.EventListener.ReconnectBackoff)
			handler.Register(metadata.NewListener(sp))
			tree.AddEventService(supervisor.NewRunnerService("kavita-events", handler))
		}
	}

	if len(services) == 0 {
		logging.Warn().Msg("No media server enabled, only the HTTP API will run")
	}

	handlers := api.NewHandlers(tracker, services, db, version)
	server := api.NewServer(cfg.Server, api.NewRouter(cfg.Server, handlers))
	tree.AddAPIService(server)
	logging.Info().Str("addr", server.Addr()).Msg("HTTP API configured")

	err = tree.Serve(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}
	return nil
}

// buildRegistry constructs the enabled providers in priority order,
// each behind its configured throttle and, when available, the shared
// response cache.
func buildRegistry(cfg *config.ProvidersConfig, cache *provcache.Cache) *providers.Registry {
	var enabled []providers.Provider

	if cfg.MangaDex.Enabled {
		p := mangadex.NewProvider(mangadex.Options{
			Priority: cfg.MangaDex.Priority,
			Limiter:  buildLimiter(mangadex.ProviderName, cfg.MangaDex.Throttle),
		})
		enabled = append(enabled, configureProvider(p, cfg.MangaDex, cache))
	}
	if cfg.MangaUpdates.Enabled {
		p := mangaupdates.NewProvider(mangaupdates.Options{
			Priority: cfg.MangaUpdates.Priority,
			Limiter:  buildLimiter(mangaupdates.ProviderName, cfg.MangaUpdates.Throttle),
		})
		enabled = append(enabled, configureProvider(p, cfg.MangaUpdates, cache))
	}

	return providers.NewRegistry(enabled...)
}

// configureProvider applies the per-provider toggles and cache wrapping.
func configureProvider(p providers.Provider, cfg config.ProviderConfig, cache *provcache.Cache) providers.Provider {
	if cache != nil {
		p = provcache.Wrap(p, cache)
	}
	if !cfg.BookMetadata {
		p = providers.WithoutBookMetadata(p)
	}
	return p
}

// buildLimiter selects the limiter variant: smooth throttles pace
// permits evenly, interval throttles allow a full-budget burst per
// window with an optional warmup.
func buildLimiter(name string, cfg config.ThrottleConfig) throttle.Limiter {
	if cfg.Smooth {
		return throttle.NewRateLimiter(name, cfg.EventsPerInterval, cfg.Interval)
	}
	return throttle.NewIntervalLimiter(name, cfg.EventsPerInterval, cfg.Interval, cfg.Warmup)
}
