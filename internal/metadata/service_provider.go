// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package metadata

import (
	"context"
	"sync"

	"github.com/komf-project/komf/internal/config"
	"github.com/komf-project/komf/internal/events"
	"github.com/komf-project/komf/internal/jobs"
	"github.com/komf-project/komf/internal/logging"
	"github.com/komf-project/komf/internal/mediaserver"
	"github.com/komf-project/komf/internal/providers"
)

// ServiceProvider resolves the synchronization service for a library.
// Libraries with a config override get their own service; everything
// else shares the default. Resolution is a pure lookup, built services
// are cached.
type ServiceProvider struct {
	client     mediaserver.Client
	registry   *providers.Registry
	matcher    *providers.Matcher
	matches    MatchStore
	thumbnails ThumbnailStore
	tracker    *jobs.Tracker
	notifier   Notifier
	updateCfg  config.MetadataUpdateConfig

	mu       sync.Mutex
	services map[string]*Service
}

// NewServiceProvider creates the per-library service resolver.
func NewServiceProvider(
	client mediaserver.Client,
	registry *providers.Registry,
	matcher *providers.Matcher,
	matches MatchStore,
	thumbnails ThumbnailStore,
	tracker *jobs.Tracker,
	notifier Notifier,
	updateCfg config.MetadataUpdateConfig,
) *ServiceProvider {
	return &ServiceProvider{
		client:     client,
		registry:   registry,
		matcher:    matcher,
		matches:    matches,
		thumbnails: thumbnails,
		tracker:    tracker,
		notifier:   notifier,
		updateCfg:  updateCfg,
		services:   make(map[string]*Service),
	}
}

// ServiceFor returns the service configured for libraryID, falling back
// to the default configuration when the library has no override.
func (sp *ServiceProvider) ServiceFor(libraryID string) *Service {
	key := ""
	if _, ok := sp.updateCfg.Libraries[libraryID]; ok {
		key = libraryID
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()
	if svc, ok := sp.services[key]; ok {
		return svc
	}

	cfg := sp.updateCfg.ForLibrary(key)
	updater := NewUpdater(sp.client, sp.thumbnails, cfg)
	svc := NewService(sp.client, sp.registry, sp.matcher, sp.matches, updater, sp.tracker)
	svc.SetNotifier(sp.notifier)
	sp.services[key] = svc
	return svc
}

// Listener adapts the service provider to the event handler: every
// series in a flushed batch gets a synchronization run through its
// library's service.
type Listener struct {
	provider *ServiceProvider
	name     string
}

// NewListener creates the batch listener for one media server.
func NewListener(provider *ServiceProvider) *Listener {
	return &Listener{
		provider: provider,
		name:     "metadata-" + string(provider.client.Kind()),
	}
}

// Name identifies the listener in logs and subscriptions.
func (l *Listener) Name() string { return l.name }

// HandleBatch starts one synchronization job per unique series in the
// batch. Failures are job-level; the batch itself never fails.
func (l *Listener) HandleBatch(ctx context.Context, batch *events.Batch) {
	for _, ref := range batch.SeriesToSync() {
		svc := l.provider.ServiceFor(ref.LibraryID)
		jobID, err := svc.SyncSeries(ctx, ref.SeriesID)
		if err != nil {
			logging.Error().Str("series_id", ref.SeriesID).Err(err).Msg("Failed to start sync job")
			continue
		}
		logging.Debug().Str("series_id", ref.SeriesID).Str("job_id", jobID).Msg("Sync job queued")
	}
}

// Ensure the listener satisfies the event handler contract
var _ events.Listener = (*Listener)(nil)
