// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

/*
service.go - Series Matching and Synchronization

MetadataService drives one synchronization run: fetch the series from
the media server, resolve a provider match (stored pin first, then
search), aggregate metadata across providers by priority, persist the
winning match, and hand the merged document to the updater.

Runs for the same series are serialized through a per-series lock so
overlapping event flushes do not issue duplicate provider calls.
Provider failures are partial: one failing provider is recorded as a
job event and the remaining providers still run.
*/

package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/komf-project/komf/internal/jobs"
	"github.com/komf-project/komf/internal/logging"
	"github.com/komf-project/komf/internal/mediaserver"
	"github.com/komf-project/komf/internal/models"
	"github.com/komf-project/komf/internal/notifications"
	"github.com/komf-project/komf/internal/providers"
)

// MatchStore persists provider match pins.
type MatchStore interface {
	StoreMatch(ctx context.Context, match *models.SeriesMatch) error
	GetMatch(ctx context.Context, server, seriesID string) (*models.SeriesMatch, error)
}

// Notifier is told about successful synchronization runs.
type Notifier interface {
	NotifySeriesUpdated(ctx context.Context, update *notifications.SeriesUpdate)
}

// ErrProviderDisabled is returned when a manual match names a provider
// that is not registered (disabled or unknown).
var ErrProviderDisabled = errors.New("provider not registered")

// Service synchronizes metadata for series on one media server with one
// processing configuration.
type Service struct {
	client   mediaserver.Client
	registry *providers.Registry
	matcher  *providers.Matcher
	matches  MatchStore
	updater  *Updater
	merger   *Merger
	tracker  *jobs.Tracker
	notifier Notifier

	aggregate bool

	mu       sync.Mutex
	runLocks map[string]*seriesLock
}

type seriesLock struct {
	mu   sync.Mutex
	refs int
}

// NewService assembles a synchronization service.
func NewService(
	client mediaserver.Client,
	registry *providers.Registry,
	matcher *providers.Matcher,
	matches MatchStore,
	updater *Updater,
	tracker *jobs.Tracker,
) *Service {
	return &Service{
		client:    client,
		registry:  registry,
		matcher:   matcher,
		matches:   matches,
		updater:   updater,
		merger:    NewMerger(updater.cfg),
		tracker:   tracker,
		aggregate: updater.cfg.Aggregate,
		runLocks:  make(map[string]*seriesLock),
	}
}

// SyncSeries starts an asynchronous synchronization run and returns its
// job id.
func (s *Service) SyncSeries(ctx context.Context, seriesID string) (string, error) {
	return s.tracker.Track(ctx, seriesID, func(runCtx context.Context, emit func(jobs.Event)) error {
		return s.runSync(runCtx, seriesID, nil, emit)
	})
}

// MatchSeriesWith pins the series to a specific provider result and
// starts a synchronization run using that pin.
func (s *Service) MatchSeriesWith(ctx context.Context, seriesID, provider, providerSeriesID string) (string, error) {
	if _, ok := s.registry.Get(provider); !ok {
		return "", fmt.Errorf("%w: %s", ErrProviderDisabled, provider)
	}

	pin := &models.SeriesMatch{
		Server:           string(s.client.Kind()),
		SeriesID:         seriesID,
		Provider:         provider,
		ProviderSeriesID: providerSeriesID,
	}
	if err := s.matches.StoreMatch(ctx, pin); err != nil {
		return "", err
	}

	return s.tracker.Track(ctx, seriesID, func(runCtx context.Context, emit func(jobs.Event)) error {
		return s.runSync(runCtx, seriesID, pin, emit)
	})
}

// SearchSeries runs a title search across all registered providers.
// Provider failures drop that provider's results; the search itself
// only fails when the title is empty.
func (s *Service) SearchSeries(ctx context.Context, title string) ([]providers.SearchResult, error) {
	if title == "" {
		return nil, errors.New("search title must not be empty")
	}

	var results []providers.SearchResult
	for _, p := range s.registry.All() {
		found, err := p.SearchSeries(ctx, title)
		if err != nil {
			logging.Warn().Str("provider", p.Name()).Err(err).Msg("Search failed")
			continue
		}
		results = append(results, found...)
	}
	return results, nil
}

// providerResult is one provider's contribution to a run.
type providerResult struct {
	provider providers.Provider
	meta     *providers.SeriesMetadata
}

func (s *Service) runSync(ctx context.Context, seriesID string, pin *models.SeriesMatch, emit func(jobs.Event)) error {
	unlock := s.lockSeries(seriesID)
	defer unlock()

	series, err := s.client.GetSeries(ctx, seriesID)
	if err != nil {
		return fmt.Errorf("failed to fetch series: %w", err)
	}

	if pin == nil {
		pin = s.storedMatch(ctx, seriesID)
	}

	results := s.resolveMetadata(ctx, series, pin, emit)
	if len(results) == 0 {
		logging.Info().Str("series_id", seriesID).Str("title", series.Name).Msg("No provider match")
		return nil
	}

	winner := results[0]
	if err := s.matches.StoreMatch(ctx, &models.SeriesMatch{
		Server:           string(s.client.Kind()),
		SeriesID:         seriesID,
		Provider:         winner.provider.Name(),
		ProviderSeriesID: winner.meta.ProviderSeriesID,
	}); err != nil {
		logging.Warn().Str("series_id", seriesID).Err(err).Msg("Failed to persist match")
	}

	metas := make([]*providers.SeriesMetadata, 0, len(results))
	bookMetas := make([]map[string]providers.BookMetadata, 0, len(results))
	for _, r := range results {
		metas = append(metas, r.meta)
		books, err := r.provider.GetBookMetadata(ctx, r.meta.ProviderSeriesID)
		if err != nil {
			emit(jobs.Event{Type: jobs.EventProviderError, Provider: r.provider.Name(), SeriesID: seriesID, Message: err.Error()})
			continue
		}
		for number := range books {
			emit(jobs.Event{Type: jobs.EventProviderBook, Provider: r.provider.Name(), SeriesID: seriesID, BookID: number})
		}
		bookMetas = append(bookMetas, books)
	}

	merged := s.merger.Merge(metas)
	mergedBooks := s.merger.MergeBooks(bookMetas)

	var cover *providers.Image
	if s.updater.cfg.SeriesCovers && merged.CoverURL != "" {
		cover, err = winner.provider.GetCover(ctx, winner.meta.ProviderSeriesID)
		if err != nil {
			emit(jobs.Event{Type: jobs.EventProviderError, Provider: winner.provider.Name(), SeriesID: seriesID, Message: err.Error()})
			cover = nil
		}
	}

	books, err := s.client.GetBooks(ctx, seriesID)
	if err != nil {
		return fmt.Errorf("failed to fetch books: %w", err)
	}

	emit(jobs.Event{Type: jobs.EventPostProcessingStart, SeriesID: seriesID})
	if err := s.updater.Update(ctx, series, books, merged, mergedBooks, cover, emit); err != nil {
		return err
	}
	s.notify(ctx, series, merged, len(books))
	return nil
}

// SetNotifier attaches a post-run notifier. Nil disables notifications.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *Service) notify(ctx context.Context, series *mediaserver.Series, merged *providers.SeriesMetadata, bookCount int) {
	if s.notifier == nil {
		return
	}
	update := &notifications.SeriesUpdate{
		Server:    string(s.client.Kind()),
		SeriesID:  series.ID,
		Title:     merged.Title,
		Provider:  merged.Provider,
		CoverURL:  merged.CoverURL,
		BookCount: bookCount,
		Summary:   merged.Summary,
	}
	if update.Title == "" {
		update.Title = series.Name
	}
	if len(merged.Links) > 0 {
		update.WebURL = merged.Links[0].URL
	}
	s.notifier.NotifySeriesUpdated(ctx, update)
}

// resolveMetadata collects provider metadata in priority order. A pin
// restricts the run to the pinned provider; otherwise providers are
// searched until the first match (or all of them when aggregating).
func (s *Service) resolveMetadata(ctx context.Context, series *mediaserver.Series, pin *models.SeriesMatch, emit func(jobs.Event)) []providerResult {
	if pin != nil {
		if p, ok := s.registry.Get(pin.Provider); ok {
			meta, err := p.GetSeriesMetadata(ctx, pin.ProviderSeriesID)
			if err == nil {
				emit(jobs.Event{Type: jobs.EventProviderSeries, Provider: p.Name(), SeriesID: series.ID})
				emit(jobs.Event{Type: jobs.EventProviderCompleted, Provider: p.Name(), SeriesID: series.ID})
				return []providerResult{{provider: p, meta: meta}}
			}
			emit(jobs.Event{Type: jobs.EventProviderError, Provider: p.Name(), SeriesID: series.ID, Message: err.Error()})
		}
		// A dead pin falls back to a fresh search.
	}

	var results []providerResult
	for _, p := range s.registry.All() {
		meta, err := s.matchWithProvider(ctx, p, series)
		switch {
		case err != nil:
			emit(jobs.Event{Type: jobs.EventProviderError, Provider: p.Name(), SeriesID: series.ID, Message: err.Error()})
			continue
		case meta == nil:
			emit(jobs.Event{Type: jobs.EventProviderCompleted, Provider: p.Name(), SeriesID: series.ID})
			continue
		}

		emit(jobs.Event{Type: jobs.EventProviderSeries, Provider: p.Name(), SeriesID: series.ID})
		emit(jobs.Event{Type: jobs.EventProviderCompleted, Provider: p.Name(), SeriesID: series.ID})
		results = append(results, providerResult{provider: p, meta: meta})

		if !s.aggregate {
			break
		}
	}
	return results
}

// matchWithProvider searches one provider and fetches metadata for the
// matching result. A nil return with nil error means no match.
func (s *Service) matchWithProvider(ctx context.Context, p providers.Provider, series *mediaserver.Series) (*providers.SeriesMetadata, error) {
	found, err := p.SearchSeries(ctx, series.Name)
	if err != nil {
		if errors.Is(err, providers.ErrNoMatch) {
			return nil, nil
		}
		return nil, err
	}

	match, ok := s.matcher.Match(series.Name, found)
	if !ok {
		return nil, nil
	}
	return p.GetSeriesMetadata(ctx, match.SeriesID)
}

func (s *Service) storedMatch(ctx context.Context, seriesID string) *models.SeriesMatch {
	match, err := s.matches.GetMatch(ctx, string(s.client.Kind()), seriesID)
	if err != nil {
		return nil
	}
	return match
}

// lockSeries serializes runs per series id. The entry is reference
// counted so the map does not grow with every series ever synced.
func (s *Service) lockSeries(seriesID string) func() {
	s.mu.Lock()
	l, ok := s.runLocks[seriesID]
	if !ok {
		l = &seriesLock{}
		s.runLocks[seriesID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.runLocks, seriesID)
		}
		s.mu.Unlock()
	}
}
