// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package provcache

import (
	"context"

	"github.com/komf-project/komf/internal/logging"
	"github.com/komf-project/komf/internal/providers"
)

// Ensure the decorator satisfies the provider contract
var _ providers.Provider = (*CachedProvider)(nil)

// CachedProvider decorates a provider with read-through caching for
// searches and series documents. Covers and book documents always go to
// the source: covers are large blobs and book lists change often.
type CachedProvider struct {
	source providers.Provider
	cache  *Cache
}

// Wrap decorates a provider with the cache.
func Wrap(source providers.Provider, cache *Cache) *CachedProvider {
	return &CachedProvider{source: source, cache: cache}
}

func (p *CachedProvider) Name() string  { return p.source.Name() }
func (p *CachedProvider) Priority() int { return p.source.Priority() }

func (p *CachedProvider) SearchSeries(ctx context.Context, title string) ([]providers.SearchResult, error) {
	if results, ok := p.cache.GetSearch(p.source.Name(), title); ok {
		return results, nil
	}
	results, err := p.source.SearchSeries(ctx, title)
	if err != nil {
		return nil, err
	}
	if err := p.cache.PutSearch(p.source.Name(), title, results); err != nil {
		logging.Warn().Err(err).Str("provider", p.source.Name()).Msg("search cache write failed")
	}
	return results, nil
}

func (p *CachedProvider) GetSeriesMetadata(ctx context.Context, providerSeriesID string) (*providers.SeriesMetadata, error) {
	if meta, ok := p.cache.GetSeries(p.source.Name(), providerSeriesID); ok {
		return meta, nil
	}
	meta, err := p.source.GetSeriesMetadata(ctx, providerSeriesID)
	if err != nil {
		return nil, err
	}
	if err := p.cache.PutSeries(p.source.Name(), providerSeriesID, meta); err != nil {
		logging.Warn().Err(err).Str("provider", p.source.Name()).Msg("series cache write failed")
	}
	return meta, nil
}

func (p *CachedProvider) GetBookMetadata(ctx context.Context, providerSeriesID string) (map[string]providers.BookMetadata, error) {
	return p.source.GetBookMetadata(ctx, providerSeriesID)
}

func (p *CachedProvider) GetCover(ctx context.Context, providerSeriesID string) (*providers.Image, error) {
	return p.source.GetCover(ctx, providerSeriesID)
}
