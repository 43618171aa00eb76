// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package provcache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/komf-project/komf/internal/providers"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	cache, err := OpenInMemory(ttl)
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestSearchRoundTrip(t *testing.T) {
	cache := newTestCache(t, time.Hour)

	if _, ok := cache.GetSearch("mangadex", "berserk"); ok {
		t.Error("empty cache should miss")
	}

	results := []providers.SearchResult{
		{Provider: "mangadex", SeriesID: "uuid-1", Title: "Berserk"},
		{Provider: "mangadex", SeriesID: "uuid-2", Title: "Berserk of Gluttony"},
	}
	if err := cache.PutSearch("mangadex", "berserk", results); err != nil {
		t.Fatalf("PutSearch: %v", err)
	}

	got, ok := cache.GetSearch("mangadex", "berserk")
	if !ok || len(got) != 2 || got[0].SeriesID != "uuid-1" {
		t.Errorf("GetSearch = %v %t", got, ok)
	}

	// Title lookup is case and whitespace insensitive.
	if _, ok := cache.GetSearch("mangadex", "  BERSERK "); !ok {
		t.Error("normalized title should hit")
	}
	// Keys are per provider.
	if _, ok := cache.GetSearch("mangaupdates", "berserk"); ok {
		t.Error("other provider must miss")
	}
}

func TestSeriesRoundTrip(t *testing.T) {
	cache := newTestCache(t, time.Hour)

	score := 8.7
	meta := &providers.SeriesMetadata{
		Provider:         "mangadex",
		ProviderSeriesID: "uuid-1",
		Title:            "Berserk",
		Genres:           []string{"Seinen"},
		Score:            &score,
	}
	if err := cache.PutSeries("mangadex", "uuid-1", meta); err != nil {
		t.Fatalf("PutSeries: %v", err)
	}

	got, ok := cache.GetSeries("mangadex", "uuid-1")
	if !ok {
		t.Fatal("GetSeries missed")
	}
	if got.Title != "Berserk" || got.Score == nil || *got.Score != 8.7 {
		t.Errorf("GetSeries = %+v", got)
	}
}

func TestEntriesExpire(t *testing.T) {
	cache := newTestCache(t, 50*time.Millisecond)

	if err := cache.PutSearch("mangadex", "x", []providers.SearchResult{{SeriesID: "1"}}); err != nil {
		t.Fatalf("PutSearch: %v", err)
	}
	time.Sleep(120 * time.Millisecond)

	if _, ok := cache.GetSearch("mangadex", "x"); ok {
		t.Error("entry should expire after TTL")
	}
}

type countingProvider struct {
	searches atomic.Int32
	fetches  atomic.Int32
}

func (p *countingProvider) Name() string  { return "counting" }
func (p *countingProvider) Priority() int { return 1 }

func (p *countingProvider) SearchSeries(context.Context, string) ([]providers.SearchResult, error) {
	p.searches.Add(1)
	return []providers.SearchResult{{Provider: "counting", SeriesID: "1", Title: "T"}}, nil
}

func (p *countingProvider) GetSeriesMetadata(context.Context, string) (*providers.SeriesMetadata, error) {
	p.fetches.Add(1)
	return &providers.SeriesMetadata{Provider: "counting", ProviderSeriesID: "1", Title: "T"}, nil
}

func (p *countingProvider) GetBookMetadata(context.Context, string) (map[string]providers.BookMetadata, error) {
	return nil, nil
}

func (p *countingProvider) GetCover(context.Context, string) (*providers.Image, error) {
	return nil, providers.ErrNoMatch
}

func TestCachedProviderReadThrough(t *testing.T) {
	cache := newTestCache(t, time.Hour)
	source := &countingProvider{}
	cached := Wrap(source, cache)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := cached.SearchSeries(ctx, "t"); err != nil {
			t.Fatalf("SearchSeries: %v", err)
		}
		if _, err := cached.GetSeriesMetadata(ctx, "1"); err != nil {
			t.Fatalf("GetSeriesMetadata: %v", err)
		}
	}

	if got := source.searches.Load(); got != 1 {
		t.Errorf("source searches = %d, want 1 (cached afterwards)", got)
	}
	if got := source.fetches.Load(); got != 1 {
		t.Errorf("source fetches = %d, want 1 (cached afterwards)", got)
	}
}
