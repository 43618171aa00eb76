// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package mangadex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/komf-project/komf/internal/providers"
	"github.com/komf-project/komf/internal/throttle"
)

// countingLimiter grants immediately and counts acquisitions.
type countingLimiter struct {
	acquires atomic.Int64
}

func (l *countingLimiter) Acquire(context.Context, int) (time.Duration, error) {
	l.acquires.Add(1)
	return 0, nil
}

func (l *countingLimiter) TryAcquire(int, time.Duration) bool { l.acquires.Add(1); return true }
func (l *countingLimiter) Stats() map[throttle.Kind]int64     { return nil }
func (l *countingLimiter) ResetStats()                        {}

const searchResponse = `{
	"data": [
		{
			"id": "uuid-1",
			"attributes": {
				"title": {"en": "Berserk"},
				"altTitles": [{"ja": "ベルセルク"}],
				"description": {"en": "dark fantasy"},
				"status": "hiatus",
				"year": 1989,
				"contentRating": "erotica",
				"originalLanguage": "ja",
				"tags": [
					{"attributes": {"name": {"en": "Action"}, "group": "genre"}},
					{"attributes": {"name": {"en": "Gore"}, "group": "content"}}
				]
			},
			"relationships": [
				{"id": "c-1", "type": "cover_art", "attributes": {"fileName": "cover.jpg"}}
			]
		}
	]
}`

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*Provider, *countingLimiter, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	limiter := &countingLimiter{}
	provider := NewProvider(Options{
		Priority:   10,
		Limiter:    limiter,
		APIURL:     server.URL,
		UploadsURL: server.URL,
	})
	return provider, limiter, server
}

func TestSearchSeries(t *testing.T) {
	provider, limiter, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/manga" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("title"); got != "berserk" {
			t.Errorf("title = %q", got)
		}
		_, _ = w.Write([]byte(searchResponse))
	})

	results, err := provider.SearchSeries(context.Background(), "berserk")
	if err != nil {
		t.Fatalf("SearchSeries: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if r.SeriesID != "uuid-1" || r.Title != "Berserk" || r.Provider != ProviderName {
		t.Errorf("result = %+v", r)
	}
	if len(r.AlternateTitles) != 1 || r.AlternateTitles[0] != "ベルセルク" {
		t.Errorf("alt titles = %v", r.AlternateTitles)
	}
	if r.CoverURL == "" {
		t.Error("cover url missing")
	}
	if limiter.acquires.Load() != 1 {
		t.Errorf("limiter acquires = %d, want 1", limiter.acquires.Load())
	}
}

func TestGetSeriesMetadataMapping(t *testing.T) {
	provider, _, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/manga/uuid-1":
			_, _ = w.Write([]byte(`{
				"data": {
					"id": "uuid-1",
					"attributes": {
						"title": {"en": "Berserk"},
						"description": {"en": "dark fantasy"},
						"status": "hiatus",
						"year": 1989,
						"contentRating": "erotica",
						"originalLanguage": "ja",
						"lastVolume": "41",
						"tags": [
							{"attributes": {"name": {"en": "Action"}, "group": "genre"}},
							{"attributes": {"name": {"en": "Gore"}, "group": "content"}}
						]
					},
					"relationships": [
						{"id": "a-1", "type": "author", "attributes": {"name": "Kentaro Miura"}},
						{"id": "c-1", "type": "cover_art", "attributes": {"fileName": "cover.jpg"}}
					]
				}
			}`))
		case "/statistics/manga/uuid-1":
			_, _ = w.Write([]byte(`{"statistics": {"uuid-1": {"rating": {"bayesian": 9.4}}}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	meta, err := provider.GetSeriesMetadata(context.Background(), "uuid-1")
	if err != nil {
		t.Fatalf("GetSeriesMetadata: %v", err)
	}

	if meta.Title != "Berserk" || meta.Status != "HIATUS" || meta.Language != "ja" {
		t.Errorf("meta = %+v", meta)
	}
	if meta.ReleaseYear != 1989 {
		t.Errorf("year = %d", meta.ReleaseYear)
	}
	if len(meta.Genres) != 1 || meta.Genres[0] != "Action" {
		t.Errorf("genres = %v", meta.Genres)
	}
	if len(meta.Tags) != 1 || meta.Tags[0] != "Gore" {
		t.Errorf("tags = %v", meta.Tags)
	}
	if len(meta.Authors) != 1 || meta.Authors[0].Role != "writer" {
		t.Errorf("authors = %v", meta.Authors)
	}
	if meta.AgeRating == nil || *meta.AgeRating != 15 {
		t.Errorf("age rating = %v", meta.AgeRating)
	}
	if meta.TotalBookCount == nil || *meta.TotalBookCount != 41 {
		t.Errorf("total book count = %v", meta.TotalBookCount)
	}
	if meta.Score == nil || *meta.Score != 9.4 {
		t.Errorf("score = %v", meta.Score)
	}
}

func TestGetSeriesMetadataToleratesStatisticsFailure(t *testing.T) {
	provider, _, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/manga/uuid-1":
			_, _ = w.Write([]byte(`{"data": {"id": "uuid-1", "attributes": {"title": {"en": "T"}}}}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})

	meta, err := provider.GetSeriesMetadata(context.Background(), "uuid-1")
	if err != nil {
		t.Fatalf("GetSeriesMetadata: %v", err)
	}
	if meta.Score != nil {
		t.Errorf("score = %v, want nil when statistics fail", meta.Score)
	}
}

func TestGetBookMetadataKeysByVolume(t *testing.T) {
	provider, _, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cover" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"data": [
				{"attributes": {"volume": "1", "fileName": "v1.jpg"}},
				{"attributes": {"volume": "2", "fileName": "v2.jpg"}},
				{"attributes": {"volume": "", "fileName": "nv.jpg"}}
			]
		}`))
	})

	books, err := provider.GetBookMetadata(context.Background(), "uuid-1")
	if err != nil {
		t.Fatalf("GetBookMetadata: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("got %d books, want 2 (no-volume cover skipped)", len(books))
	}
	if books["1"].CoverURL == "" || books["2"].Number != "2" {
		t.Errorf("books = %v", books)
	}
}

func TestNotFoundMapsToNoMatch(t *testing.T) {
	provider, _, _ := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := provider.GetSeriesMetadata(context.Background(), "missing")
	if !errors.Is(err, providers.ErrNoMatch) {
		t.Fatalf("err = %v, want ErrNoMatch", err)
	}
}

func TestLimiterGatesEveryCall(t *testing.T) {
	provider, limiter, _ := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data": []}`))
	})

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := provider.SearchSeries(ctx, "q"); err != nil {
			t.Fatalf("SearchSeries: %v", err)
		}
	}
	if got := limiter.acquires.Load(); got != 4 {
		t.Errorf("acquires = %d, want one per call", got)
	}
}

func TestLimiterCancellationAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("request must not reach the server when the limiter rejects")
	}))
	defer server.Close()

	provider := NewProvider(Options{
		Limiter: blockedLimiter{},
		APIURL:  server.URL,
	})
	if _, err := provider.SearchSeries(context.Background(), "q"); err == nil {
		t.Error("want throttle error")
	}
}

type blockedLimiter struct{}

func (blockedLimiter) Acquire(ctx context.Context, _ int) (time.Duration, error) {
	return 0, context.Canceled
}
func (blockedLimiter) TryAcquire(int, time.Duration) bool { return false }
func (blockedLimiter) Stats() map[throttle.Kind]int64     { return nil }
func (blockedLimiter) ResetStats()                        {}
