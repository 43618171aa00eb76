// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

// Package providers defines the external metadata source boundary: the
// provider-side metadata model, the Provider interface each source
// implements, and the priority-ordered registry the synchronization core
// iterates during matching and aggregation.
package providers

import (
	"context"
	"errors"
	"sort"
)

// ErrNoMatch is returned when a provider cannot match a series.
var ErrNoMatch = errors.New("providers: no match")

// SearchResult is one candidate from a provider title search.
type SearchResult struct {
	Provider        string   `json:"provider"`
	SeriesID        string   `json:"seriesId"`
	Title           string   `json:"title"`
	AlternateTitles []string `json:"alternateTitles,omitempty"`
	URL             string   `json:"url,omitempty"`
	CoverURL        string   `json:"coverUrl,omitempty"`
}

// AlternateTitle is a localized secondary title.
type AlternateTitle struct {
	Language string `json:"language"`
	Title    string `json:"title"`
}

// Author is a creator credit with a normalized role.
type Author struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// WebLink is an external reference reported by a provider.
type WebLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// SeriesMetadata is the provider-side series document, already normalized
// to the engine's vocabulary (status strings, BCP 47 languages).
type SeriesMetadata struct {
	Provider        string           `json:"provider"`
	ProviderSeriesID string          `json:"providerSeriesId"`
	Title           string           `json:"title"`
	AlternateTitles []AlternateTitle `json:"alternateTitles,omitempty"`
	Summary         string           `json:"summary,omitempty"`
	Status          string           `json:"status,omitempty"`
	Genres          []string         `json:"genres,omitempty"`
	Tags            []string         `json:"tags,omitempty"`
	Authors         []Author         `json:"authors,omitempty"`
	Publisher       string           `json:"publisher,omitempty"`
	AgeRating       *int             `json:"ageRating,omitempty"`
	Language        string           `json:"language,omitempty"`
	ReleaseYear     int              `json:"releaseYear,omitempty"`
	TotalBookCount  *int             `json:"totalBookCount,omitempty"`
	Score           *float64         `json:"score,omitempty"`
	Links           []WebLink        `json:"links,omitempty"`
	CoverURL        string           `json:"coverUrl,omitempty"`
}

// BookMetadata is the provider-side document for one volume/chapter.
type BookMetadata struct {
	Title       string   `json:"title,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Number      string   `json:"number,omitempty"`
	ReleaseDate string   `json:"releaseDate,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CoverURL    string   `json:"coverUrl,omitempty"`
}

// Image is a downloaded cover payload.
type Image struct {
	Bytes     []byte
	MediaType string
}

// Provider is one external metadata source. Implementations rate limit
// and instrument their own calls; all methods honor ctx cancellation.
type Provider interface {
	// Name is the stable provider identifier used in config and storage.
	Name() string

	// Priority orders providers during aggregation; lower wins.
	Priority() int

	// SearchSeries returns ranked candidates for a title.
	SearchSeries(ctx context.Context, title string) ([]SearchResult, error)

	// GetSeriesMetadata fetches the full document for a provider series id.
	GetSeriesMetadata(ctx context.Context, providerSeriesID string) (*SeriesMetadata, error)

	// GetBookMetadata fetches per-book documents keyed by book number.
	// Providers without book-level data return an empty map.
	GetBookMetadata(ctx context.Context, providerSeriesID string) (map[string]BookMetadata, error)

	// GetCover downloads the series cover image.
	GetCover(ctx context.Context, providerSeriesID string) (*Image, error)
}

// Registry holds the enabled providers in priority order.
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry sorted by ascending priority. Order among
// equal priorities follows registration order.
func NewRegistry(providers ...Provider) *Registry {
	sorted := make([]Provider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &Registry{providers: sorted}
}

// All returns the providers in priority order.
func (r *Registry) All() []Provider {
	return r.providers
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	for _, p := range r.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Empty reports whether no providers are enabled.
func (r *Registry) Empty() bool {
	return len(r.providers) == 0
}

// noBooksProvider suppresses a provider's book-level contributions.
type noBooksProvider struct {
	Provider
}

func (p noBooksProvider) GetBookMetadata(context.Context, string) (map[string]BookMetadata, error) {
	return map[string]BookMetadata{}, nil
}

// WithoutBookMetadata wraps p so it contributes series metadata only.
// Used when a provider's book-level data is disabled in configuration.
func WithoutBookMetadata(p Provider) Provider {
	return noBooksProvider{Provider: p}
}
