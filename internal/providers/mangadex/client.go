// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

/*
client.go - MangaDex Metadata Provider

This file implements the MangaDex metadata provider. Every outbound call
goes through the provider's rate limiter and circuit breaker; series
covers are resolved through the cover_art relationship and downloaded
from the uploads host.

API Reference: https://api.mangadex.org/docs/
*/

package mangadex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/komf-project/komf/internal/metrics"
	"github.com/komf-project/komf/internal/providers"
	"github.com/komf-project/komf/internal/throttle"
)

const (
	// ProviderName is the stable identifier used in config and storage.
	ProviderName = "mangadex"

	defaultAPIURL     = "https://api.mangadex.org"
	defaultUploadsURL = "https://uploads.mangadex.org"

	searchLimit = 20
)

// Ensure Provider implements the provider contract
var _ providers.Provider = (*Provider)(nil)

// Provider is the MangaDex client.
type Provider struct {
	apiURL     string
	uploadsURL string
	priority   int

	limiter    throttle.Limiter
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	httpClient *http.Client
}

// Options configures the provider.
type Options struct {
	Priority int
	Limiter  throttle.Limiter

	// APIURL and UploadsURL override the public hosts, used in tests.
	APIURL     string
	UploadsURL string
}

// NewProvider creates a MangaDex provider.
func NewProvider(opts Options) *Provider {
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	uploadsURL := opts.UploadsURL
	if uploadsURL == "" {
		uploadsURL = defaultUploadsURL
	}

	return &Provider{
		apiURL:     apiURL,
		uploadsURL: uploadsURL,
		priority:   opts.Priority,
		limiter:    opts.Limiter,
		breaker:    providers.NewBreaker(ProviderName),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name identifies the provider.
func (p *Provider) Name() string { return ProviderName }

// Priority orders the provider during aggregation.
func (p *Provider) Priority() int { return p.priority }

// SearchSeries queries the manga list endpoint with cover art included.
func (p *Provider) SearchSeries(ctx context.Context, title string) ([]providers.SearchResult, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("/manga?title=%s&limit=%d&includes[]=cover_art&order[relevance]=desc",
		url.QueryEscape(title), searchLimit)

	var list mangaList
	err := p.getJSON(ctx, endpoint, &list)
	metrics.ObserveProviderRequest(ProviderName, "search", start, err)
	if err != nil {
		return nil, fmt.Errorf("mangadex search failed: %w", err)
	}

	results := make([]providers.SearchResult, 0, len(list.Data))
	for i := range list.Data {
		results = append(results, *searchResultFromManga(&list.Data[i], p.uploadsURL))
	}
	return results, nil
}

// GetSeriesMetadata fetches one manga with authors and cover art, plus its
// statistics for the score field.
func (p *Provider) GetSeriesMetadata(ctx context.Context, providerSeriesID string) (*providers.SeriesMetadata, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("/manga/%s?includes[]=author&includes[]=artist&includes[]=cover_art", providerSeriesID)

	var single mangaSingle
	err := p.getJSON(ctx, endpoint, &single)
	metrics.ObserveProviderRequest(ProviderName, "series", start, err)
	if err != nil {
		return nil, fmt.Errorf("mangadex manga request failed: %w", err)
	}

	meta := seriesMetadataFromManga(&single.Data, p.uploadsURL)

	// Statistics are best-effort; a missing rating never fails the fetch.
	if score, err := p.getScore(ctx, providerSeriesID); err == nil && score > 0 {
		meta.Score = &score
	}
	return meta, nil
}

// GetBookMetadata maps per-volume covers onto book numbers.
func (p *Provider) GetBookMetadata(ctx context.Context, providerSeriesID string) (map[string]providers.BookMetadata, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("/cover?manga[]=%s&limit=100&order[volume]=asc", providerSeriesID)

	var list coverList
	err := p.getJSON(ctx, endpoint, &list)
	metrics.ObserveProviderRequest(ProviderName, "books", start, err)
	if err != nil {
		return nil, fmt.Errorf("mangadex covers request failed: %w", err)
	}

	books := make(map[string]providers.BookMetadata, len(list.Data))
	for _, cover := range list.Data {
		volume := cover.Attributes.Volume
		if volume == "" {
			continue
		}
		books[volume] = providers.BookMetadata{
			Number:   volume,
			CoverURL: coverURL(p.uploadsURL, providerSeriesID, cover.Attributes.FileName),
		}
	}
	return books, nil
}

// GetCover downloads the series cover image.
func (p *Provider) GetCover(ctx context.Context, providerSeriesID string) (*providers.Image, error) {
	meta, err := p.GetSeriesMetadata(ctx, providerSeriesID)
	if err != nil {
		return nil, err
	}
	if meta.CoverURL == "" {
		return nil, providers.ErrNoMatch
	}

	start := time.Now()
	image, err := p.download(ctx, meta.CoverURL)
	metrics.ObserveProviderRequest(ProviderName, "cover", start, err)
	return image, err
}

func (p *Provider) getScore(ctx context.Context, providerSeriesID string) (float64, error) {
	var stats statisticsResponse
	if err := p.getJSON(ctx, "/statistics/manga/"+providerSeriesID, &stats); err != nil {
		return 0, err
	}
	if s, ok := stats.Statistics[providerSeriesID]; ok {
		return s.Rating.Bayesian, nil
	}
	return 0, nil
}

// getJSON performs one throttled, breaker-guarded GET.
func (p *Provider) getJSON(ctx context.Context, endpoint string, out any) error {
	if _, err := p.limiter.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("mangadex throttle: %w", err)
	}

	resp, err := p.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+endpoint, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("mangadex returned status %d", resp.StatusCode)
		}
		return resp, nil
	})
	providers.ObserveBreakerResult(ProviderName, err)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return providers.ErrNoMatch
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("mangadex returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// download fetches a cover image from the uploads host.
func (p *Provider) download(ctx context.Context, coverURL string) (*providers.Image, error) {
	if _, err := p.limiter.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("mangadex throttle: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mangadex cover download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mangadex cover returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, fmt.Errorf("mangadex cover read failed: %w", err)
	}
	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return &providers.Image{Bytes: data, MediaType: mediaType}, nil
}

// --- wire types ---

type mangaList struct {
	Data []manga `json:"data"`
}

type mangaSingle struct {
	Data manga `json:"data"`
}

type manga struct {
	ID            string          `json:"id"`
	Attributes    mangaAttributes `json:"attributes"`
	Relationships []relationship  `json:"relationships"`
}

type mangaAttributes struct {
	Title                  map[string]string   `json:"title"`
	AltTitles              []map[string]string `json:"altTitles"`
	Description            map[string]string   `json:"description"`
	Status                 string              `json:"status"`
	Year                   int                 `json:"year"`
	ContentRating          string              `json:"contentRating"`
	OriginalLanguage       string              `json:"originalLanguage"`
	LastVolume             string              `json:"lastVolume"`
	PublicationDemographic string              `json:"publicationDemographic"`
	Tags                   []mangaTag          `json:"tags"`
	Links                  map[string]string   `json:"links"`
}

type mangaTag struct {
	Attributes struct {
		Name  map[string]string `json:"name"`
		Group string            `json:"group"`
	} `json:"attributes"`
}

type relationship struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name     string `json:"name"`
		FileName string `json:"fileName"`
	} `json:"attributes"`
}

type coverList struct {
	Data []struct {
		Attributes struct {
			Volume   string `json:"volume"`
			FileName string `json:"fileName"`
		} `json:"attributes"`
	} `json:"data"`
}

type statisticsResponse struct {
	Statistics map[string]struct {
		Rating struct {
			Bayesian float64 `json:"bayesian"`
		} `json:"rating"`
	} `json:"statistics"`
}

// --- mapping ---

func searchResultFromManga(m *manga, uploadsURL string) *providers.SearchResult {
	result := &providers.SearchResult{
		Provider: ProviderName,
		SeriesID: m.ID,
		Title:    primaryTitle(&m.Attributes),
		URL:      "https://mangadex.org/title/" + m.ID,
	}
	for _, alt := range m.Attributes.AltTitles {
		for _, title := range alt {
			result.AlternateTitles = append(result.AlternateTitles, title)
		}
	}
	if fileName := coverFileName(m.Relationships); fileName != "" {
		result.CoverURL = coverURL(uploadsURL, m.ID, fileName)
	}
	return result
}

func seriesMetadataFromManga(m *manga, uploadsURL string) *providers.SeriesMetadata {
	attrs := &m.Attributes

	meta := &providers.SeriesMetadata{
		Provider:         ProviderName,
		ProviderSeriesID: m.ID,
		Title:            primaryTitle(attrs),
		Summary:          pickLocalized(attrs.Description, "en"),
		Status:           statusFromMangaDex(attrs.Status),
		Language:         attrs.OriginalLanguage,
		ReleaseYear:      attrs.Year,
		AgeRating:        ageRatingFromContentRating(attrs.ContentRating),
		Links: []providers.WebLink{
			{Label: "MangaDex", URL: "https://mangadex.org/title/" + m.ID},
		},
	}

	for _, alt := range attrs.AltTitles {
		for lang, title := range alt {
			meta.AlternateTitles = append(meta.AlternateTitles, providers.AlternateTitle{
				Language: lang,
				Title:    title,
			})
		}
	}

	for _, tag := range attrs.Tags {
		name := pickLocalized(tag.Attributes.Name, "en")
		if name == "" {
			continue
		}
		if tag.Attributes.Group == "genre" {
			meta.Genres = append(meta.Genres, name)
		} else {
			meta.Tags = append(meta.Tags, name)
		}
	}

	for _, rel := range m.Relationships {
		switch rel.Type {
		case "author":
			meta.Authors = append(meta.Authors, providers.Author{Name: rel.Attributes.Name, Role: "writer"})
		case "artist":
			meta.Authors = append(meta.Authors, providers.Author{Name: rel.Attributes.Name, Role: "penciller"})
		}
	}

	if fileName := coverFileName(m.Relationships); fileName != "" {
		meta.CoverURL = coverURL(uploadsURL, m.ID, fileName)
	}

	if attrs.LastVolume != "" {
		if count, err := strconv.Atoi(attrs.LastVolume); err == nil && count > 0 {
			meta.TotalBookCount = &count
		}
	}
	return meta
}

func primaryTitle(attrs *mangaAttributes) string {
	if title := pickLocalized(attrs.Title, "en"); title != "" {
		return title
	}
	for _, title := range attrs.Title {
		return title
	}
	return ""
}

func pickLocalized(values map[string]string, lang string) string {
	if v, ok := values[lang]; ok {
		return v
	}
	return ""
}

func coverFileName(relationships []relationship) string {
	for _, rel := range relationships {
		if rel.Type == "cover_art" && rel.Attributes.FileName != "" {
			return rel.Attributes.FileName
		}
	}
	return ""
}

func coverURL(uploadsURL, mangaID, fileName string) string {
	return fmt.Sprintf("%s/covers/%s/%s", uploadsURL, mangaID, fileName)
}

func statusFromMangaDex(status string) string {
	switch status {
	case "completed":
		return "ENDED"
	case "hiatus":
		return "HIATUS"
	case "cancelled":
		return "ABANDONED"
	case "ongoing":
		return "ONGOING"
	default:
		return ""
	}
}

// ageRatingFromContentRating maps MangaDex content ratings onto minimum
// ages the media servers understand.
func ageRatingFromContentRating(rating string) *int {
	var age int
	switch rating {
	case "suggestive":
		age = 13
	case "erotica":
		age = 15
	case "pornographic":
		age = 18
	default:
		return nil
	}
	return &age
}
