// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

/*
client.go - MangaUpdates Metadata Provider

This file implements the MangaUpdates metadata provider against the v1
JSON API. Search is a POST with a JSON body, series lookup is a plain
GET. Titles and descriptions come back HTML-entity encoded and are
unescaped before they reach the rest of the pipeline.

API Reference: https://api.mangaupdates.com/
*/

package mangaupdates

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/komf-project/komf/internal/metrics"
	"github.com/komf-project/komf/internal/providers"
	"github.com/komf-project/komf/internal/throttle"
)

const (
	// ProviderName is the stable identifier used in config and storage.
	ProviderName = "mangaupdates"

	defaultAPIURL = "https://api.mangaupdates.com"

	searchPerPage = 20
)

// Ensure Provider implements the provider contract
var _ providers.Provider = (*Provider)(nil)

// Provider is the MangaUpdates client.
type Provider struct {
	apiURL   string
	priority int

	limiter    throttle.Limiter
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	httpClient *http.Client
}

// Options configures the provider.
type Options struct {
	Priority int
	Limiter  throttle.Limiter

	// APIURL overrides the public host, used in tests.
	APIURL string
}

// NewProvider creates a MangaUpdates provider.
func NewProvider(opts Options) *Provider {
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	return &Provider{
		apiURL:   apiURL,
		priority: opts.Priority,
		limiter:  opts.Limiter,
		breaker:  providers.NewBreaker(ProviderName),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name identifies the provider.
func (p *Provider) Name() string { return ProviderName }

// Priority orders the provider during aggregation.
func (p *Provider) Priority() int { return p.priority }

// SearchSeries posts a search query and maps the hit records.
func (p *Provider) SearchSeries(ctx context.Context, title string) ([]providers.SearchResult, error) {
	start := time.Now()
	body := map[string]any{
		"search":  title,
		"page":    1,
		"perpage": searchPerPage,
	}

	var response searchResponse
	err := p.doJSON(ctx, http.MethodPost, "/v1/series/search", body, &response)
	metrics.ObserveProviderRequest(ProviderName, "search", start, err)
	if err != nil {
		return nil, fmt.Errorf("mangaupdates search failed: %w", err)
	}

	results := make([]providers.SearchResult, 0, len(response.Results))
	for i := range response.Results {
		results = append(results, *searchResultFromRecord(&response.Results[i].Record))
	}
	return results, nil
}

// GetSeriesMetadata fetches one series record.
func (p *Provider) GetSeriesMetadata(ctx context.Context, providerSeriesID string) (*providers.SeriesMetadata, error) {
	start := time.Now()

	var record seriesRecord
	err := p.doJSON(ctx, http.MethodGet, "/v1/series/"+providerSeriesID, nil, &record)
	metrics.ObserveProviderRequest(ProviderName, "series", start, err)
	if err != nil {
		return nil, fmt.Errorf("mangaupdates series request failed: %w", err)
	}
	return seriesMetadataFromRecord(&record), nil
}

// GetBookMetadata returns nothing; MangaUpdates has no per-volume data.
func (p *Provider) GetBookMetadata(_ context.Context, _ string) (map[string]providers.BookMetadata, error) {
	return map[string]providers.BookMetadata{}, nil
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

// doJSON performs one throttled, breaker-guarded API call.
func (p *Provider) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	if _, err := p.limiter.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("mangaupdates throttle: %w", err)
	}

	resp, err := p.breaker.Execute(func() (*http.Response, error) {
		var reader io.Reader = http.NoBody
		if body != nil {
			payload, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request: %w", err)
			}
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, p.apiURL+endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("mangaupdates returned status %d", resp.StatusCode)
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
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("mangaupdates returned status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// download fetches a cover image.
func (p *Provider) download(ctx context.Context, coverURL string) (*providers.Image, error) {
	if _, err := p.limiter.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("mangaupdates throttle: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mangaupdates cover download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mangaupdates cover returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, fmt.Errorf("mangaupdates cover read failed: %w", err)
	}
	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return &providers.Image{Bytes: data, MediaType: mediaType}, nil
}

// --- wire types ---

type searchResponse struct {
	Results []struct {
		Record seriesRecord `json:"record"`
	} `json:"results"`
}

type seriesRecord struct {
	SeriesID       int64       `json:"series_id"`
	Title          string      `json:"title"`
	URL            string      `json:"url"`
	Description    string      `json:"description"`
	Year           string      `json:"year"`
	BayesianRating float64     `json:"bayesian_rating"`
	Status         string      `json:"status"`
	Completed      bool        `json:"completed"`
	Image          recordImage `json:"image"`
	Associated     []struct {
		Title string `json:"title"`
	} `json:"associated"`
	Genres []struct {
		Genre string `json:"genre"`
	} `json:"genres"`
	Categories []struct {
		Category string `json:"category"`
	} `json:"categories"`
	Authors []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"authors"`
	Publishers []struct {
		PublisherName string `json:"publisher_name"`
		Type          string `json:"type"`
	} `json:"publishers"`
}

type recordImage struct {
	URL struct {
		Original string `json:"original"`
	} `json:"url"`
}

// --- mapping ---

func searchResultFromRecord(r *seriesRecord) *providers.SearchResult {
	result := &providers.SearchResult{
		Provider: ProviderName,
		SeriesID: strconv.FormatInt(r.SeriesID, 10),
		Title:    html.UnescapeString(r.Title),
		URL:      r.URL,
		CoverURL: r.Image.URL.Original,
	}
	for _, assoc := range r.Associated {
		result.AlternateTitles = append(result.AlternateTitles, html.UnescapeString(assoc.Title))
	}
	return result
}

func seriesMetadataFromRecord(r *seriesRecord) *providers.SeriesMetadata {
	meta := &providers.SeriesMetadata{
		Provider:         ProviderName,
		ProviderSeriesID: strconv.FormatInt(r.SeriesID, 10),
		Title:            html.UnescapeString(r.Title),
		Summary:          html.UnescapeString(stripBBCode(r.Description)),
		Status:           statusFromRecord(r),
		CoverURL:         r.Image.URL.Original,
	}

	if r.URL != "" {
		meta.Links = []providers.WebLink{{Label: "MangaUpdates", URL: r.URL}}
	}
	if year := parseYear(r.Year); year > 0 {
		meta.ReleaseYear = year
	}
	if r.BayesianRating > 0 {
		score := r.BayesianRating
		meta.Score = &score
	}

	for _, assoc := range r.Associated {
		meta.AlternateTitles = append(meta.AlternateTitles, providers.AlternateTitle{
			Title: html.UnescapeString(assoc.Title),
		})
	}
	for _, g := range r.Genres {
		meta.Genres = append(meta.Genres, g.Genre)
	}
	for _, c := range r.Categories {
		meta.Tags = append(meta.Tags, c.Category)
	}
	for _, a := range r.Authors {
		meta.Authors = append(meta.Authors, providers.Author{
			Name: a.Name,
			Role: roleFromAuthorType(a.Type),
		})
	}
	for _, pub := range r.Publishers {
		if pub.Type == "Original" {
			meta.Publisher = pub.PublisherName
			break
		}
	}
	return meta
}

// statusFromRecord reads the free-form status line. The field mixes
// publication state with volume counts ("41 Volumes (Ongoing)") so only
// the parenthesized keyword is trusted.
func statusFromRecord(r *seriesRecord) string {
	status := strings.ToLower(r.Status)
	switch {
	case strings.Contains(status, "complete"):
		return "ENDED"
	case strings.Contains(status, "hiatus"):
		return "HIATUS"
	case strings.Contains(status, "cancelled"), strings.Contains(status, "discontinued"):
		return "ABANDONED"
	case strings.Contains(status, "ongoing"):
		return "ONGOING"
	case r.Completed:
		return "ENDED"
	default:
		return ""
	}
}

func roleFromAuthorType(authorType string) string {
	if strings.EqualFold(authorType, "artist") {
		return "penciller"
	}
	return "writer"
}

// parseYear handles both "1989" and range forms like "1989-2021".
func parseYear(year string) int {
	if idx := strings.IndexByte(year, '-'); idx > 0 {
		year = year[:idx]
	}
	n, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return 0
	}
	return n
}

// stripBBCode drops the [url]/[b]/[i] markup MangaUpdates embeds in
// descriptions.
func stripBBCode(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	depth := 0
	for _, r := range text {
		switch {
		case r == '[':
			depth++
		case r == ']':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
