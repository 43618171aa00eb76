// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

/*
client.go - Komga REST API Client

This file implements a REST API client for the Komga media server.
It provides methods to fetch series and book data and to write
metadata and thumbnails back.

API Reference: https://komga.org/docs/api/rest
*/

package komga

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/komf-project/komf/internal/mediaserver"
)

// Ensure Client implements the media server interface
var _ mediaserver.Client = (*Client)(nil)

// Client provides access to the Komga REST API using basic auth.
type Client struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
}

// NewClient creates a new Komga API client.
//
// Parameters:
//   - baseURL: Komga server URL (e.g., http://localhost:25600)
//   - user, password: Komga account credentials
func NewClient(baseURL, user, password string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Client{
		baseURL:  baseURL,
		user:     user,
		password: password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Kind reports the server implementation.
func (c *Client) Kind() mediaserver.Kind { return mediaserver.KindKomga }

// komgaSeries mirrors the Komga series resource.
type komgaSeries struct {
	ID         string              `json:"id"`
	LibraryID  string              `json:"libraryId"`
	Name       string              `json:"name"`
	BooksCount int                 `json:"booksCount"`
	Metadata   komgaSeriesMetadata `json:"metadata"`
}

type komgaSeriesMetadata struct {
	Status           string                `json:"status"`
	Title            string                `json:"title"`
	TitleSort        string                `json:"titleSort"`
	Summary          string                `json:"summary"`
	Publisher        string                `json:"publisher"`
	ReadingDirection string                `json:"readingDirection"`
	AgeRating        *int                  `json:"ageRating"`
	Language         string                `json:"language"`
	Genres           []string              `json:"genres"`
	Tags             []string              `json:"tags"`
	TotalBookCount   *int                  `json:"totalBookCount"`
	AlternateTitles  []komgaAlternateTitle `json:"alternateTitles"`
	Links            []komgaWebLink        `json:"links"`

	StatusLock           bool `json:"statusLock"`
	TitleLock            bool `json:"titleLock"`
	TitleSortLock        bool `json:"titleSortLock"`
	SummaryLock          bool `json:"summaryLock"`
	PublisherLock        bool `json:"publisherLock"`
	ReadingDirectionLock bool `json:"readingDirectionLock"`
	AgeRatingLock        bool `json:"ageRatingLock"`
	LanguageLock         bool `json:"languageLock"`
	GenresLock           bool `json:"genresLock"`
	TagsLock             bool `json:"tagsLock"`
	TotalBookCountLock   bool `json:"totalBookCountLock"`
	LinksLock            bool `json:"linksLock"`
}

type komgaAlternateTitle struct {
	Label string `json:"label"`
	Title string `json:"title"`
}

type komgaWebLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type komgaBook struct {
	ID        string            `json:"id"`
	SeriesID  string            `json:"seriesId"`
	LibraryID string            `json:"libraryId"`
	Name      string            `json:"name"`
	Number    float64           `json:"number"`
	URL       string            `json:"url"`
	Metadata  komgaBookMetadata `json:"metadata"`
}

type komgaBookMetadata struct {
	Title       string         `json:"title"`
	Summary     string         `json:"summary"`
	Number      string         `json:"number"`
	NumberSort  *float64       `json:"numberSort"`
	ReleaseDate string         `json:"releaseDate"`
	Authors     []komgaAuthor  `json:"authors"`
	Tags        []string       `json:"tags"`
	ISBN        string         `json:"isbn"`
	Links       []komgaWebLink `json:"links"`

	TitleLock       bool `json:"titleLock"`
	SummaryLock     bool `json:"summaryLock"`
	NumberLock      bool `json:"numberLock"`
	NumberSortLock  bool `json:"numberSortLock"`
	ReleaseDateLock bool `json:"releaseDateLock"`
	AuthorsLock     bool `json:"authorsLock"`
	TagsLock        bool `json:"tagsLock"`
	ISBNLock        bool `json:"isbnLock"`
	LinksLock       bool `json:"linksLock"`
}

type komgaAuthor struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type komgaPage[T any] struct {
	Content []T  `json:"content"`
	Last    bool `json:"last"`
}

type komgaThumbnail struct {
	ID       string `json:"id"`
	Selected bool   `json:"selected"`
}

// GetSeries retrieves one series with its metadata and lock flags.
func (c *Client) GetSeries(ctx context.Context, seriesID string) (*mediaserver.Series, error) {
	var series komgaSeries
	if err := c.getJSON(ctx, "/api/v1/series/"+seriesID, &series); err != nil {
		return nil, fmt.Errorf("komga series request failed: %w", err)
	}
	return seriesFromKomga(&series), nil
}

// GetBooks retrieves all books of a series sorted by number.
func (c *Client) GetBooks(ctx context.Context, seriesID string) ([]mediaserver.Book, error) {
	var page komgaPage[komgaBook]
	endpoint := fmt.Sprintf("/api/v1/series/%s/books?unpaged=true&sort=metadata.numberSort,asc", seriesID)
	if err := c.getJSON(ctx, endpoint, &page); err != nil {
		return nil, fmt.Errorf("komga books request failed: %w", err)
	}

	books := make([]mediaserver.Book, 0, len(page.Content))
	for i := range page.Content {
		books = append(books, *bookFromKomga(&page.Content[i]))
	}
	return books, nil
}

// UpdateSeriesMetadata patches series metadata. Only fields present in the
// patch are written; Komga leaves absent fields untouched.
func (c *Client) UpdateSeriesMetadata(ctx context.Context, seriesID string, patch *mediaserver.SeriesMetadataUpdate) error {
	body := seriesPatchToKomga(patch)
	if err := c.patchJSON(ctx, "/api/v1/series/"+seriesID+"/metadata", body); err != nil {
		return fmt.Errorf("komga series metadata update failed: %w", err)
	}
	return nil
}

// UpdateBookMetadata patches book metadata.
func (c *Client) UpdateBookMetadata(ctx context.Context, bookID string, patch *mediaserver.BookMetadataUpdate) error {
	body := bookPatchToKomga(patch)
	if err := c.patchJSON(ctx, "/api/v1/books/"+bookID+"/metadata", body); err != nil {
		return fmt.Errorf("komga book metadata update failed: %w", err)
	}
	return nil
}

// ResetSeriesMetadata clears previously written metadata and releases all
// lock flags so the next library scan repopulates from file data.
func (c *Client) ResetSeriesMetadata(ctx context.Context, seriesID string) error {
	// Explicit nulls clear the fields on the Komga side.
	body := map[string]any{
		"status":           "ONGOING",
		"title":            nil,
		"titleSort":        nil,
		"summary":          "",
		"publisher":        "",
		"readingDirection": nil,
		"ageRating":        nil,
		"language":         "",
		"genres":           []string{},
		"tags":             []string{},
		"totalBookCount":   nil,
		"alternateTitles":  []komgaAlternateTitle{},
		"links":            []komgaWebLink{},

		"statusLock":           false,
		"titleLock":            false,
		"titleSortLock":        false,
		"summaryLock":          false,
		"publisherLock":        false,
		"readingDirectionLock": false,
		"ageRatingLock":        false,
		"languageLock":         false,
		"genresLock":           false,
		"tagsLock":             false,
		"totalBookCountLock":   false,
		"linksLock":            false,
	}
	if err := c.patchJSON(ctx, "/api/v1/series/"+seriesID+"/metadata", body); err != nil {
		return fmt.Errorf("komga series metadata reset failed: %w", err)
	}
	return nil
}

// GetSeriesThumbnails lists the thumbnails attached to a series.
func (c *Client) GetSeriesThumbnails(ctx context.Context, seriesID string) ([]mediaserver.Thumbnail, error) {
	return c.getThumbnails(ctx, "/api/v1/series/"+seriesID+"/thumbnails")
}

// UploadSeriesThumbnail uploads a cover image for a series.
func (c *Client) UploadSeriesThumbnail(ctx context.Context, seriesID string, image mediaserver.Image, selected bool) (*mediaserver.Thumbnail, error) {
	return c.uploadThumbnail(ctx, "/api/v1/series/"+seriesID+"/thumbnails", image, selected)
}

// DeleteSeriesThumbnail removes one series thumbnail.
func (c *Client) DeleteSeriesThumbnail(ctx context.Context, seriesID, thumbnailID string) error {
	return c.delete(ctx, fmt.Sprintf("/api/v1/series/%s/thumbnails/%s", seriesID, thumbnailID))
}

// UploadBookThumbnail uploads a cover image for a book.
func (c *Client) UploadBookThumbnail(ctx context.Context, bookID string, image mediaserver.Image, selected bool) (*mediaserver.Thumbnail, error) {
	return c.uploadThumbnail(ctx, "/api/v1/books/"+bookID+"/thumbnails", image, selected)
}

// DeleteBookThumbnail removes one book thumbnail.
func (c *Client) DeleteBookThumbnail(ctx context.Context, bookID, thumbnailID string) error {
	return c.delete(ctx, fmt.Sprintf("/api/v1/books/%s/thumbnails/%s", bookID, thumbnailID))
}

func (c *Client) getThumbnails(ctx context.Context, endpoint string) ([]mediaserver.Thumbnail, error) {
	var raw []komgaThumbnail
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("komga thumbnails request failed: %w", err)
	}
	thumbnails := make([]mediaserver.Thumbnail, 0, len(raw))
	for _, t := range raw {
		thumbnails = append(thumbnails, mediaserver.Thumbnail{ID: t.ID, Selected: t.Selected})
	}
	return thumbnails, nil
}

func (c *Client) uploadThumbnail(ctx context.Context, endpoint string, image mediaserver.Image, selected bool) (*mediaserver.Thumbnail, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "cover")
	if err != nil {
		return nil, fmt.Errorf("komga thumbnail form: %w", err)
	}
	if _, err := part.Write(image.Bytes); err != nil {
		return nil, fmt.Errorf("komga thumbnail form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("komga thumbnail form: %w", err)
	}

	url := fmt.Sprintf("%s%s?selected=%t", c.baseURL, endpoint, selected)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("komga thumbnail upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("komga thumbnail upload: %w", err)
	}

	var thumb komgaThumbnail
	if err := json.NewDecoder(resp.Body).Decode(&thumb); err != nil {
		return nil, fmt.Errorf("failed to decode komga thumbnail: %w", err)
	}
	return &mediaserver.Thumbnail{ID: thumb.ID, Selected: thumb.Selected}, nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// patchJSON performs an authenticated PATCH with a JSON body.
func (c *Client) patchJSON(ctx context.Context, endpoint string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return checkStatus(resp)
}

func (c *Client) delete(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("komga delete failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return checkStatus(resp)
}

// checkStatus maps HTTP errors to package errors, preserving the response
// body for diagnostics.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return mediaserver.ErrNotFound
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return fmt.Errorf("komga returned status %d (failed to read body)", resp.StatusCode)
		}
		return fmt.Errorf("komga returned status %d: %s", resp.StatusCode, string(body))
	}
}
