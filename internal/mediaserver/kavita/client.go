// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

/*
client.go - Kavita REST API Client

This file implements a REST API client for the Kavita media server.
Kavita authenticates plugins with an API key exchanged for a short-lived
JWT; the client refreshes the token transparently on 401 responses.

Kavita metadata updates are whole-object writes, so metadata write-backs
are read-modify-write: fetch the current document, apply the patch,
POST the result.

API Reference: https://www.kavitareader.com/docs/api
*/

package kavita

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/komf-project/komf/internal/mediaserver"
)

// Ensure Client implements the media server interface
var _ mediaserver.Client = (*Client)(nil)

// Client provides access to the Kavita REST API.
type Client struct {
	baseURL string
	apiKey  string

	tokenMu sync.Mutex
	token   string

	httpClient *http.Client
}

// NewClient creates a new Kavita API client.
//
// Parameters:
//   - baseURL: Kavita server URL (e.g., http://localhost:5000)
//   - apiKey: API key from the Kavita user settings (3rd Party Clients)
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Kind reports the server implementation.
func (c *Client) Kind() mediaserver.Kind { return mediaserver.KindKavita }

type kavitaAuthResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Token returns a valid JWT, authenticating on first use. Exposed for the
// WebSocket event source, which shares the same auth handshake.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	return c.refreshTokenLocked(ctx)
}

func (c *Client) refreshTokenLocked(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("%s/api/Plugin/authenticate?apiKey=%s&pluginName=komf", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("kavita authenticate failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("kavita authenticate returned status %d", resp.StatusCode)
	}

	var auth kavitaAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", fmt.Errorf("failed to decode kavita auth response: %w", err)
	}
	c.token = auth.Token
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenMu.Unlock()
}

// GetSeries retrieves one series with its metadata and lock flags.
func (c *Client) GetSeries(ctx context.Context, seriesID string) (*mediaserver.Series, error) {
	id, err := parseID(seriesID)
	if err != nil {
		return nil, err
	}

	var series kavitaSeries
	if err := c.getJSON(ctx, fmt.Sprintf("/api/Series/%d", id), &series); err != nil {
		return nil, fmt.Errorf("kavita series request failed: %w", err)
	}

	var meta kavitaSeriesMetadata
	if err := c.getJSON(ctx, fmt.Sprintf("/api/series/metadata?seriesId=%d", id), &meta); err != nil {
		return nil, fmt.Errorf("kavita series metadata request failed: %w", err)
	}

	return seriesFromKavita(&series, &meta), nil
}

// GetBooks retrieves all chapters of a series flattened across volumes.
func (c *Client) GetBooks(ctx context.Context, seriesID string) ([]mediaserver.Book, error) {
	id, err := parseID(seriesID)
	if err != nil {
		return nil, err
	}

	var volumes []kavitaVolume
	if err := c.getJSON(ctx, fmt.Sprintf("/api/Series/volumes?seriesId=%d", id), &volumes); err != nil {
		return nil, fmt.Errorf("kavita volumes request failed: %w", err)
	}

	var books []mediaserver.Book
	for i := range volumes {
		for j := range volumes[i].Chapters {
			books = append(books, *bookFromKavita(seriesID, &volumes[i], &volumes[i].Chapters[j]))
		}
	}
	return books, nil
}

// UpdateSeriesMetadata applies a partial update. Kavita's metadata endpoint
// replaces the whole document, so the current state is fetched first and
// only the patched fields change.
func (c *Client) UpdateSeriesMetadata(ctx context.Context, seriesID string, patch *mediaserver.SeriesMetadataUpdate) error {
	id, err := parseID(seriesID)
	if err != nil {
		return err
	}

	var meta kavitaSeriesMetadata
	if err := c.getJSON(ctx, fmt.Sprintf("/api/series/metadata?seriesId=%d", id), &meta); err != nil {
		return fmt.Errorf("kavita series metadata request failed: %w", err)
	}

	applySeriesPatch(&meta, patch)

	body := map[string]any{"seriesMetadata": &meta}
	if err := c.postJSON(ctx, "/api/series/metadata", body, nil); err != nil {
		return fmt.Errorf("kavita series metadata update failed: %w", err)
	}

	// Title lives on the series resource, not the metadata document.
	if patch.Title != nil {
		update := map[string]any{
			"id":         id,
			"name":       *patch.Title,
			"sortName":   valueOr(patch.TitleSort, *patch.Title),
			"nameLocked": patch.LockAll,
		}
		if err := c.postJSON(ctx, "/api/series/update", update, nil); err != nil {
			return fmt.Errorf("kavita series update failed: %w", err)
		}
	}
	return nil
}

// UpdateBookMetadata applies a partial chapter update via read-modify-write.
func (c *Client) UpdateBookMetadata(ctx context.Context, bookID string, patch *mediaserver.BookMetadataUpdate) error {
	id, err := parseID(bookID)
	if err != nil {
		return err
	}

	var chapter kavitaChapterDetail
	if err := c.getJSON(ctx, fmt.Sprintf("/api/chapter?chapterId=%d", id), &chapter); err != nil {
		return fmt.Errorf("kavita chapter request failed: %w", err)
	}

	applyBookPatch(&chapter, patch)

	if err := c.postJSON(ctx, "/api/chapter/update", &chapter, nil); err != nil {
		return fmt.Errorf("kavita chapter update failed: %w", err)
	}
	return nil
}

// ResetSeriesMetadata clears written metadata and releases all lock flags.
func (c *Client) ResetSeriesMetadata(ctx context.Context, seriesID string) error {
	id, err := parseID(seriesID)
	if err != nil {
		return err
	}

	var meta kavitaSeriesMetadata
	if err := c.getJSON(ctx, fmt.Sprintf("/api/series/metadata?seriesId=%d", id), &meta); err != nil {
		return fmt.Errorf("kavita series metadata request failed: %w", err)
	}

	clearMetadata(&meta)

	body := map[string]any{"seriesMetadata": &meta}
	if err := c.postJSON(ctx, "/api/series/metadata", body, nil); err != nil {
		return fmt.Errorf("kavita series metadata reset failed: %w", err)
	}
	return nil
}

// GetSeriesThumbnails reports the cover state. Kavita keeps one cover per
// series with no separate thumbnail ids, so the list is always empty and
// uploads simply replace the cover.
func (c *Client) GetSeriesThumbnails(_ context.Context, _ string) ([]mediaserver.Thumbnail, error) {
	return nil, nil
}

// UploadSeriesThumbnail replaces the series cover with the given image.
func (c *Client) UploadSeriesThumbnail(ctx context.Context, seriesID string, image mediaserver.Image, _ bool) (*mediaserver.Thumbnail, error) {
	id, err := parseID(seriesID)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"id":            id,
		"url":           base64.StdEncoding.EncodeToString(image.Bytes),
		"lockCover":     true,
		"clearFirst":    false,
		"isUrlEncoded":  false,
		"convertToWebP": false,
	}
	if err := c.postJSON(ctx, "/api/upload/series", body, nil); err != nil {
		return nil, fmt.Errorf("kavita series cover upload failed: %w", err)
	}
	return &mediaserver.Thumbnail{ID: seriesID, Selected: true}, nil
}

// DeleteSeriesThumbnail resets the series cover to the file-derived one.
func (c *Client) DeleteSeriesThumbnail(ctx context.Context, seriesID, _ string) error {
	id, err := parseID(seriesID)
	if err != nil {
		return err
	}
	body := map[string]any{"seriesId": id}
	if err := c.postJSON(ctx, "/api/upload/reset-series-cover", body, nil); err != nil {
		return fmt.Errorf("kavita series cover reset failed: %w", err)
	}
	return nil
}

// UploadBookThumbnail replaces one chapter cover.
func (c *Client) UploadBookThumbnail(ctx context.Context, bookID string, image mediaserver.Image, _ bool) (*mediaserver.Thumbnail, error) {
	id, err := parseID(bookID)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"id":        id,
		"url":       base64.StdEncoding.EncodeToString(image.Bytes),
		"lockCover": true,
	}
	if err := c.postJSON(ctx, "/api/upload/chapter", body, nil); err != nil {
		return nil, fmt.Errorf("kavita chapter cover upload failed: %w", err)
	}
	return &mediaserver.Thumbnail{ID: bookID, Selected: true}, nil
}

// DeleteBookThumbnail resets one chapter cover.
func (c *Client) DeleteBookThumbnail(ctx context.Context, bookID, _ string) error {
	id, err := parseID(bookID)
	if err != nil {
		return err
	}
	body := map[string]any{"chapterId": id}
	if err := c.postJSON(ctx, "/api/upload/reset-chapter-cover", body, nil); err != nil {
		return fmt.Errorf("kavita chapter cover reset failed: %w", err)
	}
	return nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	return c.doJSON(ctx, http.MethodGet, endpoint, nil, out)
}

// postJSON performs an authenticated POST with a JSON body.
func (c *Client) postJSON(ctx context.Context, endpoint string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, endpoint, body, out)
}

// doJSON performs one authenticated request, refreshing the JWT and
// retrying once on 401.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.Token(ctx)
		if err != nil {
			return err
		}

		var reader io.Reader = http.NoBody
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			_ = resp.Body.Close()
			c.invalidateToken()
			continue
		}

		err = decodeResponse(resp, out)
		_ = resp.Body.Close()
		return err
	}
	return fmt.Errorf("kavita request failed after token refresh")
}

func decodeResponse(resp *http.Response, out any) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return mediaserver.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return fmt.Errorf("kavita returned status %d (failed to read body)", resp.StatusCode)
		}
		return fmt.Errorf("kavita returned status %d: %s", resp.StatusCode, string(body))
	case out == nil:
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("kavita ids are numeric, got %q: %w", raw, err)
	}
	return id, nil
}

func valueOr(v *string, fallback string) string {
	if v != nil {
		return *v
	}
	return fallback
}
