// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package notifications

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/komf-project/komf/internal/config"
)

// AppriseSender posts a plain-text notification to Apprise API notify
// endpoints (https://github.com/caronc/apprise-api).
type AppriseSender struct {
	cfg     config.AppriseConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewAppriseSender creates a sender for the configured endpoints.
func NewAppriseSender(cfg config.AppriseConfig) *AppriseSender {
	return &AppriseSender{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

func (s *AppriseSender) Name() string { return "apprise" }

type apprisePayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Type  string `json:"type"`
}

// Send posts the update to every configured endpoint.
func (s *AppriseSender) Send(ctx context.Context, update *SeriesUpdate) error {
	payload := apprisePayload{
		Title: fmt.Sprintf("Komf updated %s", update.Title),
		Body:  s.buildBody(update),
		Type:  "info",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal apprise payload: %w", err)
	}

	var firstErr error
	for _, endpoint := range s.cfg.URLs {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := s.post(ctx, endpoint, body); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *AppriseSender) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create apprise request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("apprise request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("apprise endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *AppriseSender) buildBody(update *SeriesUpdate) string {
	body := fmt.Sprintf("Metadata for %q was updated on %s from %s.",
		update.Title, update.Server, update.Provider)
	if update.BookCount > 0 {
		body += fmt.Sprintf(" %d books.", update.BookCount)
	}
	if s.cfg.SeriesCover && update.CoverURL != "" {
		body += "\n" + update.CoverURL
	}
	return body
}
