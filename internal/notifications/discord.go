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

const discordEmbedColor = 0x2B6CB0

// DiscordSender posts an embed to one or more Discord webhooks. Discord
// allows roughly 30 webhook executions per minute; the limiter paces all
// webhooks together under that budget.
type DiscordSender struct {
	cfg     config.DiscordConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewDiscordSender creates a sender for the configured webhooks.
func NewDiscordSender(cfg config.DiscordConfig) *DiscordSender {
	return &DiscordSender{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
	}
}

func (s *DiscordSender) Name() string { return "discord" }

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Thumbnail   *discordImage       `json:"thumbnail,omitempty"`
	Timestamp   string              `json:"timestamp"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordImage struct {
	URL string `json:"url"`
}

// Send posts the update embed to every configured webhook.
func (s *DiscordSender) Send(ctx context.Context, update *SeriesUpdate) error {
	body, err := json.Marshal(discordPayload{Embeds: []discordEmbed{s.buildEmbed(update)}})
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	var firstErr error
	for _, webhook := range s.cfg.Webhooks {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := s.post(ctx, webhook, body); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *DiscordSender) post(ctx context.Context, webhook string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *DiscordSender) buildEmbed(update *SeriesUpdate) discordEmbed {
	embed := discordEmbed{
		Title:       update.Title,
		Description: truncate(update.Summary, 500),
		URL:         update.WebURL,
		Color:       discordEmbedColor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fields: []discordEmbedField{
			{Name: "Server", Value: update.Server, Inline: true},
			{Name: "Provider", Value: update.Provider, Inline: true},
		},
	}
	if update.BookCount > 0 {
		embed.Fields = append(embed.Fields, discordEmbedField{
			Name: "Books", Value: fmt.Sprintf("%d", update.BookCount), Inline: true,
		})
	}
	if s.cfg.SeriesCover && update.CoverURL != "" {
		embed.Thumbnail = &discordImage{URL: update.CoverURL}
	}
	return embed
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
