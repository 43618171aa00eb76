// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

// Package notifications delivers a message to external services after a
// series was successfully updated. Senders are fire-and-forget: a failing
// delivery is logged and never fails the synchronization run.
package notifications

import (
	"context"

	"github.com/komf-project/komf/internal/config"
	"github.com/komf-project/komf/internal/logging"
)

// SeriesUpdate describes one completed synchronization run.
type SeriesUpdate struct {
	Server    string
	SeriesID  string
	Title     string
	Provider  string
	CoverURL  string
	BookCount int
	WebURL    string
	Summary   string
}

// Sender delivers one update to one external service.
type Sender interface {
	Name() string
	Send(ctx context.Context, update *SeriesUpdate) error
}

// Service fans an update out to every configured sender.
type Service struct {
	senders []Sender
}

// NewService builds senders from the notifications config. A config
// without webhooks or Apprise URLs yields a service that does nothing.
func NewService(cfg config.NotificationsConfig) *Service {
	var senders []Sender
	if len(cfg.Discord.Webhooks) > 0 {
		senders = append(senders, NewDiscordSender(cfg.Discord))
	}
	if len(cfg.Apprise.URLs) > 0 {
		senders = append(senders, NewAppriseSender(cfg.Apprise))
	}
	return &Service{senders: senders}
}

// Enabled reports whether any sender is configured.
func (s *Service) Enabled() bool {
	return len(s.senders) > 0
}

// NotifySeriesUpdated delivers the update to every sender. Failures are
// logged per sender and do not stop the remaining deliveries.
func (s *Service) NotifySeriesUpdated(ctx context.Context, update *SeriesUpdate) {
	for _, sender := range s.senders {
		if err := sender.Send(ctx, update); err != nil {
			logging.Warn().
				Str("sender", sender.Name()).
				Str("series_id", update.SeriesID).
				Err(err).
				Msg("Notification delivery failed")
		}
	}
}
