// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package models

import "time"

// SeriesMatch pins a library series to one provider series. A stored
// match short-circuits the search step on later synchronization runs.
type SeriesMatch struct {
	Server           string    `json:"server"`
	SeriesID         string    `json:"seriesId"`
	Provider         string    `json:"provider"`
	ProviderSeriesID string    `json:"providerSeriesId"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// SeriesThumbnail records a cover uploaded for a series so stale uploads
// can be replaced instead of accumulating.
type SeriesThumbnail struct {
	Server      string    `json:"server"`
	SeriesID    string    `json:"seriesId"`
	ThumbnailID string    `json:"thumbnailId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BookThumbnail records a cover uploaded for a single book.
type BookThumbnail struct {
	Server      string    `json:"server"`
	BookID      string    `json:"bookId"`
	ThumbnailID string    `json:"thumbnailId"`
	CreatedAt   time.Time `json:"createdAt"`
}
