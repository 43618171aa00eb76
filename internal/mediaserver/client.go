// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package mediaserver

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the server has no entity with the given id.
var ErrNotFound = errors.New("mediaserver: not found")

// Client is the narrow surface of a media server the synchronization core
// reads from and writes back to. Ids are the server's opaque string ids.
//
// Implementations are safe for concurrent use; all methods perform network
// I/O and honor ctx cancellation.
type Client interface {
	Kind() Kind

	GetSeries(ctx context.Context, seriesID string) (*Series, error)
	GetBooks(ctx context.Context, seriesID string) ([]Book, error)

	UpdateSeriesMetadata(ctx context.Context, seriesID string, patch *SeriesMetadataUpdate) error
	UpdateBookMetadata(ctx context.Context, bookID string, patch *BookMetadataUpdate) error
	ResetSeriesMetadata(ctx context.Context, seriesID string) error

	GetSeriesThumbnails(ctx context.Context, seriesID string) ([]Thumbnail, error)
	UploadSeriesThumbnail(ctx context.Context, seriesID string, image Image, selected bool) (*Thumbnail, error)
	DeleteSeriesThumbnail(ctx context.Context, seriesID, thumbnailID string) error
	UploadBookThumbnail(ctx context.Context, bookID string, image Image, selected bool) (*Thumbnail, error)
	DeleteBookThumbnail(ctx context.Context, bookID, thumbnailID string) error
}
