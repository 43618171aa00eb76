// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/komf-project/komf/internal/models"
)

// StoreSeriesThumbnail records the thumbnail uploaded for a series,
// replacing any previous record.
func (db *DB) StoreSeriesThumbnail(ctx context.Context, thumb *models.SeriesThumbnail) error {
	if thumb.CreatedAt.IsZero() {
		thumb.CreatedAt = time.Now()
	}

	query := `INSERT INTO series_thumbnails (server, series_id, thumbnail_id, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (server, series_id) DO UPDATE SET
		thumbnail_id = EXCLUDED.thumbnail_id,
		created_at = EXCLUDED.created_at`

	_, err := db.conn.ExecContext(ctx, query,
		thumb.Server, thumb.SeriesID, thumb.ThumbnailID, thumb.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store series thumbnail: %w", err)
	}
	return nil
}

// GetSeriesThumbnail returns the recorded thumbnail for a series, or
// ErrThumbnailNotFound.
func (db *DB) GetSeriesThumbnail(ctx context.Context, server, seriesID string) (*models.SeriesThumbnail, error) {
	var thumb models.SeriesThumbnail
	err := db.conn.QueryRowContext(ctx,
		`SELECT server, series_id, thumbnail_id, created_at FROM series_thumbnails WHERE server = ? AND series_id = ?`,
		server, seriesID,
	).Scan(&thumb.Server, &thumb.SeriesID, &thumb.ThumbnailID, &thumb.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrThumbnailNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get series thumbnail: %w", err)
	}
	return &thumb, nil
}

// DeleteSeriesThumbnails removes thumbnail records for a series.
func (db *DB) DeleteSeriesThumbnails(ctx context.Context, server, seriesID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM series_thumbnails WHERE server = ? AND series_id = ?`, server, seriesID)
	if err != nil {
		return fmt.Errorf("failed to delete series thumbnails: %w", err)
	}
	return nil
}

// StoreBookThumbnail records the thumbnail uploaded for a book,
// replacing any previous record.
func (db *DB) StoreBookThumbnail(ctx context.Context, thumb *models.BookThumbnail) error {
	if thumb.CreatedAt.IsZero() {
		thumb.CreatedAt = time.Now()
	}

	query := `INSERT INTO book_thumbnails (server, book_id, thumbnail_id, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (server, book_id) DO UPDATE SET
		thumbnail_id = EXCLUDED.thumbnail_id,
		created_at = EXCLUDED.created_at`

	_, err := db.conn.ExecContext(ctx, query,
		thumb.Server, thumb.BookID, thumb.ThumbnailID, thumb.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store book thumbnail: %w", err)
	}
	return nil
}

// GetBookThumbnail returns the recorded thumbnail for a book, or
// ErrThumbnailNotFound.
func (db *DB) GetBookThumbnail(ctx context.Context, server, bookID string) (*models.BookThumbnail, error) {
	var thumb models.BookThumbnail
	err := db.conn.QueryRowContext(ctx,
		`SELECT server, book_id, thumbnail_id, created_at FROM book_thumbnails WHERE server = ? AND book_id = ?`,
		server, bookID,
	).Scan(&thumb.Server, &thumb.BookID, &thumb.ThumbnailID, &thumb.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrThumbnailNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book thumbnail: %w", err)
	}
	return &thumb, nil
}

// DeleteBookThumbnails removes thumbnail records for a book.
func (db *DB) DeleteBookThumbnails(ctx context.Context, server, bookID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM book_thumbnails WHERE server = ? AND book_id = ?`, server, bookID)
	if err != nil {
		return fmt.Errorf("failed to delete book thumbnails: %w", err)
	}
	return nil
}
