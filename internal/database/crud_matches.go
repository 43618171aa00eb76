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

// StoreMatch inserts or replaces the provider match for a series.
func (db *DB) StoreMatch(ctx context.Context, match *models.SeriesMatch) error {
	now := time.Now()
	if match.CreatedAt.IsZero() {
		match.CreatedAt = now
	}
	match.UpdatedAt = now

	query := `INSERT INTO series_matches (
		server, series_id, provider, provider_series_id, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (server, series_id) DO UPDATE SET
		provider = EXCLUDED.provider,
		provider_series_id = EXCLUDED.provider_series_id,
		updated_at = EXCLUDED.updated_at`

	_, err := db.conn.ExecContext(ctx, query,
		match.Server, match.SeriesID, match.Provider, match.ProviderSeriesID,
		match.CreatedAt, match.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store series match: %w", err)
	}
	return nil
}

// GetMatch retrieves the stored match for a series, or ErrMatchNotFound.
func (db *DB) GetMatch(ctx context.Context, server, seriesID string) (*models.SeriesMatch, error) {
	query := `SELECT server, series_id, provider, provider_series_id, created_at, updated_at
	FROM series_matches WHERE server = ? AND series_id = ?`

	var match models.SeriesMatch
	err := db.conn.QueryRowContext(ctx, query, server, seriesID).Scan(
		&match.Server, &match.SeriesID, &match.Provider, &match.ProviderSeriesID,
		&match.CreatedAt, &match.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get series match: %w", err)
	}
	return &match, nil
}

// DeleteMatch removes the stored match for a series. Deleting a match
// that does not exist is not an error.
func (db *DB) DeleteMatch(ctx context.Context, server, seriesID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM series_matches WHERE server = ? AND series_id = ?`, server, seriesID)
	if err != nil {
		return fmt.Errorf("failed to delete series match: %w", err)
	}
	return nil
}
