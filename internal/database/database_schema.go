// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

/*
database_schema.go - Schema Definition

All tables are created with IF NOT EXISTS in a single initial schema.
Incremental changes after release go through migrations.go.

Row keys follow the (server, entity id) convention: the same series id
can exist on both a Komga and a Kavita instance pointed at the same
library, so the media server name is always part of the key.
*/

package database

import (
	"context"
	"time"
)

const schemaTimeout = 30 * time.Second

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), schemaTimeout)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS series_matches (
		server TEXT NOT NULL,
		series_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		provider_series_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (server, series_id)
	);`,

	`CREATE TABLE IF NOT EXISTS series_thumbnails (
		server TEXT NOT NULL,
		series_id TEXT NOT NULL,
		thumbnail_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (server, series_id)
	);`,

	`CREATE TABLE IF NOT EXISTS book_thumbnails (
		server TEXT NOT NULL,
		book_id TEXT NOT NULL,
		thumbnail_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (server, book_id)
	);`,

	`CREATE TABLE IF NOT EXISTS metadata_jobs (
		id TEXT PRIMARY KEY,
		series_id TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);`,

	`CREATE INDEX IF NOT EXISTS idx_metadata_jobs_series ON metadata_jobs (series_id);`,
	`CREATE INDEX IF NOT EXISTS idx_metadata_jobs_status ON metadata_jobs (status);`,
}

// createSchema creates all tables and indexes.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
