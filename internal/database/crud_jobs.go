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

// InsertJob persists a new job row in RUNNING status.
func (db *DB) InsertJob(ctx context.Context, job *models.MetadataJob) error {
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now()
	}
	if job.Status == "" {
		job.Status = models.JobStatusRunning
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO metadata_jobs (id, series_id, status, message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, NULL)`,
		job.ID, job.SeriesID, string(job.Status), job.Message, job.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// FinishJob transitions a RUNNING job to a terminal status. The status
// guard in the WHERE clause makes the transition happen at most once;
// a second call on the same job is a silent no-op.
func (db *DB) FinishJob(ctx context.Context, id string, status models.JobStatus, message string, finishedAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE metadata_jobs SET status = ?, message = ?, finished_at = ?
		WHERE id = ? AND status = ?`,
		string(status), message, finishedAt, id, string(models.JobStatusRunning))
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

// GetJob retrieves a single job row, or ErrJobNotFound.
func (db *DB) GetJob(ctx context.Context, id string) (*models.MetadataJob, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, series_id, status, message, started_at, finished_at
		FROM metadata_jobs WHERE id = ?`, id)

	job, err := scanJob(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns one page of jobs ordered by most recent start,
// optionally filtered by status. Page numbering starts at 1.
func (db *DB) ListJobs(ctx context.Context, status models.JobStatus, page, pageSize int) (*models.JobPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	where := ""
	args := []any{}
	if status != "" {
		where = " WHERE status = ?"
		args = append(args, string(status))
	}

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM metadata_jobs`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	query := `SELECT id, series_id, status, message, started_at, finished_at
	FROM metadata_jobs` + where + ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]models.MetadataJob, 0, pageSize)
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job rows: %w", err)
	}

	return &models.JobPage{
		Jobs:       jobs,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// DeleteAllJobs purges every job row. In-flight jobs are not cancelled;
// their terminal update simply finds no row to touch.
func (db *DB) DeleteAllJobs(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM metadata_jobs`); err != nil {
		return fmt.Errorf("failed to delete jobs: %w", err)
	}
	return nil
}

func scanJob(scan func(dest ...any) error) (*models.MetadataJob, error) {
	var (
		job        models.MetadataJob
		status     string
		finishedAt sql.NullTime
	)
	if err := scan(&job.ID, &job.SeriesID, &status, &job.Message, &job.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}
