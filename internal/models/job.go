// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package models

import "time"

// JobStatus is the lifecycle state of a metadata job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// ValidJobStatus reports whether s is a known status value. Used to
// reject bad filter input at the API boundary.
func ValidJobStatus(s JobStatus) bool {
	switch s {
	case JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// MetadataJob is one synchronization run for a series. A job starts in
// RUNNING and transitions to a terminal status exactly once.
type MetadataJob struct {
	ID         string     `json:"id"`
	SeriesID   string     `json:"seriesId"`
	Status     JobStatus  `json:"status"`
	Message    string     `json:"message,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// JobPage is one page of job records plus the unfiltered total.
type JobPage struct {
	Jobs       []MetadataJob `json:"jobs"`
	TotalCount int           `json:"totalCount"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
}
