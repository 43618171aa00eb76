// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package jobs

// EventType names a job progress event. The values double as SSE event
// names on the API surface, so they are stable identifiers.
type EventType string

const (
	EventProviderSeries      EventType = "provider-series"
	EventProviderBook        EventType = "provider-book"
	EventProviderError       EventType = "provider-error"
	EventProviderCompleted   EventType = "provider-completed"
	EventPostProcessingStart EventType = "post-processing-start"
	EventProcessingError     EventType = "processing-error"

	// EventNotFound is the single terminal event emitted when a
	// subscriber asks for a job id that does not exist.
	EventNotFound EventType = "not-found"
)

// Event is one entry in a job's progress stream.
type Event struct {
	JobID    string    `json:"jobId"`
	Type     EventType `json:"type"`
	Provider string    `json:"provider,omitempty"`
	SeriesID string    `json:"seriesId,omitempty"`
	BookID   string    `json:"bookId,omitempty"`
	Message  string    `json:"message,omitempty"`
}
