// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

/*
events.go - Komga Server-Sent Events Source

Komga publishes library change notifications as an SSE stream at
/sse/v1/events. This file implements a single-connection reader over
that stream and maps the wire events into change events. The TaskQueueStatus
event with an empty queue is the quiescence signal that triggers a
batch flush upstream.
*/

package komga

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/komf-project/komf/internal/events"
	"github.com/komf-project/komf/internal/logging"
)

// Ensure EventSource implements the stream interface
var _ events.Source = (*EventSource)(nil)

// EventSource reads the Komga SSE stream. One Listen call holds one
// connection; the caller owns reconnection.
type EventSource struct {
	baseURL  string
	user     string
	password string

	// libraries filters events to the given library IDs. Empty means all.
	libraries map[string]struct{}

	httpClient *http.Client
}

// NewEventSource creates an SSE source for one Komga server.
func NewEventSource(baseURL, user, password string, libraries []string) *EventSource {
	filter := make(map[string]struct{}, len(libraries))
	for _, id := range libraries {
		filter[id] = struct{}{}
	}

	return &EventSource{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		user:      user,
		password:  password,
		libraries: filter,
		// No overall timeout: the SSE stream is long-lived.
		httpClient: &http.Client{},
	}
}

// Name identifies the stream in logs and metrics.
func (s *EventSource) Name() string { return "komga" }

// komgaEventPayload is the data document shared by Komga change events.
type komgaEventPayload struct {
	BookID    string `json:"bookId"`
	SeriesID  string `json:"seriesId"`
	LibraryID string `json:"libraryId"`
}

// komgaTaskQueueStatus signals Komga's background task queue depth.
type komgaTaskQueueStatus struct {
	Count int `json:"count"`
}

// Listen connects to the SSE endpoint and forwards events to sink until
// the stream ends or ctx is canceled. Returns the terminal error of the
// connection; the caller decides whether to reconnect.
func (s *EventSource) Listen(ctx context.Context, sink func(events.ChangeEvent)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/sse/v1/events", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(s.user, s.password)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("komga sse connect failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("komga sse returned status %d", resp.StatusCode)
	}

	logging.Info().Str("url", s.baseURL).Msg("komga event stream connected")
	return s.readStream(resp.Body, sink)
}

// readStream parses the SSE wire format: "event:" and "data:" lines
// terminated by a blank line per event.
func (s *EventSource) readStream(body io.Reader, sink func(events.ChangeEvent)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if eventName != "" {
				s.dispatch(eventName, data, sink)
			}
			eventName, data = "", ""
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case strings.HasPrefix(line, ":"):
			// Comment/keep-alive line.
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("komga sse read failed: %w", err)
	}
	return fmt.Errorf("komga sse stream closed")
}

func (s *EventSource) dispatch(eventName, data string, sink func(events.ChangeEvent)) {
	switch eventName {
	case "BookAdded", "BookDeleted", "SeriesDeleted":
		var payload komgaEventPayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			logging.Warn().Err(err).Str("event", eventName).Msg("komga event decode failed")
			return
		}
		if !s.libraryAllowed(payload.LibraryID) {
			return
		}
		sink(events.ChangeEvent{
			Type:      changeType(eventName),
			LibraryID: payload.LibraryID,
			SeriesID:  payload.SeriesID,
			BookID:    payload.BookID,
		})

	case "TaskQueueStatus":
		var status komgaTaskQueueStatus
		if err := json.Unmarshal([]byte(data), &status); err != nil {
			logging.Warn().Err(err).Msg("komga task queue status decode failed")
			return
		}
		if status.Count == 0 {
			sink(events.ChangeEvent{Type: events.QueueEmpty})
		}
	}
}

func (s *EventSource) libraryAllowed(libraryID string) bool {
	if len(s.libraries) == 0 {
		return true
	}
	_, ok := s.libraries[libraryID]
	return ok
}

func changeType(eventName string) events.Type {
	switch eventName {
	case "BookAdded":
		return events.BookAdded
	case "BookDeleted":
		return events.BookDeleted
	default:
		return events.SeriesDeleted
	}
}
