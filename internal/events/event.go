// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

// Package events turns the media servers' raw change-event streams into
// deduplicatable batches of synchronization work.
//
// A Handler subscribes to one server's stream, buffers add/delete events
// under a lock, and on the server's quiescence signal (task queue drained)
// flushes the accumulated batch to every registered listener through an
// in-process watermill pub/sub, so listeners consume independently and
// never block each other.
package events

import "context"

// Type tags a change event.
type Type string

const (
	// BookAdded signals a new book file appeared in a library.
	BookAdded Type = "BookAdded"
	// BookDeleted signals a book file was removed.
	BookDeleted Type = "BookDeleted"
	// SeriesDeleted signals a whole series was removed.
	SeriesDeleted Type = "SeriesDeleted"
	// QueueEmpty is the server's quiescence signal: its internal task
	// queue drained, so buffered events form a complete batch.
	QueueEmpty Type = "TaskQueueEmpty"
)

// ChangeEvent is one raw notification from a media server stream.
// Book ids are only set on book events; QueueEmpty carries no ids.
type ChangeEvent struct {
	Type      Type   `json:"type"`
	LibraryID string `json:"libraryId,omitempty"`
	SeriesID  string `json:"seriesId,omitempty"`
	BookID    string `json:"bookId,omitempty"`
}

// Source is a single connection to a server's change-event stream.
// Listen blocks, delivering events to sink until the stream terminates or
// ctx is done; the Handler drives reconnection.
type Source interface {
	Name() string
	Listen(ctx context.Context, sink func(ChangeEvent)) error
}

// Batch is one flushed, immutable set of buffered events. Raw events are
// preserved as received: duplicate adds for one book are NOT deduplicated
// here, consumers must be idempotent per series id.
type Batch struct {
	Server        string        `json:"server"`
	BookAdded     []ChangeEvent `json:"bookAdded,omitempty"`
	BookDeleted   []ChangeEvent `json:"bookDeleted,omitempty"`
	SeriesDeleted []ChangeEvent `json:"seriesDeleted,omitempty"`
}

// SeriesToSync returns the unique (libraryId, seriesId) pairs that need a
// metadata resync, in first-seen order.
func (b *Batch) SeriesToSync() []SeriesRef {
	seen := make(map[string]struct{})
	var refs []SeriesRef
	for _, ev := range b.BookAdded {
		if ev.SeriesID == "" {
			continue
		}
		if _, ok := seen[ev.SeriesID]; ok {
			continue
		}
		seen[ev.SeriesID] = struct{}{}
		refs = append(refs, SeriesRef{LibraryID: ev.LibraryID, SeriesID: ev.SeriesID})
	}
	return refs
}

// SeriesRef identifies one series within a library.
type SeriesRef struct {
	LibraryID string `json:"libraryId"`
	SeriesID  string `json:"seriesId"`
}

// Listener consumes flushed batches. Implementations must tolerate
// repeated series ids within one batch and concurrent invocation across
// batches.
type Listener interface {
	Name() string
	HandleBatch(ctx context.Context, batch *Batch)
}

// CleanupStore removes persisted state for deleted entities. Called
// synchronously while a delete event is applied, independent of listener
// dispatch.
type CleanupStore interface {
	DeleteMatch(ctx context.Context, server, seriesID string) error
	DeleteSeriesThumbnails(ctx context.Context, server, seriesID string) error
	DeleteBookThumbnails(ctx context.Context, server, bookID string) error
}
