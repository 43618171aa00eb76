// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type scriptedSource struct {
	name     string
	mu       sync.Mutex
	sessions []func(sink func(ChangeEvent)) error
	attempts atomic.Int32
}

func (s *scriptedSource) Name() string { return s.name }

func (s *scriptedSource) Listen(ctx context.Context, sink func(ChangeEvent)) error {
	n := int(s.attempts.Add(1)) - 1
	s.mu.Lock()
	var session func(sink func(ChangeEvent)) error
	if n < len(s.sessions) {
		session = s.sessions[n]
	}
	s.mu.Unlock()
	if session != nil {
		return session(sink)
	}
	<-ctx.Done()
	return ctx.Err()
}

type recordingCleanup struct {
	mu               sync.Mutex
	matchDeletes     []string
	seriesThumbDel   []string
	bookThumbDeletes []string
}

func (c *recordingCleanup) DeleteMatch(_ context.Context, _, seriesID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matchDeletes = append(c.matchDeletes, seriesID)
	return nil
}

func (c *recordingCleanup) DeleteSeriesThumbnails(_ context.Context, _, seriesID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seriesThumbDel = append(c.seriesThumbDel, seriesID)
	return nil
}

func (c *recordingCleanup) DeleteBookThumbnails(_ context.Context, _, bookID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bookThumbDeletes = append(c.bookThumbDeletes, bookID)
	return nil
}

type recordingListener struct {
	name    string
	mu      sync.Mutex
	batches []*Batch
	seen    chan struct{}
}

func newRecordingListener(name string) *recordingListener {
	return &recordingListener{name: name, seen: make(chan struct{}, 16)}
}

func (l *recordingListener) Name() string { return l.name }

func (l *recordingListener) HandleBatch(_ context.Context, b *Batch) {
	l.mu.Lock()
	l.batches = append(l.batches, b)
	l.mu.Unlock()
	l.seen <- struct{}{}
}

func (l *recordingListener) waitBatch(t *testing.T) *Batch {
	t.Helper()
	select {
	case <-l.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batch")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.batches[len(l.batches)-1]
}

func TestHandlerFlushPreservesRawEvents(t *testing.T) {
	events := make(chan ChangeEvent)
	src := &scriptedSource{
		name: "komga",
		sessions: []func(sink func(ChangeEvent)) error{
			func(sink func(ChangeEvent)) error {
				for ev := range events {
					sink(ev)
				}
				return nil
			},
		},
	}
	h := NewHandler(src, &recordingCleanup{})
	listener := newRecordingListener("sync")
	h.Register(listener)

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		close(events)
		if err := h.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}()

	// The same series appearing twice with another in between must flush
	// as three raw events, dedup happens only at SeriesToSync.
	events <- ChangeEvent{Type: BookAdded, SeriesID: "A", BookID: "a1", LibraryID: "lib"}
	events <- ChangeEvent{Type: BookAdded, SeriesID: "B", BookID: "b1", LibraryID: "lib"}
	events <- ChangeEvent{Type: BookAdded, SeriesID: "A", BookID: "a2", LibraryID: "lib"}
	events <- ChangeEvent{Type: QueueEmpty}

	batch := listener.waitBatch(t)
	if batch.Server != "komga" {
		t.Errorf("batch server = %q, want komga", batch.Server)
	}
	if len(batch.BookAdded) != 3 {
		t.Fatalf("flushed %d added events, want 3", len(batch.BookAdded))
	}
	refs := batch.SeriesToSync()
	if len(refs) != 2 {
		t.Fatalf("SeriesToSync returned %d refs, want 2", len(refs))
	}
	if refs[0].SeriesID != "A" || refs[1].SeriesID != "B" {
		t.Errorf("SeriesToSync order = %v, want A then B", refs)
	}
}

func TestHandlerFansOutToEveryListener(t *testing.T) {
	events := make(chan ChangeEvent)
	src := &scriptedSource{
		name: "kavita",
		sessions: []func(sink func(ChangeEvent)) error{
			func(sink func(ChangeEvent)) error {
				for ev := range events {
					sink(ev)
				}
				return nil
			},
		},
	}
	h := NewHandler(src, &recordingCleanup{})
	first := newRecordingListener("sync")
	second := newRecordingListener("notify")
	h.Register(first)
	h.Register(second)

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		close(events)
		h.Stop()
	}()

	events <- ChangeEvent{Type: BookAdded, SeriesID: "S", BookID: "b"}
	events <- ChangeEvent{Type: QueueEmpty}

	for _, l := range []*recordingListener{first, second} {
		batch := l.waitBatch(t)
		if len(batch.BookAdded) != 1 || batch.BookAdded[0].SeriesID != "S" {
			t.Errorf("listener %s got batch %+v", l.name, batch)
		}
	}
}

func TestHandlerEmptyFlushDropped(t *testing.T) {
	events := make(chan ChangeEvent)
	src := &scriptedSource{
		name: "komga",
		sessions: []func(sink func(ChangeEvent)) error{
			func(sink func(ChangeEvent)) error {
				for ev := range events {
					sink(ev)
				}
				return nil
			},
		},
	}
	h := NewHandler(src, &recordingCleanup{})
	listener := newRecordingListener("sync")
	h.Register(listener)

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	events <- ChangeEvent{Type: QueueEmpty}
	events <- ChangeEvent{Type: QueueEmpty}
	events <- ChangeEvent{Type: BookAdded, SeriesID: "S", BookID: "b"}
	events <- ChangeEvent{Type: QueueEmpty}

	batch := listener.waitBatch(t)
	if len(batch.BookAdded) != 1 {
		t.Fatalf("got %d added events, want 1", len(batch.BookAdded))
	}

	close(events)
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.batches) != 1 {
		t.Errorf("listener received %d batches, want 1 (empty flushes dropped)", len(listener.batches))
	}
}

func TestHandlerReconnectsAfterStreamError(t *testing.T) {
	events := make(chan ChangeEvent)
	src := &scriptedSource{
		name: "komga",
		sessions: []func(sink func(ChangeEvent)) error{
			func(func(ChangeEvent)) error {
				return errors.New("connection reset")
			},
			func(sink func(ChangeEvent)) error {
				for ev := range events {
					sink(ev)
				}
				return nil
			},
		},
	}
	h := NewHandler(src, &recordingCleanup{})
	h.backoff = time.Millisecond
	listener := newRecordingListener("sync")
	h.Register(listener)

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		close(events)
		h.Stop()
	}()

	// Events delivered on the second session prove the resubscribe happened.
	events <- ChangeEvent{Type: BookAdded, SeriesID: "S", BookID: "b"}
	events <- ChangeEvent{Type: QueueEmpty}

	batch := listener.waitBatch(t)
	if len(batch.BookAdded) != 1 {
		t.Fatalf("got %d added events after reconnect, want 1", len(batch.BookAdded))
	}
	if got := src.attempts.Load(); got < 2 {
		t.Errorf("source attempts = %d, want at least 2", got)
	}
}

func TestHandlerDeleteEventsTriggerCleanup(t *testing.T) {
	events := make(chan ChangeEvent)
	src := &scriptedSource{
		name: "komga",
		sessions: []func(sink func(ChangeEvent)) error{
			func(sink func(ChangeEvent)) error {
				for ev := range events {
					sink(ev)
				}
				return nil
			},
		},
	}
	cleanup := &recordingCleanup{}
	h := NewHandler(src, cleanup)
	listener := newRecordingListener("sync")
	h.Register(listener)

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		close(events)
		h.Stop()
	}()

	events <- ChangeEvent{Type: BookDeleted, SeriesID: "S", BookID: "b1"}
	events <- ChangeEvent{Type: SeriesDeleted, SeriesID: "S"}
	events <- ChangeEvent{Type: QueueEmpty}

	batch := listener.waitBatch(t)
	if len(batch.BookDeleted) != 1 || len(batch.SeriesDeleted) != 1 {
		t.Fatalf("batch = %+v, want one book delete and one series delete", batch)
	}

	// Cleanup runs synchronously in the event stream, so it already
	// happened by the time the flush reaches the listener.
	cleanup.mu.Lock()
	defer cleanup.mu.Unlock()
	if len(cleanup.bookThumbDeletes) != 1 || cleanup.bookThumbDeletes[0] != "b1" {
		t.Errorf("book thumbnail deletes = %v, want [b1]", cleanup.bookThumbDeletes)
	}
	if len(cleanup.matchDeletes) != 1 || cleanup.matchDeletes[0] != "S" {
		t.Errorf("match deletes = %v, want [S]", cleanup.matchDeletes)
	}
	if len(cleanup.seriesThumbDel) != 1 || cleanup.seriesThumbDel[0] != "S" {
		t.Errorf("series thumbnail deletes = %v, want [S]", cleanup.seriesThumbDel)
	}
}

func TestHandlerStopIsClean(t *testing.T) {
	src := &scriptedSource{name: "komga"}
	h := NewHandler(src, &recordingCleanup{})
	h.Register(newRecordingListener("sync"))

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.Start(context.Background()); err == nil {
		t.Error("second Start succeeded, want error")
	}

	done := make(chan error, 1)
	go func() { done <- h.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	if err := h.Stop(); err == nil {
		t.Error("second Stop succeeded, want error")
	}
}
