// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package komga

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/komf-project/komf/internal/events"
)

func collectEvents(t *testing.T, src *EventSource, stream string) []events.ChangeEvent {
	t.Helper()
	var got []events.ChangeEvent
	err := src.readStream(strings.NewReader(stream), func(ev events.ChangeEvent) {
		got = append(got, ev)
	})
	if err == nil {
		t.Fatal("readStream should report stream end as an error")
	}
	return got
}

func TestReadStreamParsesEvents(t *testing.T) {
	stream := "" +
		"event:BookAdded\n" +
		"data:{\"bookId\":\"b-1\",\"seriesId\":\"s-1\",\"libraryId\":\"lib-1\"}\n" +
		"\n" +
		":keep-alive\n" +
		"event:SeriesDeleted\n" +
		"data:{\"seriesId\":\"s-2\",\"libraryId\":\"lib-1\"}\n" +
		"\n" +
		"event:TaskQueueStatus\n" +
		"data:{\"count\":0}\n" +
		"\n"

	src := NewEventSource("http://komga", "u", "p", nil)
	got := collectEvents(t, src, stream)

	if len(got) != 3 {
		t.Fatalf("got %d events, want 3: %v", len(got), got)
	}
	if got[0].Type != events.BookAdded || got[0].BookID != "b-1" || got[0].SeriesID != "s-1" {
		t.Errorf("event[0] = %+v", got[0])
	}
	if got[1].Type != events.SeriesDeleted || got[1].SeriesID != "s-2" {
		t.Errorf("event[1] = %+v", got[1])
	}
	if got[2].Type != events.QueueEmpty {
		t.Errorf("event[2] = %+v, want quiescence signal", got[2])
	}
}

func TestReadStreamNonEmptyQueueIsNotQuiescence(t *testing.T) {
	stream := "event:TaskQueueStatus\ndata:{\"count\":3}\n\n"
	src := NewEventSource("http://komga", "u", "p", nil)
	got := collectEvents(t, src, stream)
	if len(got) != 0 {
		t.Errorf("got %v, want no events for busy queue", got)
	}
}

func TestReadStreamLibraryFilter(t *testing.T) {
	stream := "" +
		"event:BookAdded\n" +
		"data:{\"bookId\":\"b-1\",\"seriesId\":\"s-1\",\"libraryId\":\"lib-watched\"}\n" +
		"\n" +
		"event:BookAdded\n" +
		"data:{\"bookId\":\"b-2\",\"seriesId\":\"s-2\",\"libraryId\":\"lib-ignored\"}\n" +
		"\n"

	src := NewEventSource("http://komga", "u", "p", []string{"lib-watched"})
	got := collectEvents(t, src, stream)

	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].LibraryID != "lib-watched" {
		t.Errorf("event = %+v", got[0])
	}
}

func TestReadStreamUnknownEventsIgnored(t *testing.T) {
	stream := "event:SessionExpired\ndata:{}\n\n"
	src := NewEventSource("http://komga", "u", "p", nil)
	if got := collectEvents(t, src, stream); len(got) != 0 {
		t.Errorf("got %v, want no events", got)
	}
}

func TestListenAuthAndHeaders(t *testing.T) {
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(done)
		if r.URL.Path != "/sse/v1/events" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if accept := r.Header.Get("Accept"); accept != "text/event-stream" {
			t.Errorf("accept = %s", accept)
		}
		user, pass, _ := r.BasicAuth()
		if user != "admin" || pass != "secret" {
			t.Error("missing basic auth")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event:BookAdded\ndata:{\"bookId\":\"b\",\"seriesId\":\"s\",\"libraryId\":\"l\"}\n\n"))
	}))
	defer server.Close()

	src := NewEventSource(server.URL, "admin", "secret", nil)
	var got []events.ChangeEvent
	err := src.Listen(context.Background(), func(ev events.ChangeEvent) { got = append(got, ev) })
	<-done
	if err == nil {
		t.Error("Listen should return an error when the stream closes")
	}
	if len(got) != 1 || got[0].BookID != "b" {
		t.Errorf("events = %v", got)
	}
}

func TestListenRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	src := NewEventSource(server.URL, "u", "wrong", nil)
	if err := src.Listen(context.Background(), func(events.ChangeEvent) {}); err == nil {
		t.Error("Listen should fail on non-200 status")
	}
}
