// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package kavita

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/komf-project/komf/internal/events"
)

type staticTokens struct{ token string }

func (s staticTokens) Token(context.Context) (string, error) { return s.token, nil }

// hubServer runs a minimal SignalR hub: it validates the handshake then
// sends the given frames and closes.
func hubServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hubs/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("access_token") != "jwt-1" {
			t.Errorf("access_token = %s", r.URL.Query().Get("access_token"))
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()

		_, handshake, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("handshake read: %v", err)
			return
		}
		if !bytes.Contains(handshake, []byte(`"protocol":"json"`)) {
			t.Errorf("handshake = %s", handshake)
		}
		if err := conn.WriteMessage(websocket.TextMessage, append([]byte("{}"), signalRSeparator)); err != nil {
			return
		}

		for _, frame := range frames {
			payload := append([]byte(frame), signalRSeparator)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
		// Give the client a beat to drain before closing.
		time.Sleep(50 * time.Millisecond)
	}))
}

func listenOnce(t *testing.T, src *EventSource) []events.ChangeEvent {
	t.Helper()
	var got []events.ChangeEvent
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := src.Listen(ctx, func(ev events.ChangeEvent) { got = append(got, ev) })
	if err == nil {
		t.Fatal("Listen should return an error when the stream closes")
	}
	return got
}

func TestListenMapsNotifications(t *testing.T) {
	server := hubServer(t, []string{
		`{"type":1,"target":"SeriesAdded","arguments":[{"name":"SeriesAdded","eventType":"single","body":{"seriesId":7,"libraryId":2}}]}`,
		`{"type":1,"target":"ChapterRemoved","arguments":[{"name":"ChapterRemoved","eventType":"single","body":{"chapterId":31,"seriesId":7,"libraryId":2}}]}`,
		`{"type":1,"target":"SeriesRemoved","arguments":[{"name":"SeriesRemoved","eventType":"single","body":{"seriesId":9,"libraryId":2}}]}`,
		`{"type":1,"target":"NotificationProgress","arguments":[{"name":"ScanProgress","eventType":"ended","body":{}}]}`,
	})
	defer server.Close()

	src := NewEventSource(server.URL, staticTokens{"jwt-1"}, nil)
	got := listenOnce(t, src)

	if len(got) != 4 {
		t.Fatalf("got %d events, want 4: %v", len(got), got)
	}
	if got[0].Type != events.BookAdded || got[0].SeriesID != "7" || got[0].LibraryID != "2" {
		t.Errorf("event[0] = %+v", got[0])
	}
	if got[1].Type != events.BookDeleted || got[1].BookID != "31" {
		t.Errorf("event[1] = %+v", got[1])
	}
	if got[2].Type != events.SeriesDeleted || got[2].SeriesID != "9" {
		t.Errorf("event[2] = %+v", got[2])
	}
	if got[3].Type != events.QueueEmpty {
		t.Errorf("event[3] = %+v, want quiescence signal", got[3])
	}
}

func TestListenLibraryFilter(t *testing.T) {
	server := hubServer(t, []string{
		`{"type":1,"target":"SeriesAdded","arguments":[{"name":"SeriesAdded","eventType":"single","body":{"seriesId":1,"libraryId":2}}]}`,
		`{"type":1,"target":"SeriesAdded","arguments":[{"name":"SeriesAdded","eventType":"single","body":{"seriesId":2,"libraryId":3}}]}`,
	})
	defer server.Close()

	src := NewEventSource(server.URL, staticTokens{"jwt-1"}, []string{"3"})
	got := listenOnce(t, src)

	if len(got) != 1 || got[0].SeriesID != "2" {
		t.Errorf("events = %v, want only library 3", got)
	}
}

func TestListenIgnoresUnknownTargets(t *testing.T) {
	server := hubServer(t, []string{
		`{"type":1,"target":"OnlineUsers","arguments":[{"name":"OnlineUsers","eventType":"single","body":{}}]}`,
		`{"type":6}`,
	})
	defer server.Close()

	src := NewEventSource(server.URL, staticTokens{"jwt-1"}, nil)
	if got := listenOnce(t, src); len(got) != 0 {
		t.Errorf("events = %v, want none", got)
	}
}

func TestListenStopsOnContextCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, append([]byte("{}"), signalRSeparator))
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	src := NewEventSource(server.URL, staticTokens{"jwt-1"}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- src.Listen(ctx, func(events.ChangeEvent) {})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}
