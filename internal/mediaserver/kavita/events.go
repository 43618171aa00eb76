// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

/*
events.go - Kavita SignalR Event Source

Kavita publishes library change notifications over a SignalR hub at
/hubs/messages. This file implements a minimal SignalR JSON-protocol
client over a WebSocket: handshake, ping replies, and invocation
dispatch. Scan-progress "ended" notifications act as the quiescence
signal that triggers a batch flush upstream.

WebSocket Endpoint: ws://{kavita_url}/hubs/messages?access_token={jwt}
*/

package kavita

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/komf-project/komf/internal/events"
	"github.com/komf-project/komf/internal/logging"
)

// Ensure EventSource implements the stream interface
var _ events.Source = (*EventSource)(nil)

// signalR record separator terminating every frame.
const signalRSeparator = 0x1e

// TokenProvider supplies a valid Kavita JWT. *Client satisfies this.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// EventSource reads the Kavita SignalR hub. One Listen call holds one
// connection; the caller owns reconnection.
type EventSource struct {
	baseURL string
	tokens  TokenProvider

	// libraries filters events to the given library IDs. Empty means all.
	libraries map[string]struct{}
}

// NewEventSource creates a SignalR source for one Kavita server.
func NewEventSource(baseURL string, tokens TokenProvider, libraries []string) *EventSource {
	filter := make(map[string]struct{}, len(libraries))
	for _, id := range libraries {
		filter[id] = struct{}{}
	}
	return &EventSource{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		tokens:    tokens,
		libraries: filter,
	}
}

// Name identifies the stream in logs and metrics.
func (s *EventSource) Name() string { return "kavita" }

// signalRMessage is one frame of the SignalR JSON protocol.
type signalRMessage struct {
	Type      int               `json:"type"`
	Target    string            `json:"target,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

// kavitaNotification is the first argument of a hub invocation.
type kavitaNotification struct {
	Name      string          `json:"name"`
	EventType string          `json:"eventType"`
	Body      json.RawMessage `json:"body"`
}

type kavitaNotificationBody struct {
	SeriesID  int `json:"seriesId"`
	ChapterID int `json:"chapterId"`
	LibraryID int `json:"libraryId"`
}

// Listen connects to the hub and forwards events to sink until the stream
// ends or ctx is canceled.
func (s *EventSource) Listen(ctx context.Context, sink func(events.ChangeEvent)) error {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("kavita token for websocket: %w", err)
	}

	wsURL, err := s.websocketURL(token)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("kavita websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("kavita websocket dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	if err := s.handshake(conn); err != nil {
		return err
	}
	logging.Info().Str("url", s.baseURL).Msg("kavita event stream connected")

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kavita websocket read failed: %w", err)
		}
		for _, frame := range bytes.Split(payload, []byte{signalRSeparator}) {
			if len(frame) == 0 {
				continue
			}
			s.handleFrame(conn, frame, sink)
		}
	}
}

// handshake performs the SignalR protocol negotiation on a fresh socket.
func (s *EventSource) handshake(conn *websocket.Conn) error {
	request := append([]byte(`{"protocol":"json","version":1}`), signalRSeparator)
	if err := conn.WriteMessage(websocket.TextMessage, request); err != nil {
		return fmt.Errorf("kavita signalr handshake write failed: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("kavita signalr handshake read failed: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	response := bytes.TrimSuffix(payload, []byte{signalRSeparator})
	var handshakeErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(response, &handshakeErr); err == nil && handshakeErr.Error != "" {
		return fmt.Errorf("kavita signalr handshake rejected: %s", handshakeErr.Error)
	}
	return nil
}

func (s *EventSource) handleFrame(conn *websocket.Conn, frame []byte, sink func(events.ChangeEvent)) {
	var msg signalRMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		logging.Warn().Err(err).Msg("kavita signalr frame decode failed")
		return
	}

	switch msg.Type {
	case 1: // invocation
		if len(msg.Arguments) == 0 {
			return
		}
		s.handleNotification(msg.Arguments[0], sink)
	case 6: // ping, reply in kind
		pong := append([]byte(`{"type":6}`), signalRSeparator)
		if err := conn.WriteMessage(websocket.TextMessage, pong); err != nil {
			logging.Warn().Err(err).Msg("kavita signalr pong failed")
		}
	}
}

func (s *EventSource) handleNotification(arg json.RawMessage, sink func(events.ChangeEvent)) {
	var note kavitaNotification
	if err := json.Unmarshal(arg, &note); err != nil {
		logging.Warn().Err(err).Msg("kavita notification decode failed")
		return
	}

	// A finished scan means the server settled; flush pending work.
	if note.EventType == "ended" {
		sink(events.ChangeEvent{Type: events.QueueEmpty})
		return
	}

	var eventType events.Type
	switch note.Name {
	case "SeriesAdded", "ChapterAdded":
		eventType = events.BookAdded
	case "ChapterRemoved":
		eventType = events.BookDeleted
	case "SeriesRemoved":
		eventType = events.SeriesDeleted
	default:
		return
	}

	var body kavitaNotificationBody
	if err := json.Unmarshal(note.Body, &body); err != nil {
		logging.Warn().Err(err).Str("event", note.Name).Msg("kavita event body decode failed")
		return
	}

	libraryID := strconv.Itoa(body.LibraryID)
	if !s.libraryAllowed(libraryID) {
		return
	}

	ev := events.ChangeEvent{
		Type:      eventType,
		LibraryID: libraryID,
		SeriesID:  strconv.Itoa(body.SeriesID),
	}
	if body.ChapterID != 0 {
		ev.BookID = strconv.Itoa(body.ChapterID)
	}
	sink(ev)
}

func (s *EventSource) libraryAllowed(libraryID string) bool {
	if len(s.libraries) == 0 {
		return true
	}
	_, ok := s.libraries[libraryID]
	return ok
}

// websocketURL converts the base URL to the hub's ws(s) endpoint with the
// JWT passed as access_token, the way SignalR clients authenticate.
func (s *EventSource) websocketURL(token string) (string, error) {
	parsed, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	parsed.Path = "/hubs/messages"
	query := parsed.Query()
	query.Set("access_token", token)
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}
