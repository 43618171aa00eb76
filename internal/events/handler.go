// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/komf-project/komf/internal/logging"
	"github.com/komf-project/komf/internal/metrics"
)

// defaultReconnectBackoff is the fixed wait between resubscribe attempts
// after the change stream terminates.
const defaultReconnectBackoff = 5 * time.Second

// batchTopic is the in-process pub/sub topic batches are flushed to.
// Each handler owns its pub/sub instance, so no per-server prefix needed.
const batchTopic = "events.batch"

// Handler consumes one media server's change-event stream, debounces it
// into batches, and fans the batches out to registered listeners.
//
// Buffering happens under a single mutex; flushing swaps the buffers out
// atomically on the quiescence signal. Listener dispatch goes through a
// watermill gochannel pub/sub: every listener has its own subscription
// and goroutine, so a slow listener delays only itself.
type Handler struct {
	source  Source
	cleanup CleanupStore
	backoff time.Duration

	mu            sync.Mutex
	bookAdded     []ChangeEvent
	bookDeleted   []ChangeEvent
	seriesDeleted []ChangeEvent

	listeners []Listener
	pubsub    *gochannel.GoChannel

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewHandler creates a handler for one server's stream. Listeners must be
// registered before Start.
func NewHandler(source Source, cleanup CleanupStore) *Handler {
	return &Handler{
		source:  source,
		cleanup: cleanup,
		backoff: defaultReconnectBackoff,
	}
}

// SetReconnectBackoff overrides the wait between resubscribe attempts.
// Must be called before Start; non-positive values are ignored.
func (h *Handler) SetReconnectBackoff(d time.Duration) {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	if h.running || d <= 0 {
		return
	}
	h.backoff = d
}

// Register adds a listener. Listeners receive every batch flushed after
// Start, in registration order (though they execute concurrently).
func (h *Handler) Register(l Listener) {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	if h.running {
		panic("events: Register called after Start")
	}
	h.listeners = append(h.listeners, l)
}

// Start subscribes to the change stream and begins dispatching. The
// subscription reconnects with a fixed backoff until Stop is called.
func (h *Handler) Start(ctx context.Context) error {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	if h.running {
		return fmt.Errorf("events: handler for %s already started", h.source.Name())
	}

	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.pubsub = gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		newWatermillLogger(),
	)

	// Subscribe every listener before the listen loop can publish, so no
	// batch is flushed into the void.
	for _, l := range h.listeners {
		msgs, err := h.pubsub.Subscribe(runCtx, batchTopic)
		if err != nil {
			cancel()
			return fmt.Errorf("events: subscribe listener %s: %w", l.Name(), err)
		}
		h.wg.Add(1)
		go h.consume(runCtx, l, msgs)
	}

	h.wg.Add(1)
	go h.listenLoop(runCtx)

	h.running = true
	logging.Info().Str("server", h.source.Name()).Int("listeners", len(h.listeners)).Msg("event handler started")
	return nil
}

// Stop cancels the live subscription and all listener tasks, then waits
// for them to finish.
func (h *Handler) Stop() error {
	h.runMu.Lock()
	if !h.running {
		h.runMu.Unlock()
		return errors.New("events: handler is not running")
	}
	h.running = false
	cancel := h.cancel
	h.runMu.Unlock()

	cancel()
	h.wg.Wait()
	if err := h.pubsub.Close(); err != nil {
		logging.Warn().Err(err).Msg("event pub/sub close failed")
	}
	logging.Info().Str("server", h.source.Name()).Msg("event handler stopped")
	return nil
}

// listenLoop keeps the stream subscription alive until the context ends.
func (h *Handler) listenLoop(ctx context.Context) {
	defer h.wg.Done()

	for {
		err := h.source.Listen(ctx, func(ev ChangeEvent) { h.apply(ctx, ev) })
		if ctx.Err() != nil {
			return
		}
		metrics.EventStreamReconnects.WithLabelValues(h.source.Name()).Inc()
		logging.Warn().
			Err(err).
			Str("server", h.source.Name()).
			Dur("backoff", h.backoff).
			Msg("change-event stream ended, reconnecting")

		select {
		case <-time.After(h.backoff):
		case <-ctx.Done():
			return
		}
	}
}

// apply buffers one raw event or flushes on quiescence. Delete events
// also remove persisted match/thumbnail state synchronously; cleanup
// failures are logged and do not stop event application.
func (h *Handler) apply(ctx context.Context, ev ChangeEvent) {
	if ev.Type != QueueEmpty {
		metrics.ChangeEventsReceived.WithLabelValues(h.source.Name(), string(ev.Type)).Inc()
	}

	switch ev.Type {
	case BookAdded:
		h.mu.Lock()
		h.bookAdded = append(h.bookAdded, ev)
		h.mu.Unlock()

	case BookDeleted:
		h.mu.Lock()
		h.bookDeleted = append(h.bookDeleted, ev)
		h.mu.Unlock()
		if err := h.cleanup.DeleteBookThumbnails(ctx, h.source.Name(), ev.BookID); err != nil {
			logging.Warn().Err(err).Str("book", ev.BookID).Msg("book thumbnail cleanup failed")
		}

	case SeriesDeleted:
		h.mu.Lock()
		h.seriesDeleted = append(h.seriesDeleted, ev)
		h.mu.Unlock()
		if err := h.cleanup.DeleteMatch(ctx, h.source.Name(), ev.SeriesID); err != nil {
			logging.Warn().Err(err).Str("series", ev.SeriesID).Msg("match cleanup failed")
		}
		if err := h.cleanup.DeleteSeriesThumbnails(ctx, h.source.Name(), ev.SeriesID); err != nil {
			logging.Warn().Err(err).Str("series", ev.SeriesID).Msg("series thumbnail cleanup failed")
		}

	case QueueEmpty:
		h.flush()
	}
}

// flush atomically swaps out the pending buffers and publishes the batch.
// Empty flushes are dropped.
func (h *Handler) flush() {
	h.mu.Lock()
	batch := &Batch{
		Server:        h.source.Name(),
		BookAdded:     h.bookAdded,
		BookDeleted:   h.bookDeleted,
		SeriesDeleted: h.seriesDeleted,
	}
	h.bookAdded = nil
	h.bookDeleted = nil
	h.seriesDeleted = nil
	h.mu.Unlock()

	if len(batch.BookAdded) == 0 && len(batch.BookDeleted) == 0 && len(batch.SeriesDeleted) == 0 {
		return
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		logging.Error().Err(err).Msg("batch marshal failed")
		return
	}
	if err := h.pubsub.Publish(batchTopic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		logging.Error().Err(err).Msg("batch publish failed")
		return
	}
	metrics.EventBatchesFlushed.WithLabelValues(h.source.Name()).Inc()
	logging.Debug().
		Str("server", h.source.Name()).
		Int("added", len(batch.BookAdded)).
		Int("deleted", len(batch.BookDeleted)+len(batch.SeriesDeleted)).
		Msg("event batch flushed")
}

// consume delivers batches to one listener. A listener panic or slow run
// never affects other listeners; messages are always acked so the
// subscription keeps flowing.
func (h *Handler) consume(ctx context.Context, l Listener, msgs <-chan *message.Message) {
	defer h.wg.Done()

	for msg := range msgs {
		var batch Batch
		if err := json.Unmarshal(msg.Payload, &batch); err != nil {
			logging.Error().Err(err).Str("listener", l.Name()).Msg("batch unmarshal failed")
			msg.Ack()
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Error().Interface("panic", r).Str("listener", l.Name()).Msg("listener panicked")
				}
			}()
			l.HandleBatch(ctx, &batch)
		}()
		msg.Ack()
	}
}
