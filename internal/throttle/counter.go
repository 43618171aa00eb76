// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package throttle

import (
	"sync"
	"time"

	"github.com/komf-project/komf/internal/metrics"
)

// message is one limiter decision delivered to the counter worker.
type message struct {
	kind    Kind
	permits int
}

// ThroughputCounter aggregates limiter decisions on a single dedicated
// consumer goroutine. Limiter call sites only perform a channel send, so
// instrumentation never contends on the scheduling-critical lock.
//
// Counts are eventually consistent with respect to concurrent Acquire
// callers but monotonic per kind between resets: messages are consumed
// strictly in send order.
type ThroughputCounter struct {
	name string
	msgs chan message
	done chan struct{}

	mu    sync.RWMutex
	stats map[Kind]int64

	closeOnce sync.Once
}

// counterBuffer is sized so that senders virtually never block; a send
// that does block still preserves ordering.
const counterBuffer = 1024

// NewThroughputCounter creates a counter and starts its consumer
// goroutine. The name labels exported metrics, one counter per limiter.
func NewThroughputCounter(name string) *ThroughputCounter {
	c := &ThroughputCounter{
		name:  name,
		msgs:  make(chan message, counterBuffer),
		done:  make(chan struct{}),
		stats: make(map[Kind]int64),
	}
	go c.run()
	return c
}

func (c *ThroughputCounter) run() {
	defer close(c.done)
	for msg := range c.msgs {
		c.mu.Lock()
		if msg.kind == reset {
			c.stats = make(map[Kind]int64)
		} else {
			c.stats[msg.kind]++
		}
		c.mu.Unlock()
	}
}

// record enqueues one decision. Called by limiters only.
func (c *ThroughputCounter) record(kind Kind, permits int, delay time.Duration) {
	c.msgs <- message{kind: kind, permits: permits}
	metrics.ThrottleDecisions.WithLabelValues(c.name, string(kind)).Inc()
	if kind == GrantedImmediate || kind == GrantedDelayed {
		metrics.ThrottleDelay.WithLabelValues(c.name).Observe(delay.Seconds())
	}
}

// Stats returns a snapshot copy of the per-kind counts.
func (c *ThroughputCounter) Stats() map[Kind]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make(map[Kind]int64, len(c.stats))
	for k, v := range c.stats {
		snapshot[k] = v
	}
	return snapshot
}

// ResetStats enqueues a reset. It clears only statistics, never
// scheduling state, and takes effect after all previously sent messages.
func (c *ThroughputCounter) ResetStats() {
	c.msgs <- message{kind: reset}
}

// Close stops the consumer after draining queued messages. Intended for
// tests; production limiters live for the process lifetime.
func (c *ThroughputCounter) Close() {
	c.closeOnce.Do(func() { close(c.msgs) })
	<-c.done
}
