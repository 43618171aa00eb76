// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package throttle

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spreads permits evenly instead of allowing bursts. Every
// permit reserves a fixed interval/eventsPerInterval slice starting at
// max(now, cursor); the cursor advances by one slice per permit, so
// consecutive callers wake at monotonically non-decreasing, evenly spaced
// times.
type RateLimiter struct {
	permitDuration time.Duration
	counter        *ThroughputCounter

	mu     sync.Mutex
	cursor time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a smooth limiter allowing eventsPerInterval
// permits per interval, evenly spaced. Invalid configuration panics.
func NewRateLimiter(name string, eventsPerInterval int, interval time.Duration) *RateLimiter {
	validateInterval(eventsPerInterval, interval)

	return &RateLimiter{
		permitDuration: interval / time.Duration(eventsPerInterval),
		counter:        NewThroughputCounter(name),
		now:            time.Now,
		sleep:          sleepFor,
	}
}

// reserve computes the wake time for a permit request and, when commit is
// set, advances the cursor. Must be called with mu held.
func (l *RateLimiter) reserve(permits int, at time.Time, commit bool) time.Time {
	cursor := l.cursor
	if cursor.Before(at) {
		cursor = at
	}
	wake := cursor
	if commit {
		l.cursor = cursor.Add(l.permitDuration * time.Duration(permits))
	}
	return wake
}

// Acquire blocks until permits are granted or ctx is done. It returns the
// delay the caller slept; zero means the grant was immediate.
func (l *RateLimiter) Acquire(ctx context.Context, permits int) (time.Duration, error) {
	validatePermits(permits, l.permitDuration)
	if permits == 0 {
		return 0, ctx.Err()
	}

	l.mu.Lock()
	at := l.now()
	wake := l.reserve(permits, at, true)
	l.mu.Unlock()

	delay := wake.Sub(at)
	if delay < 0 {
		delay = 0
	}
	l.counter.record(classify(delay), permits, delay)

	if err := l.sleep(ctx, delay); err != nil {
		return delay, err
	}
	return delay, nil
}

// TryAcquire grants permits only if the computed wait does not exceed
// timeout. No state is committed on denial; the caller never sleeps past
// timeout.
func (l *RateLimiter) TryAcquire(permits int, timeout time.Duration) bool {
	validatePermits(permits, l.permitDuration)
	if permits == 0 {
		return true
	}

	l.mu.Lock()
	at := l.now()
	wake := l.reserve(permits, at, false)
	delay := wake.Sub(at)
	if delay < 0 {
		delay = 0
	}
	if delay > timeout {
		l.mu.Unlock()
		l.counter.record(Denied, permits, 0)
		return false
	}
	l.reserve(permits, at, true)
	l.mu.Unlock()

	l.counter.record(classify(delay), permits, delay)
	if delay > 0 {
		_ = l.sleep(context.Background(), delay)
	}
	return true
}

// Stats returns a snapshot of the per-kind decision counts.
func (l *RateLimiter) Stats() map[Kind]int64 {
	return l.counter.Stats()
}

// ResetStats clears statistics. Scheduling state is unaffected.
func (l *RateLimiter) ResetStats() {
	l.counter.ResetStats()
}
