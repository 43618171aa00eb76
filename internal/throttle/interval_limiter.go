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

// IntervalLimiter issues permits against a fixed-size window
// [intervalStart, intervalStart+interval). Up to eventsPerInterval permits
// are granted inside one window; when the window is exhausted the limiter
// advances it and callers wake at the new window start, so traffic bursts
// up to the window boundary.
//
// An optional warmup period grants everything immediately until the warmup
// deadline passes; the first acquisition at or after the deadline resets
// the window.
type IntervalLimiter struct {
	eventsPerInterval int
	interval          time.Duration
	counter           *ThroughputCounter

	mu             sync.Mutex
	cursor         int
	intervalStart  time.Time
	intervalEnd    time.Time
	warmupDeadline time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewIntervalLimiter creates a bursting limiter allowing eventsPerInterval
// permits per interval. A non-zero warmup grants everything immediately
// until now+warmup. Invalid configuration panics.
func NewIntervalLimiter(name string, eventsPerInterval int, interval, warmup time.Duration) *IntervalLimiter {
	validateInterval(eventsPerInterval, interval)

	l := &IntervalLimiter{
		eventsPerInterval: eventsPerInterval,
		interval:          interval,
		counter:           NewThroughputCounter(name),
		now:               time.Now,
		sleep:             sleepFor,
	}
	if warmup > 0 {
		l.warmupDeadline = time.Now().Add(warmup)
	}
	return l
}

// reserve computes the wake time for a permit request and, when commit is
// set, applies the state transition. Must be called with mu held.
func (l *IntervalLimiter) reserve(permits int, at time.Time, commit bool) time.Time {
	start, end, cursor, warmup := l.intervalStart, l.intervalEnd, l.cursor, l.warmupDeadline

	// Warmup: everything before the deadline is granted at time-of-call.
	// The first acquisition at or after the deadline resets the window.
	if !warmup.IsZero() {
		if at.Before(warmup) {
			return at
		}
		warmup = time.Time{}
		start = time.Time{}
	}

	if start.IsZero() || !at.Before(end) {
		start = at
		end = at.Add(l.interval)
		cursor = 0
	}

	if cursor >= l.eventsPerInterval {
		// Window exhausted: advance by however many full windows the
		// backlog spans and restart counting there.
		windows := (cursor + l.eventsPerInterval - 1) / l.eventsPerInterval
		start = start.Add(time.Duration(windows) * l.interval)
		end = start.Add(l.interval)
		cursor = 0
	}

	cursor += permits

	if commit {
		l.intervalStart, l.intervalEnd, l.cursor, l.warmupDeadline = start, end, cursor, warmup
	}
	return start
}

// permitDuration is the per-permit slice, used only for permit validation.
func (l *IntervalLimiter) permitDuration() time.Duration {
	return l.interval / time.Duration(l.eventsPerInterval)
}

// Acquire blocks until permits are granted or ctx is done. It returns the
// delay the caller slept; zero means the grant was immediate.
func (l *IntervalLimiter) Acquire(ctx context.Context, permits int) (time.Duration, error) {
	validatePermits(permits, l.permitDuration())
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
// timeout. The decision is made under the lock, so no state is committed
// on denial and the caller never sleeps past timeout.
func (l *IntervalLimiter) TryAcquire(permits int, timeout time.Duration) bool {
	validatePermits(permits, l.permitDuration())
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
func (l *IntervalLimiter) Stats() map[Kind]int64 {
	return l.counter.Stats()
}

// ResetStats clears statistics. Scheduling state is unaffected.
func (l *IntervalLimiter) ResetStats() {
	l.counter.ResetStats()
}
