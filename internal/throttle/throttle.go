// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

// Package throttle implements the outbound request rate limiting used by
// every metadata provider call site.
//
// Two limiter variants share one contract:
//
//   - IntervalLimiter allows bursts: up to eventsPerInterval permits are
//     issued inside a fixed window, then callers wait for the next window.
//   - RateLimiter spreads permits evenly: every permit reserves a fixed
//     interval/eventsPerInterval slice, so calls never burst.
//
// Both variants keep their scheduling state behind a single mutex per
// instance and report every decision to a ThroughputCounter, a dedicated
// consumer goroutine that aggregates statistics off the scheduling-critical
// path. One limiter is created per (provider, call kind) pair at startup
// and lives for the process lifetime.
package throttle

import (
	"context"
	"fmt"
	"time"
)

// Kind classifies a limiter decision for statistics.
type Kind string

const (
	// GrantedImmediate counts permits granted without any sleep.
	GrantedImmediate Kind = "GRANTED_IMMEDIATE"
	// GrantedDelayed counts permits granted after the caller slept.
	GrantedDelayed Kind = "GRANTED_DELAYED"
	// Denied counts TryAcquire calls rejected because the wait would
	// have exceeded the caller's timeout.
	Denied Kind = "DENIED"
	// reset is the internal sentinel that clears the statistics map.
	reset Kind = "RESET"
)

// Limiter is the shared contract of both limiter variants.
//
// Acquire blocks until a permit is available (or ctx is done) and returns
// the delay the caller actually slept. TryAcquire never sleeps longer than
// timeout; it returns false without consuming a permit if the computed wait
// would exceed it.
type Limiter interface {
	Acquire(ctx context.Context, permits int) (time.Duration, error)
	TryAcquire(permits int, timeout time.Duration) bool
	Stats() map[Kind]int64
	ResetStats()
}

const (
	minInterval = 5 * time.Millisecond
	maxInterval = 24 * time.Hour

	// maxReservation bounds the total time a single Acquire call may
	// reserve. Requests beyond it are programmer errors, not load.
	maxReservation = 10 * 24 * time.Hour
)

// validateInterval panics if the limiter window configuration is invalid.
// Bad intervals are construction-time programmer errors and fail fast.
func validateInterval(eventsPerInterval int, interval time.Duration) {
	if eventsPerInterval < 1 {
		panic(fmt.Sprintf("throttle: eventsPerInterval must be >= 1, got %d", eventsPerInterval))
	}
	if interval <= minInterval {
		panic(fmt.Sprintf("throttle: interval must be > %v, got %v", minInterval, interval))
	}
	if interval > maxInterval {
		panic(fmt.Sprintf("throttle: interval must be <= %v, got %v", maxInterval, interval))
	}
}

// validatePermits panics if a permit request is out of range. maxPermits
// bounds the reservable time to maxReservation.
func validatePermits(permits int, permitDuration time.Duration) {
	if permits < 0 {
		panic(fmt.Sprintf("throttle: permits must be >= 0, got %d", permits))
	}
	maxPermits := int(maxReservation / permitDuration)
	if permits > maxPermits {
		panic(fmt.Sprintf("throttle: permits %d exceeds maximum %d", permits, maxPermits))
	}
}

// sleepFor waits for d or until ctx is done, whichever comes first.
func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classify maps a computed delay to its statistics kind. The
// classification reflects whether the caller actually slept.
func classify(delay time.Duration) Kind {
	if delay > 0 {
		return GrantedDelayed
	}
	return GrantedImmediate
}
