// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/komf-project/komf/internal/logging"
)

// Runner is a component with an explicit start/stop lifecycle, like the
// media server event handlers. RunnerService adapts it to suture's
// blocking Serve contract.
type Runner interface {
	Start(ctx context.Context) error
	Stop() error
}

// RunnerService runs a Runner under supervision: Start, block until the
// supervisor cancels, Stop.
type RunnerService struct {
	runner Runner
	name   string
}

// NewRunnerService wraps runner. The name identifies the service in
// supervisor logs.
func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service. A Start failure is returned to the
// supervisor, which applies its restart policy.
func (s *RunnerService) Serve(ctx context.Context) error {
	if err := s.runner.Start(ctx); err != nil {
		return fmt.Errorf("%s start: %w", s.name, err)
	}
	<-ctx.Done()
	if err := s.runner.Stop(); err != nil {
		logging.Warn().Str("service", s.name).Err(err).Msg("Service stop failed")
	}
	return ctx.Err()
}

func (s *RunnerService) String() string { return s.name }

// GCable is a store with a manual garbage collection pass, satisfied by
// the provider cache.
type GCable interface {
	RunGC(discardRatio float64) (bool, error)
}

const cacheGCDiscardRatio = 0.5

// CacheGCService periodically reclaims space in a GCable store.
type CacheGCService struct {
	store    GCable
	interval time.Duration
}

// NewCacheGCService creates the maintenance loop. Intervals below one
// minute are raised to one minute.
func NewCacheGCService(store GCable, interval time.Duration) *CacheGCService {
	if interval < time.Minute {
		interval = time.Minute
	}
	return &CacheGCService{store: store, interval: interval}
}

// Serve implements suture.Service.
func (s *CacheGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			reclaimed, err := s.store.RunGC(cacheGCDiscardRatio)
			if err != nil {
				logging.Warn().Err(err).Msg("Cache maintenance pass failed")
				continue
			}
			if reclaimed {
				logging.Debug().Msg("Cache maintenance reclaimed space")
			}
		}
	}
}

func (s *CacheGCService) String() string { return "cache-gc" }
