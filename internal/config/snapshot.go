// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package config

import "sync/atomic"

// current holds the active configuration snapshot. A Config is immutable
// once published; reloads swap the whole pointer so readers never see a
// half-updated configuration.
var current atomic.Pointer[Config]

// Store publishes cfg as the active configuration.
func Store(cfg *Config) {
	current.Store(cfg)
}

// Current returns the active configuration snapshot, or nil before the
// first Store.
func Current() *Config {
	return current.Load()
}

// Reload loads and validates the configuration from the same sources as
// Load and publishes it on success. On failure the previous snapshot
// stays active.
func Reload() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	current.Store(cfg)
	return cfg, nil
}
