// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

// Package metadata implements the synchronization core: matching a
// library series against metadata providers, merging multi-provider
// results by priority, post-processing, and lock-aware write-back to
// the media server.
package metadata
