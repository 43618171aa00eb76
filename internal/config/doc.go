// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

// Package config loads and validates application configuration from
// layered sources using Koanf v2: built-in defaults, an optional YAML
// config file, and environment variables, in ascending priority.
//
// The resulting Config is immutable and safe for concurrent reads. Media
// server metadata settings resolve per library through
// MetadataUpdateConfig.ForLibrary, which falls back to the default block
// when a library has no override.
package config
