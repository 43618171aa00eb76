// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

// Package provcache caches provider search results and series documents
// in BadgerDB with a TTL, so repeated syncs of the same library don't
// burn provider rate-limit budget on identical lookups.
package provcache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/komf-project/komf/internal/logging"
	"github.com/komf-project/komf/internal/providers"
)

// Key prefixes for BadgerDB storage
const (
	searchKeyPrefix = "search:"
	seriesKeyPrefix = "series:"
)

// Cache is a TTL-bound provider response cache.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// Open creates or opens the cache at path.
func Open(path string, ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open provider cache: %w", err)
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// OpenInMemory creates an ephemeral cache, used in tests.
func OpenInMemory(ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open provider cache: %w", err)
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Close flushes and closes the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}

// RunGC runs one value-log garbage collection pass. Badger returns
// ErrNoRewrite when nothing was reclaimed; that is reported as false,
// not as an error. In-memory caches have no value log and are a no-op.
func (c *Cache) RunGC(discardRatio float64) (bool, error) {
	if c.db.Opts().InMemory {
		return false, nil
	}
	err := c.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("provider cache gc: %w", err)
	}
	return true, nil
}

// GetSearch returns cached search results for a provider/title pair.
func (c *Cache) GetSearch(provider, title string) ([]providers.SearchResult, bool) {
	var results []providers.SearchResult
	if !c.get(searchKey(provider, title), &results) {
		return nil, false
	}
	return results, true
}

// PutSearch caches search results with the configured TTL.
func (c *Cache) PutSearch(provider, title string, results []providers.SearchResult) error {
	return c.put(searchKey(provider, title), results)
}

// GetSeries returns a cached series document.
func (c *Cache) GetSeries(provider, seriesID string) (*providers.SeriesMetadata, bool) {
	var meta providers.SeriesMetadata
	if !c.get(seriesKey(provider, seriesID), &meta) {
		return nil, false
	}
	return &meta, true
}

// PutSeries caches a series document with the configured TTL.
func (c *Cache) PutSeries(provider, seriesID string, meta *providers.SeriesMetadata) error {
	return c.put(seriesKey(provider, seriesID), meta)
}

func (c *Cache) get(key string, out any) bool {
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logging.Warn().Err(err).Str("key", key).Msg("provider cache read failed")
		}
		return false
	}
	return true
}

func (c *Cache) put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
}

func searchKey(provider, title string) string {
	return searchKeyPrefix + provider + ":" + strings.ToLower(strings.TrimSpace(title))
}

func seriesKey(provider, seriesID string) string {
	return seriesKeyPrefix + provider + ":" + seriesID
}
