// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
	"github.com/MeridianCare/MeridianAgent/services/safety"
)

// cacheKeyPrefix namespaces retrieval entries so the database can be
// shared with other local state.
const cacheKeyPrefix = "retrieval:"

// DefaultCacheTTL bounds how stale a cached knowledge search may be.
const DefaultCacheTTL = 15 * time.Minute

// KnowledgeSource is the search collaborator the cache wraps. It matches
// the pipeline's knowledge capability so the cache is a drop-in layer.
type KnowledgeSource interface {
	Search(ctx context.Context, query string, limit int) ([]datatypes.RawHit, error)
}

// CachedKnowledgeSource wraps a KnowledgeSource with a BadgerDB-backed
// TTL cache.
//
// # Description
//
// Keys are the folded query text, so trivially rephrased punctuation or
// casing still hits. Entries expire via Badger's native TTL; a cache miss
// or any cache error falls through to the underlying source, never to the
// caller.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide isolation.
type CachedKnowledgeSource struct {
	source KnowledgeSource
	db     *badger.DB
	ttl    time.Duration
}

// NewCachedKnowledgeSource wraps source with the given database. A zero or
// negative ttl uses DefaultCacheTTL.
func NewCachedKnowledgeSource(source KnowledgeSource, db *badger.DB, ttl time.Duration) (*CachedKnowledgeSource, error) {
	if source == nil {
		return nil, errors.New("source must not be nil")
	}
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedKnowledgeSource{source: source, db: db, ttl: ttl}, nil
}

// Search implements KnowledgeSource with read-through caching.
func (c *CachedKnowledgeSource) Search(ctx context.Context, query string, limit int) ([]datatypes.RawHit, error) {
	key := c.cacheKey(query, limit)

	if hits, ok := c.lookup(key); ok {
		slog.Debug("Knowledge cache hit", "key", key, "hits", len(hits))
		return hits, nil
	}

	hits, err := c.source.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	c.store(key, hits)
	return hits, nil
}

func (c *CachedKnowledgeSource) cacheKey(query string, limit int) string {
	return fmt.Sprintf("%s%d:%s", cacheKeyPrefix, limit, safety.FoldKey(query))
}

func (c *CachedKnowledgeSource) lookup(key string) ([]datatypes.RawHit, bool) {
	var hits []datatypes.RawHit
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &hits)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		slog.Warn("Knowledge cache lookup failed, falling through", "error", err)
		return nil, false
	}
	return hits, true
}

func (c *CachedKnowledgeSource) store(key string, hits []datatypes.RawHit) {
	payload, err := json.Marshal(hits)
	if err != nil {
		slog.Warn("Failed to marshal hits for cache", "error", err)
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), payload).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		slog.Warn("Failed to store knowledge cache entry", "error", err)
	}
}
