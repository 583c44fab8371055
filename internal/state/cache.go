// Package state implements the layered configuration subsystem: a
// time-bounded read-through cache over the persistent document store,
// plus the per-bot, per-group and per-user runtime state built on it.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"group-roulette-bot/internal/repository"
)

// DefaultTTL is the cache validity window before a document is
// re-fetched from the store.
const DefaultTTL = 600 * time.Second

// Store is the persistence port the caches read through. Implemented by
// repository.ConfigRepository.
type Store interface {
	FindDocument(ctx context.Context, collection string, entityID int64) ([]byte, error)
	Upsert(ctx context.Context, collection string, entityID int64, patch map[string]any) error
	AppendValue(ctx context.Context, collection string, entityID int64, key string, value int64) error
}

type cacheEntry[T any] struct {
	doc      *T // nil caches a missing document
	loadedAt time.Time
}

// Cache is a read-through cache of typed configuration documents keyed
// by entity id. Entries older than the TTL are reloaded on access; a
// fetch failure or missing document is cached as "no document" until the
// next expiry so nonexistent entities don't hammer the store.
//
// Loads run outside the lock. Concurrent loads for the same id may race
// and overwrite each other; the fetch is idempotent, so last write wins
// and nothing depends on a single loader.
type Cache[T any] struct {
	store      Store
	collection string
	ttl        time.Duration
	clock      func() time.Time

	mu      sync.Mutex
	entries map[int64]cacheEntry[T]
}

// NewCache creates a cache over one store collection. A non-positive ttl
// falls back to DefaultTTL.
func NewCache[T any](store Store, collection string, ttl time.Duration) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[T]{
		store:      store,
		collection: collection,
		ttl:        ttl,
		clock:      time.Now,
		entries:    make(map[int64]cacheEntry[T]),
	}
}

// Get returns the cached document for the entity, loading it from the
// store when absent or expired. A nil result means no document exists;
// callers treat that as all-defaults.
func (c *Cache[T]) Get(ctx context.Context, entityID int64) *T {
	now := c.clock()

	c.mu.Lock()
	entry, ok := c.entries[entityID]
	c.mu.Unlock()

	if ok && now.Sub(entry.loadedAt) <= c.ttl {
		return entry.doc
	}

	doc := c.fetch(ctx, entityID)

	c.mu.Lock()
	c.entries[entityID] = cacheEntry[T]{doc: doc, loadedAt: now}
	c.mu.Unlock()

	return doc
}

// fetch loads and decodes one document. Errors degrade to "no document".
func (c *Cache[T]) fetch(ctx context.Context, entityID int64) *T {
	data, err := c.store.FindDocument(ctx, c.collection, entityID)
	if err != nil {
		if !errors.Is(err, repository.ErrDocumentNotFound) {
			log.Warn().Err(err).
				Str("collection", c.collection).
				Int64("entity_id", entityID).
				Msg("Config fetch failed, caching as absent")
		}
		return nil
	}

	doc := new(T)
	if err := json.Unmarshal(data, doc); err != nil {
		log.Warn().Err(err).
			Str("collection", c.collection).
			Int64("entity_id", entityID).
			Msg("Config document malformed, caching as absent")
		return nil
	}

	return doc
}

// Set writes the patch through to the store. The memory tier is not
// updated; the next read may serve a stale document until the TTL
// expires, which is within the accepted staleness window.
func (c *Cache[T]) Set(ctx context.Context, entityID int64, patch map[string]any) error {
	return c.store.Upsert(ctx, c.collection, entityID, patch)
}

// Append appends a value to a list field of the persisted document,
// bypassing the memory tier like Set.
func (c *Cache[T]) Append(ctx context.Context, entityID int64, key string, value int64) error {
	return c.store.AppendValue(ctx, c.collection, entityID, key, value)
}

// Invalidate drops the cached entry so the next read hits the store.
func (c *Cache[T]) Invalidate(entityID int64) {
	c.mu.Lock()
	delete(c.entries, entityID)
	c.mu.Unlock()
}
