// Package lru provides the performer's decoded-block-payload cache.
//
// Backed by github.com/hashicorp/golang-lru/v2, the same bounded-cache
// library used throughout the retrieval pack (hashicorp/nomad,
// boba-network's erigon fork, grafana/tempo, datadog-agent) for exactly this
// shape of problem: a small, fixed-capacity cache of recently-used values
// keyed by an opaque id.
package lru

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/behrlich/blockwheel/internal/block"
	"github.com/behrlich/blockwheel/internal/constants"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = constants.DefaultCacheCapacity

// Cache holds immutable block payloads keyed by block id.
type Cache struct {
	inner *lru.Cache[block.Id, block.Bytes]
}

// New creates a cache holding at most capacity entries. Capacity <= 0 falls
// back to DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	inner, err := lru.New[block.Id, block.Bytes](capacity)
	if err != nil {
		// Only returns an error for a non-positive size, which we've just
		// guarded against.
		panic(err)
	}
	return &Cache{inner: inner}
}

// Get returns the cached payload for id, if present.
func (c *Cache) Get(id block.Id) (block.Bytes, bool) {
	return c.inner.Get(id)
}

// Insert caches bytes under id, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *Cache) Insert(id block.Id, bytes block.Bytes) {
	c.inner.Add(id, bytes)
}

// Invalidate removes any cached payload for id (e.g. after a delete).
func (c *Cache) Invalidate(id block.Id) {
	c.inner.Remove(id)
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	return c.inner.Len()
}
