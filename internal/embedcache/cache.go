// Package embedcache memoizes per-spot description embeddings.
//
// The in-process MemoryCache is grow-only: a vector stored for a spot is kept
// for the lifetime of the process and never replaced with a different value
// under normal operation. Concurrent misses for the same spot may both
// compute and store a vector; the last write wins. The optional Qdrant tier
// survives restarts so that a fresh process does not re-embed the catalog.
//
// Every lookup carries a fingerprint of the text that was embedded.
// Persistent tiers treat a stored vector with a different fingerprint as a
// miss, so a spot edited between runs is re-embedded on the next start.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// EvictFunc is invoked when an entry leaves a cache.
type EvictFunc func(spotID int64, vector []float64)

// Fingerprint returns a stable digest of an embedded description.
func Fingerprint(description string) string {
	sum := sha256.Sum256([]byte(description))
	return hex.EncodeToString(sum[:16])
}

// Cache stores at most one vector per spot id.
type Cache interface {
	Get(ctx context.Context, spotID int64, fingerprint string) ([]float64, bool)
	Put(ctx context.Context, spotID int64, fingerprint string, vector []float64)
	Len() int
	// OnEvict registers fn for evictions. Grow-only implementations never
	// call it.
	OnEvict(fn EvictFunc)
}

// Recorder receives hit/miss notifications. Optional.
type Recorder interface {
	CacheHit(tier string)
	CacheMiss(tier string)
}

// MemoryCache is a concurrency-safe, grow-only map. Entries live for the
// process lifetime, so fingerprints are not compared.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[int64][]float64
	onEvict EvictFunc
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[int64][]float64)}
}

func (c *MemoryCache) Get(_ context.Context, spotID int64, _ string) ([]float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[spotID]
	return v, ok
}

// Put stores a copy of vector. Empty vectors are ignored.
func (c *MemoryCache) Put(_ context.Context, spotID int64, _ string, vector []float64) {
	if len(vector) == 0 {
		return
	}
	cp := make([]float64, len(vector))
	copy(cp, vector)

	c.mu.Lock()
	c.entries[spotID] = cp
	c.mu.Unlock()
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) OnEvict(fn EvictFunc) {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
}
