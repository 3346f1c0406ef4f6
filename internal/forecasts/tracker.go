package forecasts

import (
	"sync"
	"time"
)

// DefaultTTL is how long a successful fetch keeps a spot fresh.
const DefaultTTL = 60 * time.Minute

// EvictFunc is invoked when a tracker entry is dropped.
type EvictFunc func(spotID int64, fetchedAt time.Time)

// FetchTracker remembers the last successful fetch per spot.
type FetchTracker interface {
	LastFetch(spotID int64) (time.Time, bool)
	MarkFetched(spotID int64, at time.Time)
	// OnEvict registers fn for evictions. MemoryTracker never evicts.
	OnEvict(fn EvictFunc)
}

// MemoryTracker is an in-process FetchTracker. Entries are only ever moved
// forward in time.
type MemoryTracker struct {
	mu      sync.RWMutex
	last    map[int64]time.Time
	onEvict EvictFunc
}

// NewMemoryTracker returns an empty MemoryTracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{last: make(map[int64]time.Time)}
}

func (t *MemoryTracker) LastFetch(spotID int64) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	at, ok := t.last[spotID]
	return at, ok
}

func (t *MemoryTracker) MarkFetched(spotID int64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.last[spotID]; ok && prev.After(at) {
		return
	}
	t.last[spotID] = at
}

func (t *MemoryTracker) OnEvict(fn EvictFunc) {
	t.mu.Lock()
	t.onEvict = fn
	t.mu.Unlock()
}

// isFresh reports whether spotID was fetched less than ttl before now.
func isFresh(tr FetchTracker, spotID int64, now time.Time, ttl time.Duration) bool {
	at, ok := tr.LastFetch(spotID)
	return ok && now.Sub(at) < ttl
}
