package embedcache

import (
	"context"
	"log/slog"
)

// VectorStore is a persistent second-level store. Load reports ok=false
// when the stored vector was saved under a different fingerprint.
type VectorStore interface {
	Load(ctx context.Context, spotID int64, fingerprint string) ([]float64, bool, error)
	Save(ctx context.Context, spotID int64, fingerprint string, vector []float64) error
}

// Tiered fronts a VectorStore with a MemoryCache. Reads that hit the store
// are promoted into memory; writes go to both. Store failures are logged and
// never surface to callers.
type Tiered struct {
	mem      *MemoryCache
	store    VectorStore
	recorder Recorder
	logger   *slog.Logger
}

// NewTiered creates a Tiered cache. store may be nil, in which case Tiered
// behaves like its MemoryCache.
func NewTiered(mem *MemoryCache, store VectorStore, recorder Recorder, logger *slog.Logger) *Tiered {
	if mem == nil {
		mem = NewMemoryCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiered{mem: mem, store: store, recorder: recorder, logger: logger}
}

func (t *Tiered) Get(ctx context.Context, spotID int64, fingerprint string) ([]float64, bool) {
	if v, ok := t.mem.Get(ctx, spotID, fingerprint); ok {
		t.hit("memory")
		return v, true
	}
	t.miss("memory")

	if t.store == nil {
		return nil, false
	}

	v, ok, err := t.store.Load(ctx, spotID, fingerprint)
	if err != nil {
		t.logger.WarnContext(ctx, "vector store load failed", "spot_id", spotID, "error", err)
		return nil, false
	}
	if !ok || len(v) == 0 {
		t.miss("store")
		return nil, false
	}
	t.hit("store")
	t.mem.Put(ctx, spotID, fingerprint, v)
	return v, true
}

func (t *Tiered) Put(ctx context.Context, spotID int64, fingerprint string, vector []float64) {
	t.mem.Put(ctx, spotID, fingerprint, vector)
	if t.store == nil || len(vector) == 0 {
		return
	}
	if err := t.store.Save(ctx, spotID, fingerprint, vector); err != nil {
		t.logger.WarnContext(ctx, "vector store save failed", "spot_id", spotID, "error", err)
	}
}

func (t *Tiered) Len() int { return t.mem.Len() }

func (t *Tiered) OnEvict(fn EvictFunc) { t.mem.OnEvict(fn) }

func (t *Tiered) hit(tier string) {
	if t.recorder != nil {
		t.recorder.CacheHit(tier)
	}
}

func (t *Tiered) miss(tier string) {
	if t.recorder != nil {
		t.recorder.CacheMiss(tier)
	}
}
