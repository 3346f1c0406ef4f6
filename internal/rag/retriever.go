// Package rag selects the few surf spots most relevant to a free-text
// question and renders them as grounding context for an assistant.
//
// Each spot is scored by a blend of embedding similarity between the
// question and the spot's canonical description, and a keyword heuristic
// over level, swell direction and wave height mentioned in the question.
// Embedding failures never fail retrieval: a deterministic character-sum
// vector is used instead and the context records a fallback reason.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"surfmaster/internal/embedcache"
	"surfmaster/internal/embedding"
	"surfmaster/internal/types"
)

// Fallback reasons recorded on a RagContext.
const (
	ReasonEmptyQuestion    = "empty question"
	ReasonEmbeddingFailure = "Could not generate embeddings. Using basic heuristics."
)

// DefaultWorkers bounds concurrent spot embedding calls.
const DefaultWorkers = 4

// SpotCatalog is the read-only source of spots.
type SpotCatalog interface {
	FindAll(ctx context.Context) ([]types.Spot, error)
	// FindByID returns nil, nil when the spot does not exist.
	FindByID(ctx context.Context, id int64) (*types.Spot, error)
}

// Recorder receives per-retrieval telemetry. Optional.
type Recorder interface {
	ObserveRetrieval(ctx context.Context, duration time.Duration, returned int, fallback bool)
}

// Retriever builds RagContexts. It is safe for concurrent use; the embedding
// cache is its only shared state.
type Retriever struct {
	catalog  SpotCatalog
	embedder embedding.Provider
	cache    embedcache.Cache
	workers  int
	recorder Recorder
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithWorkers sets how many spot embeddings may be computed concurrently.
func WithWorkers(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithRecorder attaches a telemetry recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Retriever) { r.recorder = rec }
}

// NewRetriever wires a Retriever. A nil cache gets an in-process
// MemoryCache and a nil logger falls back to slog.Default().
func NewRetriever(catalog SpotCatalog, embedder embedding.Provider, cache embedcache.Cache, logger *slog.Logger, opts ...Option) *Retriever {
	if cache == nil {
		cache = embedcache.NewMemoryCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Retriever{
		catalog:  catalog,
		embedder: embedder,
		cache:    cache,
		workers:  DefaultWorkers,
		logger:   logger,
		tracer:   otel.Tracer("surfmaster/rag"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// fallbackNote keeps the first fallback reason reported by any goroutine.
type fallbackNote struct {
	mu     sync.Mutex
	reason string
}

func (n *fallbackNote) set(reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.reason == "" {
		n.reason = reason
	}
}

func (n *fallbackNote) get() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reason
}

// RetrieveContext returns up to MaxRagSpots spots ranked for question. When
// preferredSpotID resolves to a spot, that spot is always first. An unknown
// preferredSpotID is ignored. The only error source is the spot catalog.
func (r *Retriever) RetrieveContext(ctx context.Context, question string, preferredSpotID *int64) (*types.RagContext, error) {
	ctx, span := r.tracer.Start(ctx, "rag.RetrieveContext")
	defer span.End()

	started := time.Now()
	out, err := r.retrieve(ctx, question, preferredSpotID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("spots", len(out.Spots)),
		attribute.Bool("fallback", out.UsedFallback()),
	)
	if r.recorder != nil {
		r.recorder.ObserveRetrieval(ctx, time.Since(started), len(out.Spots), out.UsedFallback())
	}
	return out, nil
}

func (r *Retriever) retrieve(ctx context.Context, question string, preferredSpotID *int64) (*types.RagContext, error) {
	pinned, err := r.resolvePin(ctx, preferredSpotID)
	if err != nil {
		return nil, err
	}

	out := &types.RagContext{Spots: []types.RagSpot{}}
	if pinned != nil {
		id := pinned.ID
		out.PreferredSpotID = &id
		out.PreferredSpotName = pinned.Name
	}

	if strings.TrimSpace(question) == "" {
		out.FallbackReason = ReasonEmptyQuestion
		return out, nil
	}

	var note fallbackNote
	questionVec := r.embed(ctx, question, &note)

	spots, err := r.catalog.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("rag: failed to load spots: %w", err)
	}

	sig := ExtractSignals(question)
	vectors := r.spotVectors(ctx, spots, &note)

	ranked := make([]types.RagSpot, len(spots))
	for i, spot := range spots {
		ranked[i] = score(spot, vectors[i], questionVec, sig)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Composite() > ranked[j].Composite()
	})
	if len(ranked) > types.MaxRagSpots {
		ranked = ranked[:types.MaxRagSpots]
	}

	if pinned != nil {
		ranked = pinFirst(ranked, score(*pinned, r.pinVector(ctx, *pinned, spots, vectors, &note), questionVec, sig))
	}

	out.Spots = ranked
	out.FallbackReason = note.get()

	r.logger.DebugContext(ctx, "Context retrieved",
		"catalog", len(spots),
		"returned", len(out.Spots),
		"pinned", pinned != nil,
		"fallback", out.FallbackReason,
	)
	return out, nil
}

func (r *Retriever) resolvePin(ctx context.Context, id *int64) (*types.Spot, error) {
	if id == nil {
		return nil, nil
	}
	spot, err := r.catalog.FindByID(ctx, *id)
	if err != nil {
		return nil, fmt.Errorf("rag: failed to load preferred spot %d: %w", *id, err)
	}
	return spot, nil
}

// pinVector reuses the catalog pass's vector for pin so that a failed
// embedding is not attempted twice in one request. Only a pin missing from
// the catalog listing is embedded separately.
func (r *Retriever) pinVector(ctx context.Context, pin types.Spot, spots []types.Spot, vectors [][]float64, note *fallbackNote) []float64 {
	for i, s := range spots {
		if s.ID == pin.ID {
			return vectors[i]
		}
	}
	return r.spotVectors(ctx, []types.Spot{pin}, note)[0]
}

// pinFirst places pin at the head of ranked, dropping any other occurrence,
// and truncates to MaxRagSpots.
func pinFirst(ranked []types.RagSpot, pin types.RagSpot) []types.RagSpot {
	out := make([]types.RagSpot, 0, len(ranked)+1)
	out = append(out, pin)
	for _, s := range ranked {
		if s.SpotID != pin.SpotID {
			out = append(out, s)
		}
	}
	if len(out) > types.MaxRagSpots {
		out = out[:types.MaxRagSpots]
	}
	return out
}

func score(spot types.Spot, spotVec, questionVec []float64, sig Signals) types.RagSpot {
	rs := types.RagSpot{
		SpotID:             spot.ID,
		Name:               spot.Name,
		RecommendedLevel:   spot.RecommendedLevel,
		SwellBestDirection: spot.SwellBestDirection,
		WindBestDirection:  spot.WindBestDirection,
		Notes:              spot.Notes,
		Similarity:         Cosine(questionVec, spotVec),
		Heuristic:          HeuristicScore(spot, sig),
	}
	rs.CompositeScore = rs.Composite()
	return rs
}

// embed makes a single embedding attempt. On failure it returns the
// fallback vector for text and records the reason in note.
func (r *Retriever) embed(ctx context.Context, text string, note *fallbackNote) []float64 {
	if r.embedder != nil {
		vec, err := r.embedder.Embed(ctx, text)
		if err == nil && len(vec) > 0 {
			return vec
		}
		if err == nil {
			err = errors.New("empty embedding")
		}
		r.logger.WarnContext(ctx, "Embedding failed, using fallback vector", "error", err)
	}
	note.set(ReasonEmbeddingFailure)
	return FallbackVector(text)
}

// spotVectors returns one vector per spot, in catalog order. Cached vectors
// are reused; misses are embedded on a bounded worker set and cached only
// when the provider succeeded.
func (r *Retriever) spotVectors(ctx context.Context, spots []types.Spot, note *fallbackNote) [][]float64 {
	vectors := make([][]float64, len(spots))

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, spot := range spots {
		desc := DescribeSpot(spot)
		fp := embedcache.Fingerprint(desc)
		if v, ok := r.cache.Get(ctx, spot.ID, fp); ok {
			vectors[i] = v
			continue
		}
		g.Go(func() error {
			var local fallbackNote
			vec := r.embed(ctx, desc, &local)
			if reason := local.get(); reason != "" {
				note.set(reason)
			} else {
				r.cache.Put(ctx, spot.ID, fp, vec)
			}
			vectors[i] = vec
			return nil
		})
	}
	_ = g.Wait()
	return vectors
}

// Warm embeds and caches every catalog spot that is not cached yet. It
// returns the number of spots that could not be embedded.
func (r *Retriever) Warm(ctx context.Context) (int, error) {
	spots, err := r.catalog.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("rag: failed to load spots: %w", err)
	}

	var note fallbackNote
	r.spotVectors(ctx, spots, &note)

	failed := 0
	for _, s := range spots {
		if _, ok := r.cache.Get(ctx, s.ID, embedcache.Fingerprint(DescribeSpot(s))); !ok {
			failed++
		}
	}
	r.logger.InfoContext(ctx, "Spot embeddings warmed", "spots", len(spots), "failed", failed, "cached", r.cache.Len())
	return failed, nil
}
