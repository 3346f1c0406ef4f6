// Package recommend ranks surf spots for a time range. For each spot it picks
// the single best-scoring forecast instant inside the range, then orders the
// spots by that score and keeps the top K.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"surfmaster/internal/scoring"
	"surfmaster/internal/types"
)

// DefaultTopK is used when the request does not set TopK.
const DefaultTopK = 3

// SpotCatalog is the read-only source of spots.
type SpotCatalog interface {
	FindAll(ctx context.Context) ([]types.Spot, error)
}

// ForecastStore is the read-only source of forecast samples.
type ForecastStore interface {
	// FindBetween returns samples for every spot with from <= timestamp <= to.
	FindBetween(ctx context.Context, from, to time.Time) ([]types.ForecastSample, error)
}

// MetricsRecorder receives per-run telemetry. Optional.
type MetricsRecorder interface {
	ObserveRecommendation(ctx context.Context, duration time.Duration, candidates, returned int)
}

// Planner produces ranked recommendations. It holds no per-request state.
type Planner struct {
	spots     SpotCatalog
	forecasts ForecastStore
	engine    *scoring.Engine
	validate  *validator.Validate
	clock     types.Clock
	metrics   MetricsRecorder
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures a Planner.
type Option func(*Planner)

// WithClock overrides the clock used for GeneratedAt.
func WithClock(c types.Clock) Option {
	return func(p *Planner) { p.clock = c }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(p *Planner) { p.metrics = m }
}

// NewPlanner wires a Planner. A nil engine gets a default scoring.Engine and a
// nil logger falls back to slog.Default().
func NewPlanner(spots SpotCatalog, forecasts ForecastStore, engine *scoring.Engine, logger *slog.Logger, opts ...Option) *Planner {
	if engine == nil {
		engine = scoring.NewEngine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Planner{
		spots:     spots,
		forecasts: forecasts,
		engine:    engine,
		validate:  newValidator(),
		clock:     types.RealClock{},
		logger:    logger,
		tracer:    otel.Tracer("surfmaster/recommend"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Recommend validates req, scores every in-range sample, and returns the best
// window per spot ranked by score descending. Spots with no samples in range
// are omitted. Invalid input yields a validation AppError.
func (p *Planner) Recommend(ctx context.Context, req *types.RecommendationRequest) (*types.RecommendationResponse, error) {
	ctx, span := p.tracer.Start(ctx, "recommend.Recommend")
	defer span.End()

	started := time.Now()

	if err := p.validateRequest(req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}

	start, end := req.TimeStart.UTC(), req.TimeEnd.UTC()
	topK := DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	span.SetAttributes(
		attribute.String("user_level", string(req.UserLevel)),
		attribute.String("objective", string(req.Objective)),
		attribute.Int("top_k", topK),
	)

	spots, err := p.spots.FindAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("recommend: failed to load spots: %w", err)
	}

	samples, err := p.forecasts.FindBetween(ctx, start, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("recommend: failed to load forecasts: %w", err)
	}

	bySpot := groupBySpot(samples)
	items := make([]types.RecommendationItem, 0, len(spots))
	for _, spot := range spots {
		spotSamples := bySpot[spot.ID]
		if len(spotSamples) == 0 {
			continue
		}
		items = append(items, p.bestWindow(spot, spotSamples, req.UserLevel, req.Objective))
	}

	candidates := len(items)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	if len(items) > topK {
		items = items[:topK]
	}

	p.logger.DebugContext(ctx, "Recommendations computed",
		"spots", len(spots),
		"samples", len(samples),
		"candidates", candidates,
		"returned", len(items),
	)
	if p.metrics != nil {
		p.metrics.ObserveRecommendation(ctx, time.Since(started), candidates, len(items))
	}

	return &types.RecommendationResponse{
		GeneratedAt:     p.clock.Now(),
		TimeStart:       start,
		TimeEnd:         end,
		Recommendations: items,
	}, nil
}

// bestWindow scores samples in ascending time order and keeps the first
// sample with the highest score.
func (p *Planner) bestWindow(spot types.Spot, samples []types.ForecastSample, level types.UserLevel, objective types.Objective) types.RecommendationItem {
	var (
		best     types.ForecastSample
		bestEval scoring.Evaluation
		found    bool
	)
	for _, s := range samples {
		ev := p.engine.Evaluate(spot, s, level, objective)
		if !found || ev.Score > bestEval.Score {
			best, bestEval, found = s, ev, true
		}
	}
	return types.RecommendationItem{
		SpotID:      spot.ID,
		SpotName:    spot.Name,
		WindowStart: best.Timestamp,
		WindowEnd:   best.Timestamp,
		Peak:        best.Timestamp,
		Score:       bestEval.Score,
		Reasons:     bestEval.Reasons,
		Risks:       bestEval.Risks,
		Confidence:  bestEval.Confidence,
	}
}

// groupBySpot buckets samples per spot, each bucket sorted by timestamp.
func groupBySpot(samples []types.ForecastSample) map[int64][]types.ForecastSample {
	out := make(map[int64][]types.ForecastSample)
	for _, s := range samples {
		out[s.SpotID] = append(out[s.SpotID], s)
	}
	for id := range out {
		bucket := out[id]
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].Timestamp.Before(bucket[j].Timestamp)
		})
	}
	return out
}
