package forecasts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"surfmaster/internal/types"
)

// DefaultConcurrency bounds concurrent provider calls during a sync.
const DefaultConcurrency = 4

// Provider fetches forecast samples for one spot.
type Provider interface {
	Source() types.ForecastSourceName
	Supports(spot types.Spot) bool
	// Fetch returns samples in ascending time order. A zero to means the
	// provider's default horizon.
	Fetch(ctx context.Context, spot types.Spot, from, to time.Time) ([]types.ForecastSample, error)
}

// SpotSource is the catalog the syncer iterates.
type SpotSource interface {
	FindAll(ctx context.Context) ([]types.Spot, error)
	FindByID(ctx context.Context, id int64) (*types.Spot, error)
}

// SampleWriter persists fetched samples.
type SampleWriter interface {
	Upsert(ctx context.Context, samples []types.ForecastSample) (int, error)
}

// Recorder receives per-spot sync outcomes. Optional.
type Recorder interface {
	ForecastSynced(provider string, saved int)
	ForecastSyncFailed(provider string)
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	RequestID      string  `json:"request_id,omitempty"`
	RefreshedSpots int     `json:"refreshed_spots"`
	SkippedSpots   int     `json:"skipped_spots"`
	SavedForecasts int     `json:"saved_forecasts"`
	FailedSpotIDs  []int64 `json:"failed_spot_ids"`
}

// SyncerConfig wires a Syncer.
type SyncerConfig struct {
	Provider    Provider
	Spots       SpotSource
	Store       SampleWriter
	Tracker     FetchTracker
	TTL         time.Duration
	Concurrency int
	Clock       types.Clock
	Recorder    Recorder
	Logger      *slog.Logger
}

// Syncer refreshes stored forecasts from a Provider.
type Syncer struct {
	provider    Provider
	spots       SpotSource
	store       SampleWriter
	tracker     FetchTracker
	ttl         time.Duration
	concurrency int
	clock       types.Clock
	recorder    Recorder
	logger      *slog.Logger
}

// NewSyncer applies defaults to cfg.
func NewSyncer(cfg SyncerConfig) *Syncer {
	s := &Syncer{
		provider:    cfg.Provider,
		spots:       cfg.Spots,
		store:       cfg.Store,
		tracker:     cfg.Tracker,
		ttl:         cfg.TTL,
		concurrency: cfg.Concurrency,
		clock:       cfg.Clock,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger,
	}
	if s.tracker == nil {
		s.tracker = NewMemoryTracker()
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.clock == nil {
		s.clock = types.RealClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Sync refreshes the spots named by req, or the whole catalog when
// req.SpotIDs is empty. Spots fetched within the TTL are skipped unless
// req.Force is set. Unknown spot ids are ignored. Only a catalog failure is
// returned as an error.
func (s *Syncer) Sync(ctx context.Context, req types.SyncRequestMessage) (*SyncResult, error) {
	ctx, span := otel.Tracer("surfmaster/forecasts").Start(ctx, "forecasts.Sync")
	defer span.End()

	spots, err := s.targets(ctx, req.SpotIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := s.clock.Now()
	provider := string(s.provider.Source())
	result := &SyncResult{RequestID: req.RequestID, FailedSpotIDs: []int64{}}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, spot := range spots {
		if !s.provider.Supports(spot) || (!req.Force && isFresh(s.tracker, spot.ID, now, s.ttl)) {
			result.SkippedSpots++
			continue
		}
		g.Go(func() error {
			saved, err := s.syncSpot(ctx, spot, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.WarnContext(ctx, "Forecast sync failed for spot",
					"spot_id", spot.ID,
					"spot", spot.Name,
					"error", err,
				)
				result.FailedSpotIDs = append(result.FailedSpotIDs, spot.ID)
				if s.recorder != nil {
					s.recorder.ForecastSyncFailed(provider)
				}
				return nil
			}
			result.RefreshedSpots++
			result.SavedForecasts += saved
			if s.recorder != nil {
				s.recorder.ForecastSynced(provider, saved)
			}
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("refreshed", result.RefreshedSpots),
		attribute.Int("skipped", result.SkippedSpots),
		attribute.Int("failed", len(result.FailedSpotIDs)),
	)
	s.logger.InfoContext(ctx, "Forecast sync complete",
		"request_id", req.RequestID,
		"refreshed", result.RefreshedSpots,
		"skipped", result.SkippedSpots,
		"saved", result.SavedForecasts,
		"failed", len(result.FailedSpotIDs),
	)
	return result, nil
}

func (s *Syncer) syncSpot(ctx context.Context, spot types.Spot, now time.Time) (int, error) {
	samples, err := s.provider.Fetch(ctx, spot, now, time.Time{})
	if err != nil {
		return 0, err
	}
	saved := 0
	if len(samples) > 0 {
		saved, err = s.store.Upsert(ctx, samples)
		if err != nil {
			return saved, err
		}
	}
	s.tracker.MarkFetched(spot.ID, now)
	return saved, nil
}

func (s *Syncer) targets(ctx context.Context, ids []int64) ([]types.Spot, error) {
	if len(ids) == 0 {
		spots, err := s.spots.FindAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("forecasts: failed to load spots: %w", err)
		}
		return spots, nil
	}

	seen := make(map[int64]bool, len(ids))
	spots := make([]types.Spot, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		spot, err := s.spots.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("forecasts: failed to load spot %d: %w", id, err)
		}
		if spot == nil {
			s.logger.WarnContext(ctx, "Sync requested for unknown spot", "spot_id", id)
			continue
		}
		spots = append(spots, *spot)
	}
	return spots, nil
}
