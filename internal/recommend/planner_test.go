package recommend

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surfmaster/internal/types"
)

// --- Test Doubles ---

type fakeCatalog struct {
	spots []types.Spot
	err   error
}

func (f *fakeCatalog) FindAll(ctx context.Context) ([]types.Spot, error) {
	return f.spots, f.err
}

type fakeStore struct {
	samples  []types.ForecastSample
	err      error
	gotFrom  time.Time
	gotTo    time.Time
	numCalls int
}

func (f *fakeStore) FindBetween(ctx context.Context, from, to time.Time) ([]types.ForecastSample, error) {
	f.numCalls++
	f.gotFrom, f.gotTo = from, to
	return f.samples, f.err
}

type fakeMetrics struct {
	candidates, returned int
	calls                int
}

func (f *fakeMetrics) ObserveRecommendation(ctx context.Context, d time.Duration, candidates, returned int) {
	f.calls++
	f.candidates, f.returned = candidates, returned
}

// --- Helpers ---

var (
	t0  = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	now = time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }
func tp(t time.Time) *time.Time {
	return &t
}

func spot(id int64, name string) types.Spot {
	return types.Spot{
		ID:                 id,
		Name:               name,
		SwellBestDirection: types.DirectionN,
		WindBestDirection:  types.DirectionS,
		RecommendedLevel:   types.LevelIntermediate,
	}
}

// at builds a sample for spotID at t0+h hours. A perfect sample scores 100;
// wind speed raises the penalty and lowers the score.
func at(spotID int64, h int, windSpeed float64) types.ForecastSample {
	return types.ForecastSample{
		SpotID:         spotID,
		Timestamp:      t0.Add(time.Duration(h) * time.Hour),
		SwellDirection: types.DirectionN,
		SwellHeight:    f64(1.0),
		WindDirection:  types.DirectionS,
		WindSpeed:      f64(windSpeed),
	}
}

func validRequest() *types.RecommendationRequest {
	return &types.RecommendationRequest{
		Latitude:      f64(-27.6),
		Longitude:     f64(-48.4),
		UserLevel:     types.LevelIntermediate,
		Objective:     types.ObjectiveFun,
		MaxDistanceKm: f64(50),
		TimeStart:     tp(t0),
		TimeEnd:       tp(t0.Add(24 * time.Hour)),
	}
}

func newTestPlanner(c *fakeCatalog, s *fakeStore, opts ...Option) *Planner {
	opts = append([]Option{WithClock(types.FixedClock{T: now})}, opts...)
	return NewPlanner(c, s, nil, slog.New(slog.DiscardHandler), opts...)
}

// --- Tests ---

func TestRecommend_RanksAndTruncates(t *testing.T) {
	catalog := &fakeCatalog{spots: []types.Spot{
		spot(1, "Joaquina"), spot(2, "Mole"), spot(3, "Campeche"), spot(4, "Galheta"), spot(5, "Empty"),
	}}
	store := &fakeStore{samples: []types.ForecastSample{
		at(1, 0, 20), // 1: mediocre
		at(2, 0, 5),  // 2: perfect
		at(3, 0, 15),
		at(4, 0, 18),
	}}
	metrics := &fakeMetrics{}
	p := newTestPlanner(catalog, store, WithMetrics(metrics))

	resp, err := p.Recommend(context.Background(), validRequest())
	require.NoError(t, err)

	require.Len(t, resp.Recommendations, DefaultTopK)
	assert.Equal(t, int64(2), resp.Recommendations[0].SpotID)
	assert.Equal(t, int64(3), resp.Recommendations[1].SpotID)
	assert.Equal(t, int64(4), resp.Recommendations[2].SpotID)
	for i := 1; i < len(resp.Recommendations); i++ {
		assert.GreaterOrEqual(t, resp.Recommendations[i-1].Score, resp.Recommendations[i].Score)
	}

	assert.Equal(t, now, resp.GeneratedAt)
	assert.Equal(t, t0, resp.TimeStart)
	assert.Equal(t, 1, store.numCalls)
	assert.Equal(t, 1, metrics.calls)
	assert.Equal(t, 4, metrics.candidates)
	assert.Equal(t, 3, metrics.returned)
}

func TestRecommend_BestInstantPerSpot(t *testing.T) {
	catalog := &fakeCatalog{spots: []types.Spot{spot(1, "Joaquina")}}
	// Unsorted input: the planner must scan in time order and keep the
	// earliest of two equally perfect samples.
	store := &fakeStore{samples: []types.ForecastSample{
		at(1, 5, 3),
		at(1, 1, 20),
		at(1, 3, 3),
		at(1, 0, 22),
	}}
	p := newTestPlanner(catalog, store)

	resp, err := p.Recommend(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, resp.Recommendations, 1)

	item := resp.Recommendations[0]
	want := t0.Add(3 * time.Hour)
	assert.Equal(t, want, item.WindowStart)
	assert.Equal(t, want, item.WindowEnd)
	assert.Equal(t, want, item.Peak)
	assert.InDelta(t, 100.0, item.Score, 1e-9)
	assert.InDelta(t, 0.9, item.Confidence, 1e-9)
	assert.Len(t, item.Reasons, 3)
	assert.Empty(t, item.Risks)
	assert.Equal(t, "Joaquina", item.SpotName)
}

func TestRecommend_TiesKeepCatalogOrder(t *testing.T) {
	catalog := &fakeCatalog{spots: []types.Spot{spot(7, "B"), spot(3, "A"), spot(9, "C")}}
	store := &fakeStore{samples: []types.ForecastSample{at(9, 0, 5), at(3, 0, 5), at(7, 0, 5)}}
	p := newTestPlanner(catalog, store)

	req := validRequest()
	req.TopK = intp(2)
	resp, err := p.Recommend(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, resp.Recommendations, 2)
	assert.Equal(t, int64(7), resp.Recommendations[0].SpotID)
	assert.Equal(t, int64(3), resp.Recommendations[1].SpotID)
}

func TestRecommend_NoSamplesIsNotAnError(t *testing.T) {
	p := newTestPlanner(&fakeCatalog{spots: []types.Spot{spot(1, "A")}}, &fakeStore{})

	resp, err := p.Recommend(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Empty(t, resp.Recommendations)
}

func TestRecommend_IgnoresMinWindowHours(t *testing.T) {
	catalog := &fakeCatalog{spots: []types.Spot{spot(1, "A")}}
	store := &fakeStore{samples: []types.ForecastSample{at(1, 0, 5)}}
	p := newTestPlanner(catalog, store)

	req := validRequest()
	req.MinWindowHours = intp(6)
	resp, err := p.Recommend(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, resp.Recommendations, 1)
}

func TestRecommend_StorageErrors(t *testing.T) {
	dbErr := types.NewAppError(types.ErrCodeInternalDB, "failed to query forecasts", errors.New("boom"))

	t.Run("catalog", func(t *testing.T) {
		p := newTestPlanner(&fakeCatalog{err: dbErr}, &fakeStore{})
		_, err := p.Recommend(context.Background(), validRequest())
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	})

	t.Run("forecasts", func(t *testing.T) {
		p := newTestPlanner(&fakeCatalog{}, &fakeStore{err: dbErr})
		_, err := p.Recommend(context.Background(), validRequest())
		require.ErrorIs(t, err, dbErr)
	})
}

func TestRecommend_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *types.RecommendationRequest)
		code   types.ErrorCode
		msg    string
	}{
		{"latitude too high", func(r *types.RecommendationRequest) { r.Latitude = f64(91) }, types.ErrCodeValidationInvalidLat, "Latitude must be between -90 and 90"},
		{"latitude missing", func(r *types.RecommendationRequest) { r.Latitude = nil }, types.ErrCodeValidationMissingField, "Latitude and Longitude cannot be null"},
		{"longitude too low", func(r *types.RecommendationRequest) { r.Longitude = f64(-180.5) }, types.ErrCodeValidationInvalidLon, "Longitude must be between -180 and 180"},
		{"level missing", func(r *types.RecommendationRequest) { r.UserLevel = "" }, types.ErrCodeValidationMissingField, "User level cannot be null"},
		{"level unknown", func(r *types.RecommendationRequest) { r.UserLevel = "PRO" }, types.ErrCodeValidationInvalidLevel, ""},
		{"objective missing", func(r *types.RecommendationRequest) { r.Objective = "" }, types.ErrCodeValidationMissingField, "Objective cannot be null"},
		{"distance zero", func(r *types.RecommendationRequest) { r.MaxDistanceKm = f64(0) }, types.ErrCodeValidationInvalidDistance, ""},
		{"distance too far", func(r *types.RecommendationRequest) { r.MaxDistanceKm = f64(200.1) }, types.ErrCodeValidationInvalidDistance, ""},
		{"distance missing", func(r *types.RecommendationRequest) { r.MaxDistanceKm = nil }, types.ErrCodeValidationInvalidDistance, ""},
		{"start missing", func(r *types.RecommendationRequest) { r.TimeStart = nil }, types.ErrCodeValidationTimeWindow, "Invalid time range"},
		{"end before start", func(r *types.RecommendationRequest) { r.TimeEnd = tp(t0.Add(-time.Minute)) }, types.ErrCodeValidationTimeWindow, "Invalid time range"},
		{"top k zero", func(r *types.RecommendationRequest) { r.TopK = intp(0) }, types.ErrCodeValidationInvalidTopK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			p := newTestPlanner(&fakeCatalog{}, store)
			req := validRequest()
			tt.mutate(req)

			_, err := p.Recommend(context.Background(), req)

			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, 400, appErr.HTTPStatus())
			if tt.msg != "" {
				assert.Equal(t, tt.msg, appErr.Message)
			}
			assert.Zero(t, store.numCalls, "invalid requests must not reach storage")
		})
	}
}

func TestRecommend_EqualStartAndEndIsValid(t *testing.T) {
	p := newTestPlanner(&fakeCatalog{}, &fakeStore{})
	req := validRequest()
	req.TimeEnd = tp(t0)
	_, err := p.Recommend(context.Background(), req)
	assert.NoError(t, err)
}

func TestRecommend_NilRequest(t *testing.T) {
	p := newTestPlanner(&fakeCatalog{}, &fakeStore{})
	_, err := p.Recommend(context.Background(), nil)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
}

func TestRecommend_ValidationDetailsUseJSONNames(t *testing.T) {
	p := newTestPlanner(&fakeCatalog{}, &fakeStore{})
	req := validRequest()
	req.MaxDistanceKm = f64(-1)
	_, err := p.Recommend(context.Background(), req)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "max_distance_km", appErr.Details["field"])
}
