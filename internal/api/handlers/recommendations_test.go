package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surfmaster/internal/types"
)

type mockRecommender struct {
	recommendFn func(ctx context.Context, req *types.RecommendationRequest) (*types.RecommendationResponse, error)
	lastReq     *types.RecommendationRequest
}

func (m *mockRecommender) Recommend(ctx context.Context, req *types.RecommendationRequest) (*types.RecommendationResponse, error) {
	m.lastReq = req
	if m.recommendFn != nil {
		return m.recommendFn(ctx, req)
	}
	return &types.RecommendationResponse{Recommendations: []types.RecommendationItem{}}, nil
}

func TestHandleRecommend_Success(t *testing.T) {
	peak := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	planner := &mockRecommender{
		recommendFn: func(_ context.Context, _ *types.RecommendationRequest) (*types.RecommendationResponse, error) {
			return &types.RecommendationResponse{
				Recommendations: []types.RecommendationItem{{
					SpotID:      7,
					SpotName:    "Praia do Rosa",
					WindowStart: peak,
					WindowEnd:   peak,
					Peak:        peak,
					Score:       0.82,
					Confidence:  0.72,
				}},
			}, nil
		},
	}
	router := makeRouter(NewRecommendationHandler(planner, nil).RegisterRoutes)

	body := map[string]any{
		"latitude":        -28.1,
		"longitude":       -48.6,
		"user_level":      "INTERMEDIATE",
		"objective":       "FUN",
		"max_distance_km": 50,
		"time_start":      "2025-06-01T06:00:00Z",
		"time_end":        "2025-06-01T18:00:00Z",
		"top_k":           3,
	}
	rec := doJSON(t, router, http.MethodPost, "/v1/recommendations", body)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[types.RecommendationResponse](t, rec)
	require.Len(t, resp.Recommendations, 1)
	assert.Equal(t, int64(7), resp.Recommendations[0].SpotID)

	require.NotNil(t, planner.lastReq)
	require.NotNil(t, planner.lastReq.TopK)
	assert.Equal(t, 3, *planner.lastReq.TopK)
	assert.Equal(t, types.LevelIntermediate, planner.lastReq.UserLevel)
}

func TestHandleRecommend_MalformedBody(t *testing.T) {
	planner := &mockRecommender{}
	router := makeRouter(NewRecommendationHandler(planner, nil).RegisterRoutes)

	rec := doJSON(t, router, http.MethodPost, "/v1/recommendations", `{"latitude":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidJSON), decodeError(t, rec).Code)
	assert.Nil(t, planner.lastReq)
}

func TestHandleRecommend_PlannerErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{
			name:       "validation error from planner",
			err:        types.NewAppError(types.ErrCodeValidationInvalidLat, "latitude out of range", nil),
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrCodeValidationInvalidLat,
		},
		{
			name:       "unexpected error",
			err:        errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   types.ErrCodeInternalUnexpected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := &mockRecommender{
				recommendFn: func(context.Context, *types.RecommendationRequest) (*types.RecommendationResponse, error) {
					return nil, tt.err
				},
			}
			router := makeRouter(NewRecommendationHandler(planner, nil).RegisterRoutes)

			rec := doJSON(t, router, http.MethodPost, "/v1/recommendations", map[string]any{"latitude": 100})

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, string(tt.wantCode), decodeError(t, rec).Code)
		})
	}
}
