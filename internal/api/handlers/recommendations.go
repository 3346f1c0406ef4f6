// Package handlers maps the SurfMaster HTTP API onto the domain services.
// Each handler declares the narrow service interface it consumes and mounts
// its routes through RegisterRoutes.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"surfmaster/internal/core"
	"surfmaster/internal/types"
)

// Recommender produces ranked surf windows.
type Recommender interface {
	Recommend(ctx context.Context, req *types.RecommendationRequest) (*types.RecommendationResponse, error)
}

// RecommendationHandler serves POST /v1/recommendations.
type RecommendationHandler struct {
	planner Recommender
	logger  *slog.Logger
}

// NewRecommendationHandler creates a RecommendationHandler.
func NewRecommendationHandler(planner Recommender, logger *slog.Logger) *RecommendationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecommendationHandler{planner: planner, logger: logger}
}

// RegisterRoutes mounts the recommendation endpoint.
func (h *RecommendationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/recommendations", h.HandleRecommend)
}

// HandleRecommend decodes the request and returns the planner's ranking.
// Validation is the planner's job so that every caller gets the same errors.
func (h *RecommendationHandler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	var req types.RecommendationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	resp, err := h.planner.Recommend(r.Context(), &req)
	if err != nil {
		logFailure(h.logger, r, "recommendation failed", err)
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, resp)
}
