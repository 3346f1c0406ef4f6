package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"surfmaster/internal/core"
	"surfmaster/internal/types"
)

// SpotReader is the read side of the spot catalog.
type SpotReader interface {
	FindAll(ctx context.Context) ([]types.Spot, error)
	FindByID(ctx context.Context, id int64) (*types.Spot, error)
}

// ForecastReader lists stored forecast samples for a spot.
type ForecastReader interface {
	FindAfter(ctx context.Context, spotID int64, from time.Time) ([]types.ForecastSample, error)
}

// SpotHandler serves the catalog and per-spot forecast endpoints.
type SpotHandler struct {
	spots     SpotReader
	forecasts ForecastReader
	clock     types.Clock
	logger    *slog.Logger
}

// NewSpotHandler creates a SpotHandler. A nil clock uses the system clock.
func NewSpotHandler(spots SpotReader, forecasts ForecastReader, clock types.Clock, logger *slog.Logger) *SpotHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SpotHandler{spots: spots, forecasts: forecasts, clock: clock, logger: logger}
}

func (h *SpotHandler) RegisterRoutes(r chi.Router) {
	r.Route("/spots", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Get("/{id}/forecasts", h.HandleListForecasts)
	})
}

// HandleList handles GET /v1/spots.
func (h *SpotHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	spots, err := h.spots.FindAll(r.Context())
	if err != nil {
		logFailure(h.logger, r, "failed to list spots", err)
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, spots)
}

// HandleGet handles GET /v1/spots/{id}.
func (h *SpotHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	spot, ok := h.loadSpot(w, r)
	if !ok {
		return
	}
	core.Data(w, r, http.StatusOK, spot)
}

// HandleListForecasts handles GET /v1/spots/{id}/forecasts: samples from now
// onwards, ascending.
func (h *SpotHandler) HandleListForecasts(w http.ResponseWriter, r *http.Request) {
	spot, ok := h.loadSpot(w, r)
	if !ok {
		return
	}

	samples, err := h.forecasts.FindAfter(r.Context(), spot.ID, h.clock.Now())
	if err != nil {
		logFailure(h.logger, r, "failed to list forecasts", err)
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, samples)
}

// loadSpot resolves {id} and writes the error response itself when it
// cannot.
func (h *SpotHandler) loadSpot(w http.ResponseWriter, r *http.Request) (*types.Spot, bool) {
	id, err := spotIDParam(r)
	if err != nil {
		core.Error(w, r, err)
		return nil, false
	}
	spot, err := h.spots.FindByID(r.Context(), id)
	if err != nil {
		logFailure(h.logger, r, "failed to load spot", err)
		core.Error(w, r, err)
		return nil, false
	}
	if spot == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundSpot, "spot not found", nil).
			WithDetails(map[string]any{"spot_id": id}))
		return nil, false
	}
	return spot, true
}
