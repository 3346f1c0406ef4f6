package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"surfmaster/internal/core"
	"surfmaster/internal/types"
)

// SyncRequester enqueues a forecast refresh.
type SyncRequester interface {
	RequestSync(ctx context.Context, spotIDs []int64, force bool) (*types.SyncRequestMessage, error)
}

// SyncRequest is the body of POST /v1/forecasts/sync. No spot ids means all
// spots.
type SyncRequest struct {
	SpotIDs []int64 `json:"spot_ids" validate:"max=500,dive,gt=0"`
	Force   bool    `json:"force"`
}

// SyncHandler hands refresh requests to the sync queue.
type SyncHandler struct {
	trigger   SyncRequester
	validator *core.Validator
	logger    *slog.Logger
}

// NewSyncHandler creates a SyncHandler. A nil trigger makes the endpoint
// report the queue as unavailable.
func NewSyncHandler(trigger SyncRequester, val *core.Validator, logger *slog.Logger) *SyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncHandler{trigger: trigger, validator: val, logger: logger}
}

func (h *SyncHandler) RegisterRoutes(r chi.Router) {
	r.Post("/forecasts/sync", h.HandleRequestSync)
}

// HandleRequestSync enqueues the request and answers 202 with the message.
// An empty body is treated as {}.
func (h *SyncHandler) HandleRequestSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if h.trigger == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeUpstreamQueue, "forecast sync queue is not configured", nil))
		return
	}

	msg, err := h.trigger.RequestSync(r.Context(), req.SpotIDs, req.Force)
	if err != nil {
		logFailure(h.logger, r, "failed to request forecast sync", err)
		core.Error(w, r, err)
		return
	}
	h.logger.Info("forecast sync requested",
		"request_id", msg.RequestID,
		"spots", len(msg.SpotIDs),
		"force", msg.Force,
	)
	core.Data(w, r, http.StatusAccepted, msg)
}
