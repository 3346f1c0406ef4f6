package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"surfmaster/internal/types"
)

// logFailure logs server-side failures. Client errors (4xx) are left to the
// request logger.
func logFailure(logger *slog.Logger, r *http.Request, msg string, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus() < http.StatusInternalServerError {
		return
	}
	logger.Error(msg,
		"error", err,
		"path", r.URL.Path,
		"request_id", types.GetRequestID(r.Context()),
	)
}

// spotIDParam parses the {id} path parameter as a positive spot id.
func spotIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, types.NewAppError(types.ErrCodeValidationInvalidSpotID, "spot id must be a positive integer", err).
			WithDetails(map[string]any{"id": raw})
	}
	return id, nil
}
