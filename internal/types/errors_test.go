package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationInvalidLat,
		Message: "Latitude must be between -90 and 90",
	}

	expected := "validation_invalid_latitude: Latitude must be between -90 and 90"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection refused")
	appErr := NewAppError(ErrCodeInternalDB, "failed to query spots", underlying)

	if !errors.Is(appErr, underlying) {
		t.Errorf("errors.Is should find the underlying error")
	}

	wrapped := fmt.Errorf("handler: %w", appErr)
	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find AppError in the chain")
	}
	if target.Code != ErrCodeInternalDB {
		t.Errorf("Code = %q, want %q", target.Code, ErrCodeInternalDB)
	}
}

func TestAppErrorWithDetailsDoesNotMutate(t *testing.T) {
	base := &AppError{Code: ErrCodeValidationMissingField, Message: "missing", Details: map[string]any{"a": 1}}
	derived := base.WithDetails(map[string]any{"field": "objective"})

	if _, ok := base.Details["field"]; ok {
		t.Errorf("original details were mutated")
	}
	if derived.Details["a"] != 1 || derived.Details["field"] != "objective" {
		t.Errorf("unexpected merged details: %v", derived.Details)
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidLat, http.StatusBadRequest},
		{ErrCodeValidationTimeWindow, http.StatusBadRequest},
		{ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{ErrCodeRateLimit, http.StatusTooManyRequests},
		{ErrCodeNotFoundSpot, http.StatusNotFound},
		{ErrCodeNotFoundRoute, http.StatusNotFound},
		{ErrCodeMethodNotAllowed, http.StatusMethodNotAllowed},
		{ErrCodeUpstreamEmbedding, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
