package recommend

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"surfmaster/internal/types"
)

// fieldErrors maps a request field and the failed validator tag to the
// AppError reported to the caller. A missing tag entry falls back to the
// field's "*" entry.
var fieldErrors = map[string]map[string]*types.AppError{
	"Latitude": {
		"required": types.NewAppError(types.ErrCodeValidationMissingField, "Latitude and Longitude cannot be null", nil),
		"*":        types.NewAppError(types.ErrCodeValidationInvalidLat, "Latitude must be between -90 and 90", nil),
	},
	"Longitude": {
		"required": types.NewAppError(types.ErrCodeValidationMissingField, "Latitude and Longitude cannot be null", nil),
		"*":        types.NewAppError(types.ErrCodeValidationInvalidLon, "Longitude must be between -180 and 180", nil),
	},
	"UserLevel": {
		"required": types.NewAppError(types.ErrCodeValidationMissingField, "User level cannot be null", nil),
		"*":        types.NewAppError(types.ErrCodeValidationInvalidLevel, "User level must be one of BEGINNER, INTERMEDIATE, ADVANCED", nil),
	},
	"Objective": {
		"required": types.NewAppError(types.ErrCodeValidationMissingField, "Objective cannot be null", nil),
		"*":        types.NewAppError(types.ErrCodeValidationInvalidObjective, "Objective must be one of FUN, TRAINING", nil),
	},
	"MaxDistanceKm": {
		"*": types.NewAppError(types.ErrCodeValidationInvalidDistance, "Max distance must be positive and less than or equal to 200 km", nil),
	},
	"TimeStart": {
		"*": types.NewAppError(types.ErrCodeValidationTimeWindow, "Invalid time range", nil),
	},
	"TimeEnd": {
		"*": types.NewAppError(types.ErrCodeValidationTimeWindow, "Invalid time range", nil),
	},
	"TopK": {
		"*": types.NewAppError(types.ErrCodeValidationInvalidTopK, "Top K must be at least 1", nil),
	},
	"MinWindowHours": {
		"*": types.NewAppError(types.ErrCodeValidationTimeWindow, "Minimum window hours cannot be negative", nil),
	},
}

// validateRequest checks req and returns the first violation as a
// validation AppError. Struct tags cover ranges and required fields; the
// ordering of the time range is checked explicitly.
func (p *Planner) validateRequest(req *types.RecommendationRequest) error {
	if req == nil {
		return types.NewAppError(types.ErrCodeValidationMissingField, "Request cannot be null", nil)
	}

	if err := p.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return types.NewAppError(types.ErrCodeValidationMissingField, "Invalid recommendation request", err)
		}
		return toAppError(verrs[0])
	}

	if req.TimeEnd.Before(*req.TimeStart) {
		return types.NewAppError(types.ErrCodeValidationTimeWindow, "Invalid time range", nil).
			WithDetails(map[string]any{"field": "time_end", "constraint": "gte_time_start"})
	}
	return nil
}

func toAppError(fe validator.FieldError) *types.AppError {
	byTag, ok := fieldErrors[fe.StructField()]
	if !ok {
		return types.NewAppError(types.ErrCodeValidationMissingField, "Invalid recommendation request", nil).
			WithDetails(map[string]any{"field": fe.Field(), "constraint": fe.Tag()})
	}
	appErr, ok := byTag[fe.Tag()]
	if !ok {
		appErr = byTag["*"]
	}
	return appErr.WithDetails(map[string]any{"field": fe.Field(), "constraint": fe.Tag()})
}
