package types

import "time"

// Reason explains why a window scored the way it did.
type Reason struct {
	Type    ReasonType `json:"type"`
	Message string     `json:"message"`
}

// Risk is a cautionary advisory for a recommended window.
type Risk struct {
	Type    RiskType `json:"type"`
	Message string   `json:"message"`
}

// RecommendationRequest is the input of a recommendation run.
//
// Required fields are pointers so that "absent" can be told apart from a zero
// value. MinWindowHours is accepted for forward compatibility and not used by
// the current scoring model.
type RecommendationRequest struct {
	Latitude       *float64   `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude      *float64   `json:"longitude" validate:"required,gte=-180,lte=180"`
	UserLevel      UserLevel  `json:"user_level" validate:"required,oneof=BEGINNER INTERMEDIATE ADVANCED"`
	Objective      Objective  `json:"objective" validate:"required,oneof=FUN TRAINING"`
	MaxDistanceKm  *float64   `json:"max_distance_km" validate:"required,gt=0,lte=200"`
	TimeStart      *time.Time `json:"time_start" validate:"required"`
	TimeEnd        *time.Time `json:"time_end" validate:"required"`
	TopK           *int       `json:"top_k,omitempty" validate:"omitempty,gte=1"`
	MinWindowHours *int       `json:"min_window_hours,omitempty" validate:"omitempty,gte=0"`
}

// RecommendationItem is one ranked spot/window. It is recomputed per request
// and never persisted. WindowStart, WindowEnd and Peak are the same instant.
type RecommendationItem struct {
	SpotID      int64     `json:"spot_id"`
	SpotName    string    `json:"spot_name"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Peak        time.Time `json:"peak"`
	Score       float64   `json:"score"`
	Reasons     []Reason  `json:"reasons"`
	Risks       []Risk    `json:"risks"`
	Confidence  float64   `json:"confidence"`
}

// RecommendationResponse is the ranked output of a recommendation run.
type RecommendationResponse struct {
	GeneratedAt     time.Time            `json:"generated_at"`
	TimeStart       time.Time            `json:"time_start"`
	TimeEnd         time.Time            `json:"time_end"`
	Recommendations []RecommendationItem `json:"recommendations"`
}
