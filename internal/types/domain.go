package types

import "time"

// Spot is a surf break and its ideal-condition attributes. Spots are
// reference data: the engine only ever reads them.
type Spot struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	SwellBestDirection Direction `json:"swell_best_direction"`
	WindBestDirection  Direction `json:"wind_best_direction"`
	RecommendedLevel   UserLevel `json:"recommended_level"`
	Notes              []string  `json:"notes"`
}

// ForecastSample is one time-stamped forecast point for a spot.
// Nullable measurements are pointers; nil means the provider had no value.
type ForecastSample struct {
	ID               int64              `json:"id"`
	SpotID           int64              `json:"spot_id"`
	Timestamp        time.Time          `json:"timestamp"`
	SwellHeight      *float64           `json:"swell_height,omitempty"`
	SwellPeriod      int                `json:"swell_period"`
	SwellDirection   Direction          `json:"swell_direction,omitempty"`
	WindSpeed        *float64           `json:"wind_speed,omitempty"`
	WindDirection    Direction          `json:"wind_direction,omitempty"`
	TideHeight       *float64           `json:"tide_height,omitempty"`
	WaterTemperature int                `json:"water_temperature"`
	Source           ForecastSourceName `json:"source"`
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
