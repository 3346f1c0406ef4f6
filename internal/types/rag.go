package types

// Blend weights for RagSpot.Composite.
const (
	SimilarityWeight = 0.7
	HeuristicWeight  = 0.3
)

// MaxRagSpots bounds the number of spots carried by a RagContext.
const MaxRagSpots = 3

// RagSpot is a spot scored against an assistant question.
type RagSpot struct {
	SpotID             int64     `json:"spot_id"`
	Name               string    `json:"name"`
	RecommendedLevel   UserLevel `json:"recommended_level"`
	SwellBestDirection Direction `json:"swell_best_direction"`
	WindBestDirection  Direction `json:"wind_best_direction"`
	Notes              []string  `json:"notes"`
	Similarity         float64   `json:"similarity"`
	Heuristic          float64   `json:"heuristic"`
	// CompositeScore is Composite() captured when the spot was scored.
	CompositeScore float64 `json:"composite"`
}

// Composite blends vector similarity with the rule-based heuristic.
func (s RagSpot) Composite() float64 {
	return s.Similarity*SimilarityWeight + s.Heuristic*HeuristicWeight
}

// RagContext is the bounded set of spots selected to ground an answer.
// A non-empty FallbackReason means retrieval ran in degraded mode.
type RagContext struct {
	Spots             []RagSpot `json:"spots"`
	PreferredSpotID   *int64    `json:"preferred_spot_id,omitempty"`
	PreferredSpotName string    `json:"preferred_spot_name,omitempty"`
	FallbackReason    string    `json:"fallback_reason,omitempty"`
}

// UsedFallback reports whether retrieval degraded.
func (c *RagContext) UsedFallback() bool {
	return c != nil && c.FallbackReason != ""
}
