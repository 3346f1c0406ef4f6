// Package scoring implements the deterministic surf suitability model. It
// rates one forecast sample against one spot for a given user level and
// session objective, producing a 0-100 score together with the reasons and
// risks that explain it.
//
// The model is a weighted blend of two factors:
//
//	swell = swellDir * swellHeight(level)
//	wind  = windDir * (1 - windPenalty(speed, objective))
//	score = 100 * clamp01(0.55*swell + 0.45*wind)
//
// Direction factors are exact matches over the 8-point compass; adjacent
// directions earn no partial credit.
package scoring

import (
	"fmt"
	"math"

	"surfmaster/internal/types"
)

const (
	swellWeight = 0.55
	windWeight  = 0.45

	// Wind speed thresholds. Units follow the forecast source and are not
	// converted.
	windOK  = 12.0
	windBad = 25.0

	// missingWindPenalty is applied when the sample has no wind speed.
	missingWindPenalty = 0.5

	strongWindRisk   = 18.0
	beginnerMaxSwell = 1.2
	lowConfidenceMin = 60.0
	maxNoteRisks     = 2
)

var levelCeilings = map[types.UserLevel]float64{
	types.LevelBeginner:     1.2,
	types.LevelIntermediate: 2.0,
	types.LevelAdvanced:     3.0,
}

var objectiveFactors = map[types.Objective]float64{
	types.ObjectiveFun:      1.25,
	types.ObjectiveTraining: 0.85,
}

// Evaluation is the full result of scoring one sample.
type Evaluation struct {
	Score      float64
	Confidence float64
	Reasons    []types.Reason
	Risks      []types.Risk
}

// Engine scores forecast samples. It holds no mutable state and is safe for
// concurrent use.
type Engine struct{}

// NewEngine returns a scoring Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Score returns the suitability of sample at spot in [0,100].
func (e *Engine) Score(spot types.Spot, sample types.ForecastSample, level types.UserLevel, objective types.Objective) float64 {
	return 100 * composite(spot, sample, level, objective)
}

// Evaluate scores sample and explains the result.
func (e *Engine) Evaluate(spot types.Spot, sample types.ForecastSample, level types.UserLevel, objective types.Objective) Evaluation {
	score := e.Score(spot, sample, level, objective)
	return Evaluation{
		Score:      score,
		Confidence: Confidence(score),
		Reasons:    reasons(spot, sample, score),
		Risks:      risks(spot, sample, level, score),
	}
}

func composite(spot types.Spot, sample types.ForecastSample, level types.UserLevel, objective types.Objective) float64 {
	swellScore := directionScore(sample.SwellDirection, spot.SwellBestDirection) *
		SwellHeightScore(sample.SwellHeight, level)
	windScore := directionScore(sample.WindDirection, spot.WindBestDirection) *
		(1 - WindPenalty(sample.WindSpeed, objective))
	return clamp01(swellWeight*swellScore + windWeight*windScore)
}

func directionScore(actual, ideal types.Direction) float64 {
	if actual == "" || ideal == "" || actual != ideal {
		return 0
	}
	return 1
}

// SwellHeightScore rates a swell height for a level: 1 up to the level's
// comfort ceiling, falling linearly to 0 at twice the ceiling. A missing,
// NaN or non-positive height scores 0.
func SwellHeightScore(height *float64, level types.UserLevel) float64 {
	if height == nil || math.IsNaN(*height) || *height <= 0 {
		return 0
	}
	ceiling, ok := levelCeilings[level]
	if !ok {
		ceiling = levelCeilings[types.LevelIntermediate]
	}
	h := *height
	switch {
	case h <= ceiling:
		return 1
	case h >= 2*ceiling:
		return 0
	default:
		return clamp01(1 - (h-ceiling)/ceiling)
	}
}

// WindPenalty returns a penalty in [0,1] for a wind speed: 0 at or below 12,
// 1 at or above 25, linear in between, scaled by the objective's sensitivity.
// A missing or NaN speed yields a fixed 0.5.
func WindPenalty(speed *float64, objective types.Objective) float64 {
	if speed == nil || math.IsNaN(*speed) {
		return missingWindPenalty
	}
	var base float64
	switch s := *speed; {
	case s <= windOK:
		base = 0
	case s >= windBad:
		base = 1
	default:
		base = (s - windOK) / (windBad - windOK)
	}
	factor, ok := objectiveFactors[objective]
	if !ok {
		factor = 1
	}
	return clamp01(base * factor)
}

// Confidence maps a score in [0,100] to a confidence in [0.2,0.9].
func Confidence(score float64) float64 {
	return clamp01(0.2 + 0.7*(score/100))
}

func reasons(spot types.Spot, sample types.ForecastSample, score float64) []types.Reason {
	swell := "Swell acceptable (not perfect but within range)"
	if directionScore(sample.SwellDirection, spot.SwellBestDirection) == 1 {
		swell = "Swell aligned with the spot's ideal direction"
	}
	wind := "Wind not ideal, but penalty is under control"
	if directionScore(sample.WindDirection, spot.WindBestDirection) == 1 {
		wind = "Wind aligned with the spot's ideal direction"
	}
	return []types.Reason{
		{Type: types.ReasonSwell, Message: swell},
		{Type: types.ReasonWind, Message: wind},
		{Type: types.ReasonOther, Message: fmt.Sprintf("Score V1: %.1f/100", score)},
	}
}

func risks(spot types.Spot, sample types.ForecastSample, level types.UserLevel, score float64) []types.Risk {
	out := make([]types.Risk, 0, 3+maxNoteRisks)

	if sample.WindSpeed != nil && *sample.WindSpeed > strongWindRisk {
		out = append(out, types.Risk{
			Type:    types.RiskStrongWind,
			Message: "Moderate/strong wind may ruin wave formation",
		})
	}
	if level == types.LevelBeginner && sample.SwellHeight != nil && *sample.SwellHeight > beginnerMaxSwell {
		out = append(out, types.Risk{
			Type:    types.RiskTooBigForLevel,
			Message: "Swell height may be above the ideal range for beginners",
		})
	}
	if score < lowConfidenceMin {
		out = append(out, types.Risk{
			Type:    types.RiskLowConfidence,
			Message: "Inconsistent conditions: recommendation has low confidence",
		})
	}
	for i, note := range spot.Notes {
		if i == maxNoteRisks {
			break
		}
		out = append(out, types.Risk{Type: types.RiskSpotNote, Message: note})
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
