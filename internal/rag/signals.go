package rag

import (
	"regexp"
	"strconv"
	"strings"

	"surfmaster/internal/types"
)

// Signals are cheap hints pulled from a question by keyword matching.
type Signals struct {
	Level     types.UserLevel // empty when absent
	Direction types.Direction // empty when absent
	Height    *float64
}

var levelKeywords = []struct {
	level    types.UserLevel
	keywords []string
}{
	{types.LevelBeginner, []string{"iniciante", "beginner"}},
	{types.LevelIntermediate, []string{"intermedi", "medio", "médio"}},
	{types.LevelAdvanced, []string{"avanca", "avançado", "advanced"}},
}

var heightKeywords = []string{"swell", "wave", "onda", "altura", "height"}

var heightValue = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)

// ExtractSignals scans question case-insensitively for a skill level, a
// compass direction, and a height.
//
// The level is the first group with a matching keyword, checked in
// beginner, intermediate, advanced order. The direction is the first compass
// point, in declaration order, whose lowercase name appears anywhere in the
// text. The height is the first number at or after the earliest height
// keyword; a comma decimal separator is accepted.
func ExtractSignals(question string) Signals {
	normalized := strings.ToLower(question)
	var s Signals

levels:
	for _, group := range levelKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(normalized, kw) {
				s.Level = group.level
				break levels
			}
		}
	}

	for _, d := range types.CompassDirections {
		if strings.Contains(normalized, strings.ToLower(string(d))) {
			s.Direction = d
			break
		}
	}

	s.Height = extractHeight(normalized)
	return s
}

func extractHeight(normalized string) *float64 {
	start := -1
	for _, kw := range heightKeywords {
		if idx := strings.Index(normalized, kw); idx >= 0 && (start < 0 || idx < start) {
			start = idx
		}
	}
	if start < 0 {
		return nil
	}
	m := heightValue.FindString(normalized[start:])
	if m == "" {
		return nil
	}
	h, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil {
		return nil
	}
	return &h
}

// preferredHeights is the swell height each level is most comfortable with.
var preferredHeights = map[types.UserLevel]float64{
	types.LevelBeginner:     1.5,
	types.LevelIntermediate: 2.5,
	types.LevelAdvanced:     3.5,
}

// HeuristicScore rates how well spot matches the extracted signals, in
// [0, 2.5]: +1 for a level match, +0.5 for a swell direction match, and up to
// +1 for height proximity to the spot level's preferred height.
func HeuristicScore(spot types.Spot, sig Signals) float64 {
	score := 0.0
	if sig.Level != "" && spot.RecommendedLevel == sig.Level {
		score += 1.0
	}
	if sig.Direction != "" && spot.SwellBestDirection == sig.Direction {
		score += 0.5
	}
	if sig.Height != nil {
		if preferred, ok := preferredHeights[spot.RecommendedLevel]; ok {
			diff := preferred - *sig.Height
			if diff < 0 {
				diff = -diff
			}
			score += max(0, 1-diff/3.0)
		}
	}
	return score
}
