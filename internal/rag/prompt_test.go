package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"surfmaster/internal/types"
)

func TestDescribeSpot(t *testing.T) {
	spot := types.Spot{
		Name:               "Itauna",
		RecommendedLevel:   types.LevelAdvanced,
		SwellBestDirection: types.DirectionS,
		WindBestDirection:  types.DirectionN,
		Notes:              []string{"heavy", "crowded"},
	}
	want := "Spot: Itauna\nRecommended level: ADVANCED\nIdeal swell: S\nIdeal wind: N\nNotes: heavy; crowded\n"
	assert.Equal(t, want, DescribeSpot(spot))

	spot.Notes = nil
	assert.True(t, strings.HasSuffix(DescribeSpot(spot), "Notes: No additional notes.\n"))
}

func TestContextBlock(t *testing.T) {
	assert.Equal(t, EmptyContextBlock, ContextBlock(nil))
	assert.Equal(t, EmptyContextBlock, ContextBlock(&types.RagContext{}))

	id := int64(7)
	c := &types.RagContext{
		PreferredSpotID: &id,
		Spots: []types.RagSpot{
			{SpotID: 7, Name: "Barra", RecommendedLevel: types.LevelBeginner, SwellBestDirection: types.DirectionSE, WindBestDirection: types.DirectionNW, Notes: []string{"sandbars", "lifeguards"}},
			{SpotID: 1, Name: "Itauna", RecommendedLevel: types.LevelAdvanced, SwellBestDirection: types.DirectionS, WindBestDirection: types.DirectionN},
		},
	}
	want := "Session focus spot (ID 7). Treat this spot as primary if it appears in the context.\n" +
		"Spot 1: Barra\n" +
		"  Recommended level: BEGINNER\n" +
		"  Ideal swell: SE\n" +
		"  Ideal wind: NW\n" +
		"  Notes: sandbars, lifeguards\n" +
		"Spot 2: Itauna\n" +
		"  Recommended level: ADVANCED\n" +
		"  Ideal swell: S\n" +
		"  Ideal wind: N\n"
	assert.Equal(t, want, ContextBlock(c))
}

func TestBuildSystemPrompt(t *testing.T) {
	c := &types.RagContext{Spots: []types.RagSpot{{Name: "Barra"}}}
	p := BuildSystemPrompt(c)
	assert.True(t, strings.HasPrefix(p, "You are the Surf Master"))
	assert.Contains(t, p, "\n\nCONTEXT:\nSpot 1: Barra\n")
	assert.NotContains(t, p, "IMPORTANT NOTE")

	c.FallbackReason = ReasonEmbeddingFailure
	p = BuildSystemPrompt(c)
	assert.True(t, strings.HasSuffix(p, "IMPORTANT NOTE: "+ReasonEmbeddingFailure+" Let the user know that the recommendations may be more generic."))

	assert.Contains(t, BuildSystemPrompt(nil), EmptyContextBlock)
}
