package rag

import (
	"fmt"
	"strings"

	"surfmaster/internal/types"
)

// EmptyContextBlock is rendered when no spot was selected.
const EmptyContextBlock = "No surf spots found for this question."

// SystemPrompt is the assistant persona and answering rules.
const SystemPrompt = `You are the Surf Master, a Brazilian expert on surf spots.
Rules:
- Always respond in clear and concise English.
- Use only the provided context. If there is not enough information, say that explicitly.
- Provide practical guidance about swell, wind, and surfer level.
- Whenever you mention a spot, briefly explain why it matches the request.
`

// DescribeSpot renders the canonical text embedded for a spot.
func DescribeSpot(spot types.Spot) string {
	notes := "No additional notes."
	if len(spot.Notes) > 0 {
		notes = strings.Join(spot.Notes, "; ")
	}
	return fmt.Sprintf("Spot: %s\nRecommended level: %s\nIdeal swell: %s\nIdeal wind: %s\nNotes: %s\n",
		spot.Name, spot.RecommendedLevel, spot.SwellBestDirection, spot.WindBestDirection, notes)
}

// ContextBlock renders the selected spots for inclusion in a prompt.
func ContextBlock(c *types.RagContext) string {
	if c == nil || len(c.Spots) == 0 {
		return EmptyContextBlock
	}

	var sb strings.Builder
	if c.PreferredSpotID != nil {
		fmt.Fprintf(&sb, "Session focus spot (ID %d). Treat this spot as primary if it appears in the context.\n", *c.PreferredSpotID)
	}
	for i, s := range c.Spots {
		fmt.Fprintf(&sb, "Spot %d: %s\n", i+1, s.Name)
		fmt.Fprintf(&sb, "  Recommended level: %s\n", s.RecommendedLevel)
		fmt.Fprintf(&sb, "  Ideal swell: %s\n", s.SwellBestDirection)
		fmt.Fprintf(&sb, "  Ideal wind: %s\n", s.WindBestDirection)
		if notes := strings.TrimSpace(strings.Join(s.Notes, ", ")); notes != "" {
			fmt.Fprintf(&sb, "  Notes: %s\n", notes)
		}
	}
	return sb.String()
}

// BuildSystemPrompt combines the persona, the context block, and a
// disclosure note when retrieval degraded.
func BuildSystemPrompt(c *types.RagContext) string {
	var sb strings.Builder
	sb.WriteString(SystemPrompt)
	sb.WriteString("\n\nCONTEXT:\n")
	sb.WriteString(ContextBlock(c))
	if c.UsedFallback() {
		sb.WriteString("\n\nIMPORTANT NOTE: ")
		sb.WriteString(c.FallbackReason)
		sb.WriteString(" Let the user know that the recommendations may be more generic.")
	}
	return sb.String()
}
