package oracle

import (
	"fmt"
	"strings"

	"github.com/Bharath-code/deckslayer/internal/persona"
	"github.com/Bharath-code/deckslayer/internal/report"
)

// BuildPrompt renders the extraction prompt. The enum lists come from the
// report package so the prompt and the validator never drift apart.
func BuildPrompt(card persona.Card, text string) string {
	return fmt.Sprintf(`PROTOCOL: %s
AGENT_CARD: %s
TASK: You are an internal intelligence agent. Extract macro-level metadata from this pitch deck for trend analysis.

Deck content: %s

Respond ONLY with valid JSON matching this schema:
- sector: one of %s
- sub_sector: optional string (more granular)
- stage: one of %s
- funding_target_usd: optional number
- narrative_tags: array of strings (key buzzwords like "AI-native", "10x claim", "winner-take-all")
- primary_claim: string (the single biggest claim)
- red_flag_severity: one of %s

JSON only, no markdown or explanation.`,
		persona.Protocol, card.JSON(), text,
		quoted(report.Sectors), quoted(report.Stages), quoted(report.RedFlagSeverities))
}

func quoted(values []string) string {
	q := make([]string, len(values))
	for i, v := range values {
		q[i] = `"` + v + `"`
	}
	return strings.Join(q, ", ")
}
