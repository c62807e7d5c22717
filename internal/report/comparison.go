package report

import (
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
)

var (
	Sides          = []string{"deck_a", "deck_b"}
	Outcomes       = []string{"deck_a", "deck_b", "tie"}
	Recommendation = []string{"deck_a", "deck_b", "neither"}
	Severities     = []string{"critical", "major", "minor"}
)

// ComparisonReport is the head-to-head verdict on two decks.
type ComparisonReport struct {
	DeckAName                string                   `json:"deck_a_name"`
	DeckBName                string                   `json:"deck_b_name"`
	DeckAScore               int                      `json:"deck_a_score"`
	DeckBScore               int                      `json:"deck_b_score"`
	Winner                   string                   `json:"winner"`
	WinnerReasoning          string                   `json:"winner_reasoning"`
	ScoreDelta               int                      `json:"score_delta"`
	CategoryBreakdown        []CategoryVerdict        `json:"category_breakdown"`
	CombinedRedFlags         []DeckFlag               `json:"combined_red_flags"`
	VCVerdict                string                   `json:"vc_verdict"`
	InvestmentRecommendation InvestmentRecommendation `json:"investment_recommendation"`
}

type CategoryVerdict struct {
	Category     string `json:"category"`
	DeckAVerdict string `json:"deck_a_verdict"`
	DeckBVerdict string `json:"deck_b_verdict"`
	DeckAScore   int    `json:"deck_a_score"`
	DeckBScore   int    `json:"deck_b_score"`
	Winner       string `json:"winner"`
}

type DeckFlag struct {
	Deck     string `json:"deck"`
	Flag     string `json:"flag"`
	Severity string `json:"severity"`
}

type InvestmentRecommendation struct {
	RecommendedDeck string `json:"recommended_deck"`
	Confidence      int    `json:"confidence"`
	Rationale       string `json:"rationale"`
}

var comparisonRequired = []string{
	"deck_a_score", "deck_b_score", "winner", "winner_reasoning", "score_delta",
	"category_breakdown", "combined_red_flags", "vc_verdict", "investment_recommendation",
}

// ComparisonSchema is the response format sent with the comparison synthesis.
// Deck names are filled in from the upload labels afterwards, so the model is
// not required to produce them.
func ComparisonSchema() *jsonschema.Definition {
	str := jsonschema.Definition{Type: jsonschema.String}
	integer := jsonschema.Definition{Type: jsonschema.Integer}
	score := jsonschema.Definition{Type: jsonschema.Integer, Description: "0-100"}
	outcome := jsonschema.Definition{Type: jsonschema.String, Enum: Outcomes}
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"deck_a_name":      str,
			"deck_b_name":      str,
			"deck_a_score":     score,
			"deck_b_score":     score,
			"winner":           outcome,
			"winner_reasoning": str,
			"score_delta":      integer,
			"category_breakdown": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"category":       str,
						"deck_a_verdict": str,
						"deck_b_verdict": str,
						"deck_a_score":   integer,
						"deck_b_score":   integer,
						"winner":         outcome,
					},
					Required: []string{"category", "deck_a_verdict", "deck_b_verdict", "deck_a_score", "deck_b_score", "winner"},
				},
			},
			"combined_red_flags": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"deck":     {Type: jsonschema.String, Enum: Sides},
						"flag":     str,
						"severity": {Type: jsonschema.String, Enum: Severities},
					},
					Required: []string{"deck", "flag", "severity"},
				},
			},
			"vc_verdict": str,
			"investment_recommendation": {
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"recommended_deck": {Type: jsonschema.String, Enum: Recommendation},
					"confidence":       score,
					"rationale":        str,
				},
				Required: []string{"recommended_deck", "confidence", "rationale"},
			},
		},
		Required: comparisonRequired,
	}
}

// ParseComparisonReport decodes and validates a comparison response.
func ParseComparisonReport(text string) (ComparisonReport, error) {
	var r ComparisonReport
	if err := decodeObject("comparison report", text, comparisonRequired, &r); err != nil {
		return ComparisonReport{}, err
	}

	var problems []string
	problems = checkRange(problems, "deck_a_score", r.DeckAScore, 0, 100)
	problems = checkRange(problems, "deck_b_score", r.DeckBScore, 0, 100)
	problems = checkEnum(problems, "winner", r.Winner, Outcomes)
	for i, c := range r.CategoryBreakdown {
		problems = checkEnum(problems, fmt.Sprintf("category_breakdown[%d].winner", i), c.Winner, Outcomes)
	}
	for i, f := range r.CombinedRedFlags {
		problems = checkEnum(problems, fmt.Sprintf("combined_red_flags[%d].deck", i), f.Deck, Sides)
		problems = checkEnum(problems, fmt.Sprintf("combined_red_flags[%d].severity", i), f.Severity, Severities)
	}
	rec := r.InvestmentRecommendation
	problems = checkEnum(problems, "investment_recommendation.recommended_deck", rec.RecommendedDeck, Recommendation)
	problems = checkRange(problems, "investment_recommendation.confidence", rec.Confidence, 0, 100)
	if len(problems) > 0 {
		return ComparisonReport{}, &SchemaError{Schema: "comparison report", Problems: problems}
	}

	if r.CategoryBreakdown == nil {
		r.CategoryBreakdown = []CategoryVerdict{}
	}
	if r.CombinedRedFlags == nil {
		r.CombinedRedFlags = []DeckFlag{}
	}
	return r, nil
}
