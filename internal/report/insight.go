package report

import (
	"github.com/sashabaranov/go-openai/jsonschema"
)

var (
	Sectors = []string{
		"SaaS", "Fintech", "AI/ML", "Crypto/Web3", "Healthcare", "E-commerce",
		"Consumer", "Climate/CleanTech", "Enterprise", "EdTech", "Other",
	}
	Stages            = []string{"Pre-Seed", "Seed", "Series A", "Series B+", "Unknown"}
	RedFlagSeverities = []string{"low", "medium", "high", "critical"}
	insightRequired   = []string{"sector", "stage", "narrative_tags", "primary_claim", "red_flag_severity"}
)

// Insight is the market metadata the Oracle extracts from a deck. It is
// stored for internal trend analysis only.
type Insight struct {
	Sector           string   `json:"sector"`
	SubSector        string   `json:"sub_sector,omitempty"`
	Stage            string   `json:"stage"`
	FundingTargetUSD *float64 `json:"funding_target_usd,omitempty"`
	NarrativeTags    []string `json:"narrative_tags"`
	PrimaryClaim     string   `json:"primary_claim"`
	RedFlagSeverity  string   `json:"red_flag_severity"`
}

func InsightSchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"sector":             {Type: jsonschema.String, Enum: Sectors, Description: "Primary industry sector of the startup."},
			"sub_sector":         {Type: jsonschema.String, Description: "More granular sub-sector classification."},
			"stage":              {Type: jsonschema.String, Enum: Stages, Description: "Funding stage of the startup."},
			"funding_target_usd": {Type: jsonschema.Number, Description: "Requested funding amount in USD."},
			"narrative_tags":     {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}, Description: "Key buzzwords and claims detected in the pitch."},
			"primary_claim":      {Type: jsonschema.String, Description: "The single biggest claim made by the deck."},
			"red_flag_severity":  {Type: jsonschema.String, Enum: RedFlagSeverities, Description: "Aggregated severity of red flags."},
		},
		Required: insightRequired,
	}
}

// ParseInsight decodes and validates an Oracle response.
func ParseInsight(text string) (Insight, error) {
	var in Insight
	if err := decodeObject("market insight", text, insightRequired, &in); err != nil {
		return Insight{}, err
	}

	var problems []string
	problems = checkEnum(problems, "sector", in.Sector, Sectors)
	problems = checkEnum(problems, "stage", in.Stage, Stages)
	problems = checkEnum(problems, "red_flag_severity", in.RedFlagSeverity, RedFlagSeverities)
	if in.FundingTargetUSD != nil && *in.FundingTargetUSD < 0 {
		problems = append(problems, "funding_target_usd is negative")
	}
	if len(problems) > 0 {
		return Insight{}, &SchemaError{Schema: "market insight", Problems: problems}
	}
	if in.NarrativeTags == nil {
		in.NarrativeTags = []string{}
	}
	return in, nil
}
