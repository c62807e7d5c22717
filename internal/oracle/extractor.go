// Package oracle extracts internal market metadata (sector, stage, narrative
// tags) from analysed decks. The results feed trend views and are never
// returned to the founder who uploaded the deck.
package oracle

import (
	"context"
	"fmt"

	"github.com/Bharath-code/deckslayer/internal/extract"
	"github.com/Bharath-code/deckslayer/internal/llm"
	"github.com/Bharath-code/deckslayer/internal/persona"
	"github.com/Bharath-code/deckslayer/internal/report"
)

// JobType is the job-queue type for a pending extraction.
const JobType = "market_insight"

// Payload is the job body enqueued after an analysis is stored.
type Payload struct {
	AnalysisID       string `json:"analysis_id"`
	Text             string `json:"text"`
	FundabilityScore int    `json:"fundability_score"`
}

// Generator produces schema-constrained text.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

type Extractor struct {
	gen   Generator
	model string
	card  persona.Card
}

// NewExtractor creates an Extractor. baseURL is used to render the agent card.
func NewExtractor(gen Generator, model, baseURL string) *Extractor {
	return &Extractor{gen: gen, model: model, card: persona.Oracle(baseURL)}
}

// Extract classifies the deck. A response that fails validation is returned
// as a *report.SchemaError.
func (e *Extractor) Extract(ctx context.Context, text string) (report.Insight, error) {
	raw, err := e.gen.Generate(ctx, llm.Request{
		Model:  e.model,
		Prompt: BuildPrompt(e.card, extract.Truncate(text, extract.MaxChars)),
		Schema: &llm.Schema{Name: "market_insight", Definition: report.InsightSchema()},
	})
	if err != nil {
		return report.Insight{}, fmt.Errorf("oracle generation: %w", err)
	}
	return report.ParseInsight(raw)
}
