package oracle

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Bharath-code/deckslayer/internal/llm"
	"github.com/Bharath-code/deckslayer/internal/persona"
	"github.com/Bharath-code/deckslayer/internal/report"
)

type mockGenerator struct {
	generateFn func(ctx context.Context, req llm.Request) (string, error)
}

func (m *mockGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	return m.generateFn(ctx, req)
}

func TestExtract_Valid(t *testing.T) {
	var got llm.Request
	e := NewExtractor(&mockGenerator{generateFn: func(_ context.Context, req llm.Request) (string, error) {
		got = req
		return `{"sector":"Fintech","sub_sector":"Payments","stage":"Series A","narrative_tags":["embedded finance"],"primary_claim":"Stripe for Africa","red_flag_severity":"medium"}`, nil
	}}, "gemini-1.5-flash", "http://localhost:3000")

	in, err := e.Extract(context.Background(), "deck text")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if in.Sector != "Fintech" || in.Stage != "Series A" {
		t.Errorf("Sector, Stage = %q, %q, want Fintech, Series A", in.Sector, in.Stage)
	}
	if got.Schema == nil || got.Schema.Name != "market_insight" {
		t.Errorf("request schema = %+v, want market_insight", got.Schema)
	}
	if got.Model != "gemini-1.5-flash" {
		t.Errorf("Model = %q, want gemini-1.5-flash", got.Model)
	}
}

func TestExtract_InvalidJSONIsSchemaError(t *testing.T) {
	e := NewExtractor(&mockGenerator{generateFn: func(context.Context, llm.Request) (string, error) {
		return "I think it's fintech", nil
	}}, "m", "http://x")

	_, err := e.Extract(context.Background(), "deck")
	var se *report.SchemaError
	if !errors.As(err, &se) {
		t.Errorf("err = %v, want *report.SchemaError", err)
	}
}

func TestExtract_ProviderError(t *testing.T) {
	boom := errors.New("quota")
	e := NewExtractor(&mockGenerator{generateFn: func(context.Context, llm.Request) (string, error) {
		return "", boom
	}}, "m", "http://x")

	if _, err := e.Extract(context.Background(), "deck"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(persona.Oracle("http://x"), "OUR DECK")
	for _, want := range []string{
		"PROTOCOL: a2aproject-v1.0",
		`"name":"The Oracle"`,
		"Deck content: OUR DECK",
		`"Climate/CleanTech"`,
		`"Series B+"`,
		"JSON only, no markdown or explanation.",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
