// Package committee runs the simulated investment committee: the parallel
// reviewer fan-out, the orchestrator synthesis, and the persistence that
// follows a finished report.
package committee

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Bharath-code/deckslayer/internal/extract"
	"github.com/Bharath-code/deckslayer/internal/llm"
	"github.com/Bharath-code/deckslayer/internal/persona"
)

// Generator is the text-generation capability the committee depends on.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
	Stream(ctx context.Context, req llm.Request, onDelta func(string) error) (string, error)
}

// Opinion is one reviewer's free-text verdict on one deck.
type Opinion struct {
	PersonaID string
	Label     string
	Name      string
	Text      string
}

// PromptFunc builds a reviewer prompt for a deck.
type PromptFunc func(p persona.Persona, text string) string

// Dispatcher sends one prompt per persona per deck, all concurrently.
type Dispatcher struct {
	gen   Generator
	model string
}

func NewDispatcher(gen Generator, model string) *Dispatcher {
	return &Dispatcher{gen: gen, model: model}
}

// Dispatch runs every persona against one deck. Opinions come back in
// persona order. The first failure cancels the rest and is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, text string, personas []persona.Persona, prompt PromptFunc) ([]Opinion, error) {
	out, err := d.DispatchMany(ctx, []string{text}, personas, prompt)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// DispatchMany runs every persona against every deck in a single group of
// len(texts)*len(personas) concurrent calls. out[i][j] is persona j's opinion
// of texts[i]. Each text is truncated once and shared by all personas.
func (d *Dispatcher) DispatchMany(ctx context.Context, texts []string, personas []persona.Persona, prompt PromptFunc) ([][]Opinion, error) {
	out := make([][]Opinion, len(texts))
	g, gctx := errgroup.WithContext(ctx)

	for i, text := range texts {
		doc := extract.Truncate(text, extract.MaxChars)
		out[i] = make([]Opinion, len(personas))
		for j, p := range personas {
			g.Go(func() error {
				resp, err := d.gen.Generate(gctx, llm.Request{
					Model:  d.model,
					Prompt: prompt(p, doc),
				})
				if err != nil {
					return fmt.Errorf("%s opinion: %w", p.ID, err)
				}
				out[i][j] = Opinion{PersonaID: p.ID, Label: p.Label, Name: p.Card.Name, Text: resp}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
