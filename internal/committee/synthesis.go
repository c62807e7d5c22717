package committee

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Bharath-code/deckslayer/internal/llm"
	"github.com/Bharath-code/deckslayer/internal/report"
)

// PartialFunc receives the best-available partial report during progressive
// synthesis. Returning an error aborts the stream.
type PartialFunc func(partial json.RawMessage) error

// Synthesizer issues the orchestrator call that turns opinions into a report.
type Synthesizer struct {
	gen    Generator
	model  string
	logger *slog.Logger
}

func NewSynthesizer(gen Generator, model string) *Synthesizer {
	return &Synthesizer{gen: gen, model: model, logger: slog.Default()}
}

func (s *Synthesizer) auditRequest(prompt string) llm.Request {
	return llm.Request{
		Model:  s.model,
		Prompt: prompt,
		Schema: &llm.Schema{Name: "audit_report", Definition: report.AuditSchema()},
	}
}

// Atomic requests the report in one call.
func (s *Synthesizer) Atomic(ctx context.Context, prompt string) (report.AuditReport, error) {
	text, err := s.gen.Generate(ctx, s.auditRequest(prompt))
	if err != nil {
		return report.AuditReport{}, fmt.Errorf("synthesis: %w", err)
	}
	return s.finalize(text)
}

// Progressive streams the report. After each chunk the accumulated buffer is
// repaired and, when it yields an object different from and no smaller than
// the last one sent, passed to onPartial. Incomplete buffers never produce an
// error; only the parse of the finished stream can fail.
func (s *Synthesizer) Progressive(ctx context.Context, prompt string, onPartial PartialFunc) (report.AuditReport, error) {
	var buf []byte
	last := "{}"
	text, err := s.gen.Stream(ctx, s.auditRequest(prompt), func(delta string) error {
		buf = append(buf, delta...)
		partial, ok := report.RepairPartial(string(buf))
		// A shorter repair means the chunk ended mid-token and the repair
		// cut back past content already sent.
		if !ok || string(partial) == last || len(partial) < len(last) {
			return nil
		}
		last = string(partial)
		return onPartial(partial)
	})
	if err != nil {
		return report.AuditReport{}, fmt.Errorf("synthesis stream: %w", err)
	}
	return s.finalize(text)
}

func (s *Synthesizer) finalize(text string) (report.AuditReport, error) {
	r, err := report.ParseAuditReport(text)
	if err != nil {
		return report.AuditReport{}, err
	}
	claimed := r.RedFlagCount
	if r.Normalize() {
		s.logger.Warn("red_flag_count disagreed with red_flags; using list length",
			"claimed", claimed, "actual", r.RedFlagCount)
	}
	return r, nil
}

// Compare requests the comparison verdict in one call.
func (s *Synthesizer) Compare(ctx context.Context, prompt string) (report.ComparisonReport, error) {
	text, err := s.gen.Generate(ctx, llm.Request{
		Model:  s.model,
		Prompt: prompt,
		Schema: &llm.Schema{Name: "comparison_report", Definition: report.ComparisonSchema()},
	})
	if err != nil {
		return report.ComparisonReport{}, fmt.Errorf("comparison synthesis: %w", err)
	}
	return report.ParseComparisonReport(text)
}
