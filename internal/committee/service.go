package committee

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Bharath-code/deckslayer/internal/extract"
	"github.com/Bharath-code/deckslayer/internal/llm"
	"github.com/Bharath-code/deckslayer/internal/oracle"
	"github.com/Bharath-code/deckslayer/internal/persona"
	"github.com/Bharath-code/deckslayer/internal/report"
	"github.com/Bharath-code/deckslayer/internal/storage"
)

// Credit costs.
const (
	AnalysisCost   = 1
	ComparisonCost = 2
)

// Store is the persistence the committee writes after a finished report.
type Store interface {
	InsertAnalysis(ctx context.Context, a storage.Analysis) (string, error)
	InsertComparison(ctx context.Context, c storage.Comparison) (string, error)
	EnqueueJob(ctx context.Context, job storage.Job) error
}

// Ledger debits credits and answers purchase questions.
type Ledger interface {
	Debit(ctx context.Context, userID string, amount int, reason string) error
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
}

// Config selects models and the product that unlocks exports on every
// future analysis.
type Config struct {
	BaseURL           string
	AnalysisModel     string
	OrchestratorModel string
	AdversarialModel  string
	BatchProduct      string
}

// Service runs analyses, comparisons and rebuttals end to end.
type Service struct {
	gen          Generator
	store        Store
	ledger       Ledger
	cfg          Config
	personas     []persona.Persona
	orchestrator persona.Card
	dispatcher   *Dispatcher
	synth        *Synthesizer
	logger       *slog.Logger
}

func NewService(gen Generator, store Store, ledger Ledger, cfg Config) *Service {
	return &Service{
		gen:          gen,
		store:        store,
		ledger:       ledger,
		cfg:          cfg,
		personas:     persona.Committee(cfg.BaseURL),
		orchestrator: persona.Orchestrator(cfg.BaseURL),
		dispatcher:   NewDispatcher(gen, cfg.AnalysisModel),
		synth:        NewSynthesizer(gen, cfg.OrchestratorModel),
		logger:       slog.Default(),
	}
}

// AnalysisRequest is one deck submitted for review.
type AnalysisRequest struct {
	UserID   string
	DeckName string
	Text     string
}

type AnalysisResult struct {
	Report     report.AuditReport
	AnalysisID string // empty when the record could not be stored
}

// Analyze runs the committee on one deck. With a nil onPartial the report is
// synthesized atomically; otherwise it is streamed and onPartial sees each
// improved partial object. Credits are debited and the record stored only
// after a valid report exists.
func (s *Service) Analyze(ctx context.Context, req AnalysisRequest, onPartial PartialFunc) (AnalysisResult, error) {
	text := extract.Truncate(req.Text, extract.MaxChars)

	opinions, err := s.dispatcher.Dispatch(ctx, text, s.personas, AgentPrompt)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("dispatching committee: %w", err)
	}

	prompt := SynthesisPrompt(s.orchestrator, s.personas, opinions)
	var r report.AuditReport
	if onPartial == nil {
		r, err = s.synth.Atomic(ctx, prompt)
	} else {
		r, err = s.synth.Progressive(ctx, prompt, onPartial)
	}
	if err != nil {
		return AnalysisResult{}, err
	}

	id := s.persistAnalysis(context.WithoutCancel(ctx), req, text, r)
	return AnalysisResult{Report: r, AnalysisID: id}, nil
}

// persistAnalysis runs the post-report steps. Each is attempted and logged on
// its own; none rolls back another.
func (s *Service) persistAnalysis(ctx context.Context, req AnalysisRequest, text string, r report.AuditReport) string {
	log := s.logger.With("user_id", req.UserID, "deck", req.DeckName)

	if err := s.ledger.Debit(ctx, req.UserID, AnalysisCost, "Audit of "+req.DeckName); err != nil {
		log.Error("debiting analysis credit", "error", err)
	}

	unlocked, err := s.ledger.HasPurchased(ctx, req.UserID, s.cfg.BatchProduct)
	if err != nil {
		log.Error("checking batch purchase", "error", err)
	}

	body, err := json.Marshal(r)
	if err != nil {
		log.Error("encoding report", "error", err)
		return ""
	}
	id, err := s.store.InsertAnalysis(ctx, storage.Analysis{
		UserID:           req.UserID,
		DeckName:         req.DeckName,
		ReportJSON:       string(body),
		FundabilityScore: r.FundabilityScore,
		ExportUnlocked:   unlocked,
	})
	if err != nil {
		log.Error("storing analysis", "error", err)
		return ""
	}

	payload, err := json.Marshal(oracle.Payload{AnalysisID: id, Text: text, FundabilityScore: r.FundabilityScore})
	if err != nil {
		log.Error("encoding market insight payload", "analysis_id", id, "error", err)
		return id
	}
	if err := s.store.EnqueueJob(ctx, storage.Job{Type: oracle.JobType, PayloadJSON: string(payload), MaxAttempts: 1}); err != nil {
		log.Error("enqueueing market insight", "analysis_id", id, "error", err)
	}
	return id
}

// CompareRequest holds the two decks of a comparison.
type CompareRequest struct {
	UserID string
	Decks  [2]Deck
}

// ComparisonResult is the comparison report plus the stored record id.
type ComparisonResult struct {
	report.ComparisonReport
	ComparisonID string `json:"comparison_id,omitempty"`
}

// Compare runs the committee on both decks in one concurrent batch, then asks
// for a head-to-head verdict. It debits ComparisonCost once on success.
func (s *Service) Compare(ctx context.Context, req CompareRequest) (ComparisonResult, error) {
	var decks [2]Deck
	for i, d := range req.Decks {
		decks[i] = Deck{Name: d.Name, Text: extract.Truncate(d.Text, extract.MaxChars)}
	}

	opinions, err := s.dispatcher.DispatchMany(ctx, []string{decks[0].Text, decks[1].Text}, s.personas, CompareAgentPrompt)
	if err != nil {
		return ComparisonResult{}, fmt.Errorf("dispatching committee: %w", err)
	}

	r, err := s.synth.Compare(ctx, ComparisonPrompt(s.personas, decks, opinions))
	if err != nil {
		return ComparisonResult{}, err
	}
	r.DeckAName = decks[0].Name
	r.DeckBName = decks[1].Name

	id := s.persistComparison(context.WithoutCancel(ctx), req.UserID, r)
	return ComparisonResult{ComparisonReport: r, ComparisonID: id}, nil
}

func (s *Service) persistComparison(ctx context.Context, userID string, r report.ComparisonReport) string {
	log := s.logger.With("user_id", userID, "deck_a", r.DeckAName, "deck_b", r.DeckBName)

	reason := fmt.Sprintf("Comparative analysis: %s vs %s", r.DeckAName, r.DeckBName)
	if err := s.ledger.Debit(ctx, userID, ComparisonCost, reason); err != nil {
		log.Error("debiting comparison credits", "error", err)
	}

	body, err := json.Marshal(r)
	if err != nil {
		log.Error("encoding comparison", "error", err)
		return ""
	}
	id, err := s.store.InsertComparison(ctx, storage.Comparison{
		UserID:         userID,
		DeckAName:      r.DeckAName,
		DeckBName:      r.DeckBName,
		ComparisonJSON: string(body),
	})
	if err != nil {
		log.Error("storing comparison", "error", err)
		return ""
	}
	return id
}

// RebuttalRequest is the founder's answer to the killer question.
type RebuttalRequest struct {
	Question string
	Answer   string
	Context  string
}

// Rebut returns the skeptic's short reply to the founder's defence.
func (s *Service) Rebut(ctx context.Context, req RebuttalRequest) (string, error) {
	text, err := s.gen.Generate(ctx, llm.Request{
		Model:  s.cfg.AdversarialModel,
		Prompt: RebuttalPrompt(req),
	})
	if err != nil {
		return "", fmt.Errorf("rebuttal: %w", err)
	}
	return text, nil
}
