package committee

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Bharath-code/deckslayer/internal/llm"
	"github.com/Bharath-code/deckslayer/internal/oracle"
	"github.com/Bharath-code/deckslayer/internal/persona"
	"github.com/Bharath-code/deckslayer/internal/report"
	"github.com/Bharath-code/deckslayer/internal/storage"
)

const auditJSON = `{"headline_burn":"Pre-revenue, post-hype","fundability_score":41,` +
	`"meeting_transcript":[{"partner":"SARAH","comment":"Burn is fatal"},{"partner":"MARCUS","comment":"TAM is fiction","a2a_status":"verified"},{"partner":"LEO","comment":"No why-now"}],` +
	`"red_flag_count":3,"red_flags":[{"title":"Burn","reason":"9 months runway"},{"title":"TAM","reason":"top-down"}],` +
	`"slayers_list":["Cut burn","Rebuild TAM"],"market_benchmark":"Seed median 12M post","narrative_delta":"wide",` +
	`"killer_question":"What happens at month 10?","a2a_metadata":{"protocol":"a2aproject-v1.0","agents_consulted":["Sarah (Liquidator)","Marcus (The Hawk)","Leo (The Visionary)"],"orchestrator":"IC Orchestrator"}}`

const comparisonJSON = `{"deck_a_name":"ignored","deck_b_name":"ignored","deck_a_score":66,"deck_b_score":52,"winner":"deck_a",` +
	`"winner_reasoning":"traction","score_delta":14,"category_breakdown":[],"combined_red_flags":[{"deck":"deck_b","flag":"No moat","severity":"major"}],` +
	`"vc_verdict":"A","investment_recommendation":{"recommended_deck":"deck_a","confidence":70,"rationale":"revenue"}}`

type mockGenerator struct {
	generateFn func(ctx context.Context, req llm.Request) (string, error)
	streamFn   func(ctx context.Context, req llm.Request, onDelta func(string) error) (string, error)
}

func (m *mockGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	return m.generateFn(ctx, req)
}

func (m *mockGenerator) Stream(ctx context.Context, req llm.Request, onDelta func(string) error) (string, error) {
	return m.streamFn(ctx, req, onDelta)
}

type debit struct {
	userID string
	amount int
	reason string
}

type mockLedger struct {
	mu          sync.Mutex
	debits      []debit
	debitErr    error
	hasPurchase bool
}

func (m *mockLedger) Debit(_ context.Context, userID string, amount int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debits = append(m.debits, debit{userID, amount, reason})
	return m.debitErr
}

func (m *mockLedger) HasPurchased(_ context.Context, _, productID string) (bool, error) {
	return m.hasPurchase && productID == "p_batch", nil
}

type mockStore struct {
	mu          sync.Mutex
	analyses    []storage.Analysis
	comparisons []storage.Comparison
	jobs        []storage.Job
	enqueueErr  error
}

func (m *mockStore) InsertAnalysis(_ context.Context, a storage.Analysis) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses = append(m.analyses, a)
	return "analysis-1", nil
}

func (m *mockStore) InsertComparison(_ context.Context, c storage.Comparison) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comparisons = append(m.comparisons, c)
	return "comparison-1", nil
}

func (m *mockStore) EnqueueJob(_ context.Context, job storage.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.jobs = append(m.jobs, job)
	return nil
}

var testConfig = Config{
	BaseURL:           "http://localhost:3000",
	AnalysisModel:     "analysis-model",
	OrchestratorModel: "orchestrator-model",
	AdversarialModel:  "adversarial-model",
	BatchProduct:      "p_batch",
}

// personaOf reports which committee member a dispatch prompt addresses.
func personaOf(prompt string) string {
	for _, p := range persona.Committee(testConfig.BaseURL) {
		if strings.Contains(prompt, `"name":"`+p.Card.Name+`"`) {
			return p.ID
		}
	}
	return ""
}

// committeeGenerator answers persona calls with "opinion-<id>" after a
// per-persona delay, and synthesis calls (those carrying a schema) with
// synthesis. The last synthesis prompt is recorded.
func committeeGenerator(delays map[string]time.Duration, synthesis string) (*mockGenerator, *atomic.Int32, *string) {
	var calls atomic.Int32
	var mu sync.Mutex
	var synthPrompt string
	gen := &mockGenerator{
		generateFn: func(_ context.Context, req llm.Request) (string, error) {
			calls.Add(1)
			if req.Schema != nil {
				mu.Lock()
				synthPrompt = req.Prompt
				mu.Unlock()
				return synthesis, nil
			}
			id := personaOf(req.Prompt)
			time.Sleep(delays[id])
			return "opinion-" + id, nil
		},
	}
	return gen, &calls, &synthPrompt
}

func TestAnalyze_SynthesisPromptKeepsPersonaOrder(t *testing.T) {
	// Completion order is leo, marcus, sarah.
	gen, calls, synthPrompt := committeeGenerator(map[string]time.Duration{
		"sarah": 40 * time.Millisecond, "marcus": 20 * time.Millisecond,
	}, auditJSON)
	svc := NewService(gen, &mockStore{}, &mockLedger{}, testConfig)

	res, err := svc.Analyze(context.Background(), AnalysisRequest{UserID: "u1", DeckName: "deck.pdf", Text: "deck text"}, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if calls.Load() != 4 {
		t.Errorf("provider calls = %d, want 4", calls.Load())
	}

	p := *synthPrompt
	iS := strings.Index(p, "REPORT [SARAH]: opinion-sarah")
	iM := strings.Index(p, "REPORT [MARCUS]: opinion-marcus")
	iL := strings.Index(p, "REPORT [LEO]: opinion-leo")
	if iS < 0 || iM < 0 || iL < 0 {
		t.Fatalf("synthesis prompt missing an opinion:\n%s", p)
	}
	if !(iS < iM && iM < iL) {
		t.Errorf("opinion order = %d,%d,%d, want sarah < marcus < leo", iS, iM, iL)
	}
	if !strings.Contains(p, "Consulted: Sarah (Liquidator), Marcus (The Hawk), Leo (The Visionary)") {
		t.Errorf("synthesis prompt missing consulted metadata:\n%s", p)
	}

	if res.Report.FundabilityScore < 0 || res.Report.FundabilityScore > 100 {
		t.Errorf("FundabilityScore = %d, want 0..100", res.Report.FundabilityScore)
	}
	if res.Report.RedFlagCount != len(res.Report.RedFlags) {
		t.Errorf("RedFlagCount = %d, want %d", res.Report.RedFlagCount, len(res.Report.RedFlags))
	}
}

func TestDispatch_RunsPersonasConcurrently(t *testing.T) {
	var started atomic.Int32
	gen := &mockGenerator{generateFn: func(ctx context.Context, req llm.Request) (string, error) {
		started.Add(1)
		deadline := time.Now().Add(2 * time.Second)
		for started.Load() < 3 {
			if time.Now().After(deadline) {
				return "", errors.New("calls were not concurrent")
			}
			time.Sleep(time.Millisecond)
		}
		return "ok", nil
	}}

	d := NewDispatcher(gen, "m")
	ops, err := d.Dispatch(context.Background(), "text", persona.Committee("http://x"), AgentPrompt)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(ops) != 3 {
		t.Errorf("len(ops) = %d, want 3", len(ops))
	}
}

func TestDispatch_TruncatesOnceAndSharesText(t *testing.T) {
	long := strings.Repeat("x", 9000)
	var mu sync.Mutex
	var lengths []int
	gen := &mockGenerator{generateFn: func(_ context.Context, req llm.Request) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		lengths = append(lengths, strings.Count(req.Prompt, "x"))
		return "ok", nil
	}}

	d := NewDispatcher(gen, "m")
	if _, err := d.Dispatch(context.Background(), long, persona.Committee("http://x"), CompareAgentPrompt); err != nil {
		t.Fatal(err)
	}
	for _, n := range lengths {
		// The card JSON contributes a few x characters of its own; the deck
		// contributes at most 8000.
		if n < 8000 || n > 8100 {
			t.Errorf("x count in prompt = %d, want ~8000", n)
		}
	}
}

func TestAnalyze_PersonaFailureAbandonsBatch(t *testing.T) {
	boom := errors.New("provider down")
	gen := &mockGenerator{generateFn: func(_ context.Context, req llm.Request) (string, error) {
		if req.Schema != nil {
			t.Error("synthesis called after a persona failed")
		}
		if personaOf(req.Prompt) == "marcus" {
			return "", boom
		}
		return "fine", nil
	}}
	store, ledger := &mockStore{}, &mockLedger{}
	svc := NewService(gen, store, ledger, testConfig)

	_, err := svc.Analyze(context.Background(), AnalysisRequest{UserID: "u1", DeckName: "d.pdf", Text: "t"}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(ledger.debits) != 0 || len(store.analyses) != 0 {
		t.Errorf("debits, analyses = %d, %d, want 0, 0", len(ledger.debits), len(store.analyses))
	}
}

func TestAnalyze_SchemaFailureChargesNothing(t *testing.T) {
	gen, _, _ := committeeGenerator(nil, `{"headline_burn":"only this"}`)
	store, ledger := &mockStore{}, &mockLedger{}
	svc := NewService(gen, store, ledger, testConfig)

	_, err := svc.Analyze(context.Background(), AnalysisRequest{UserID: "u1", DeckName: "d.pdf", Text: "t"}, nil)
	var se *report.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *report.SchemaError", err)
	}
	if len(ledger.debits) != 0 || len(store.analyses) != 0 || len(store.jobs) != 0 {
		t.Errorf("side effects after schema failure: debits=%d analyses=%d jobs=%d", len(ledger.debits), len(store.analyses), len(store.jobs))
	}
}

func TestAnalyze_PersistsAfterReport(t *testing.T) {
	gen, _, _ := committeeGenerator(nil, auditJSON)
	store, ledger := &mockStore{}, &mockLedger{hasPurchase: true}
	svc := NewService(gen, store, ledger, testConfig)

	res, err := svc.Analyze(context.Background(), AnalysisRequest{UserID: "u1", DeckName: "deck.pdf", Text: "deck text"}, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.AnalysisID != "analysis-1" {
		t.Errorf("AnalysisID = %q, want analysis-1", res.AnalysisID)
	}

	want := []debit{{"u1", 1, "Audit of deck.pdf"}}
	if !reflect.DeepEqual(ledger.debits, want) {
		t.Errorf("debits = %v, want %v", ledger.debits, want)
	}
	if len(store.analyses) != 1 {
		t.Fatalf("analyses = %d, want 1", len(store.analyses))
	}
	a := store.analyses[0]
	if !a.ExportUnlocked {
		t.Error("ExportUnlocked = false, want true for batch purchaser")
	}
	if a.FundabilityScore != 41 {
		t.Errorf("FundabilityScore = %d, want 41", a.FundabilityScore)
	}

	if len(store.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(store.jobs))
	}
	job := store.jobs[0]
	if job.Type != oracle.JobType || job.MaxAttempts != 1 {
		t.Errorf("job = %s/%d, want %s/1", job.Type, job.MaxAttempts, oracle.JobType)
	}
	var payload oracle.Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.AnalysisID != "analysis-1" || payload.Text != "deck text" || payload.FundabilityScore != 41 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestAnalyze_EnqueueFailureDoesNotFailRequest(t *testing.T) {
	gen, _, _ := committeeGenerator(nil, auditJSON)
	store := &mockStore{enqueueErr: errors.New("queue full")}
	ledger := &mockLedger{}
	svc := NewService(gen, store, ledger, testConfig)

	res, err := svc.Analyze(context.Background(), AnalysisRequest{UserID: "u1", DeckName: "d.pdf", Text: "t"}, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.AnalysisID == "" || len(ledger.debits) != 1 || len(store.analyses) != 1 {
		t.Errorf("id=%q debits=%d analyses=%d, want stored record and one debit", res.AnalysisID, len(ledger.debits), len(store.analyses))
	}
}

func TestAnalyze_DebitFailureStillStoresRecord(t *testing.T) {
	gen, _, _ := committeeGenerator(nil, auditJSON)
	store := &mockStore{}
	svc := NewService(gen, store, &mockLedger{debitErr: errors.New("db down")}, testConfig)

	if _, err := svc.Analyze(context.Background(), AnalysisRequest{UserID: "u1", DeckName: "d.pdf", Text: "t"}, nil); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(store.analyses) != 1 {
		t.Errorf("analyses = %d, want 1", len(store.analyses))
	}
}

func TestAnalyze_ProgressiveMatchesAtomic(t *testing.T) {
	gen, _, _ := committeeGenerator(nil, auditJSON)
	gen.streamFn = func(_ context.Context, req llm.Request, onDelta func(string) error) (string, error) {
		for i := 0; i < len(auditJSON); i += 7 {
			end := min(i+7, len(auditJSON))
			if err := onDelta(auditJSON[i:end]); err != nil {
				return "", err
			}
		}
		return auditJSON, nil
	}
	svc := NewService(gen, &mockStore{}, &mockLedger{}, testConfig)

	var partials []json.RawMessage
	res, err := svc.Analyze(context.Background(), AnalysisRequest{UserID: "u1", DeckName: "d.pdf", Text: "t"}, func(p json.RawMessage) error {
		partials = append(partials, p)
		return nil
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(partials) < 2 {
		t.Fatalf("partials = %d, want several", len(partials))
	}
	for i, p := range partials {
		if !json.Valid(p) {
			t.Errorf("partial %d invalid: %s", i, p)
		}
		if i > 0 && string(p) == string(partials[i-1]) {
			t.Errorf("partial %d repeats the previous one", i)
		}
	}

	atomicRes, err := NewService(gen, &mockStore{}, &mockLedger{}, testConfig).
		Analyze(context.Background(), AnalysisRequest{UserID: "u1", DeckName: "d.pdf", Text: "t"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Report, atomicRes.Report) {
		t.Errorf("progressive report = %+v, want %+v", res.Report, atomicRes.Report)
	}
}

func TestAnalyze_ProgressivePartialsNeverShrink(t *testing.T) {
	// A fractional number and a unicode escape both pass through states the
	// repair has to cut back from.
	doc := strings.Replace(auditJSON, `"fundability_score":41,`, `"fundability_score":41,"latency":0.75,`, 1)
	doc = strings.Replace(doc, `Pre-revenue`, `Pr\u00e9-revenue`, 1)

	gen, _, _ := committeeGenerator(nil, doc)
	gen.streamFn = func(_ context.Context, _ llm.Request, onDelta func(string) error) (string, error) {
		for i := 0; i < len(doc); i++ {
			if err := onDelta(doc[i : i+1]); err != nil {
				return "", err
			}
		}
		return doc, nil
	}
	svc := NewService(gen, &mockStore{}, &mockLedger{}, testConfig)

	var partials []json.RawMessage
	_, err := svc.Analyze(context.Background(), AnalysisRequest{UserID: "u1", DeckName: "d.pdf", Text: "t"}, func(p json.RawMessage) error {
		partials = append(partials, p)
		return nil
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for i := 1; i < len(partials); i++ {
		if len(partials[i]) < len(partials[i-1]) {
			t.Fatalf("partial %d shrank:\n%s\nafter\n%s", i, partials[i], partials[i-1])
		}
	}
	var sawLatency bool
	for _, p := range partials {
		if strings.Contains(string(p), `"latency":0.75`) {
			sawLatency = true
		}
	}
	if !sawLatency {
		t.Error("no partial carried the finished latency value")
	}
}

func TestAnalyze_ProgressiveCallbackErrorAborts(t *testing.T) {
	gen, _, _ := committeeGenerator(nil, auditJSON)
	gen.streamFn = func(_ context.Context, _ llm.Request, onDelta func(string) error) (string, error) {
		if err := onDelta(`{"headline_burn":"x"`); err != nil {
			return "", err
		}
		return auditJSON, nil
	}
	store, ledger := &mockStore{}, &mockLedger{}
	svc := NewService(gen, store, ledger, testConfig)

	gone := errors.New("client disconnected")
	_, err := svc.Analyze(context.Background(), AnalysisRequest{UserID: "u1", DeckName: "d.pdf", Text: "t"}, func(json.RawMessage) error {
		return gone
	})
	if !errors.Is(err, gone) {
		t.Fatalf("err = %v, want %v", err, gone)
	}
	if len(ledger.debits) != 0 {
		t.Errorf("debits = %d, want 0", len(ledger.debits))
	}
}

func TestCompare_RunsBothDecksAndDebitsTwo(t *testing.T) {
	var personaCalls atomic.Int32
	var mu sync.Mutex
	var synthPrompt string
	gen := &mockGenerator{generateFn: func(_ context.Context, req llm.Request) (string, error) {
		if req.Schema != nil {
			mu.Lock()
			synthPrompt = req.Prompt
			mu.Unlock()
			return comparisonJSON, nil
		}
		personaCalls.Add(1)
		deck := "A"
		if strings.Contains(req.Prompt, "DECK: text of B") {
			deck = "B"
		}
		return personaOf(req.Prompt) + "-on-" + deck, nil
	}}
	store, ledger := &mockStore{}, &mockLedger{}
	svc := NewService(gen, store, ledger, testConfig)

	res, err := svc.Compare(context.Background(), CompareRequest{
		UserID: "u1",
		Decks:  [2]Deck{{Name: "a.pdf", Text: "text of A"}, {Name: "b.pdf", Text: "text of B"}},
	})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if personaCalls.Load() != 6 {
		t.Errorf("persona calls = %d, want 6", personaCalls.Load())
	}
	if res.DeckAName != "a.pdf" || res.DeckBName != "b.pdf" {
		t.Errorf("deck names = %q, %q, want upload labels", res.DeckAName, res.DeckBName)
	}
	if res.ComparisonID != "comparison-1" {
		t.Errorf("ComparisonID = %q, want comparison-1", res.ComparisonID)
	}

	for _, want := range []string{
		"DECK A (a.pdf):\nRisk Analysis: sarah-on-A\nMarket Analysis: marcus-on-A\nVision Analysis: leo-on-A",
		"DECK B (b.pdf):\nRisk Analysis: sarah-on-B\nMarket Analysis: marcus-on-B\nVision Analysis: leo-on-B",
	} {
		if !strings.Contains(synthPrompt, want) {
			t.Errorf("comparison prompt missing %q:\n%s", want, synthPrompt)
		}
	}

	wantDebits := []debit{{"u1", 2, "Comparative analysis: a.pdf vs b.pdf"}}
	if !reflect.DeepEqual(ledger.debits, wantDebits) {
		t.Errorf("debits = %v, want %v", ledger.debits, wantDebits)
	}
	if len(store.comparisons) != 1 || len(store.jobs) != 0 {
		t.Errorf("comparisons, jobs = %d, %d, want 1, 0", len(store.comparisons), len(store.jobs))
	}

	body, _ := json.Marshal(res)
	if !strings.Contains(string(body), `"comparison_id":"comparison-1"`) || !strings.Contains(string(body), `"winner":"deck_a"`) {
		t.Errorf("result JSON = %s", body)
	}
}

func TestRebut(t *testing.T) {
	var got llm.Request
	gen := &mockGenerator{generateFn: func(_ context.Context, req llm.Request) (string, error) {
		got = req
		return "Sarah sighs. Nobody pays for that.", nil
	}}
	svc := NewService(gen, &mockStore{}, &mockLedger{}, testConfig)

	text, err := svc.Rebut(context.Background(), RebuttalRequest{Question: "Why now?", Answer: "Because AI", Context: "AI for dentists"})
	if err != nil {
		t.Fatalf("Rebut: %v", err)
	}
	if text != "Sarah sighs. Nobody pays for that." {
		t.Errorf("text = %q", text)
	}
	if got.Model != "adversarial-model" {
		t.Errorf("Model = %q, want adversarial-model", got.Model)
	}
	for _, want := range []string{"ROLE: SARAH", `"Why now?"`, `"Because AI"`, "AI for dentists", "max 3 sentences"} {
		if !strings.Contains(got.Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
