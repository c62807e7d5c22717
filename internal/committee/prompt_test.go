package committee

import (
	"strings"
	"testing"

	"github.com/Bharath-code/deckslayer/internal/persona"
)

func TestAgentPrompt(t *testing.T) {
	p := persona.Committee("http://localhost:3000")[0]
	got := AgentPrompt(p, "DECK TEXT")
	wantPrefix := "PROTOCOL: a2aproject-v1.0\nAGENT_CARD: {"
	if !strings.HasPrefix(got, wantPrefix) {
		t.Errorf("prompt prefix = %q, want %q", got[:len(wantPrefix)], wantPrefix)
	}
	if !strings.HasSuffix(got, "\nTASK: Perform risk audit on this deck: DECK TEXT") {
		t.Errorf("prompt = %q, want risk-audit task with deck text", got)
	}
}

func TestCompareAgentPrompt(t *testing.T) {
	p := persona.Committee("http://localhost:3000")[2]
	got := CompareAgentPrompt(p, "B TEXT")
	if !strings.HasSuffix(got, "\nTASK: Perform vision check. Rate 0-100. Be concise.\nDECK: B TEXT") {
		t.Errorf("prompt = %q", got)
	}
}

func TestSynthesisPromptOrder(t *testing.T) {
	ps := persona.Committee("http://x")
	ops := []Opinion{
		{PersonaID: "sarah", Label: "SARAH", Text: "one"},
		{PersonaID: "marcus", Label: "MARCUS", Text: "two"},
		{PersonaID: "leo", Label: "LEO", Text: "three"},
	}
	got := SynthesisPrompt(persona.Orchestrator("http://x"), ps, ops)
	want := "REPORT [SARAH]: one\nREPORT [MARCUS]: two\nREPORT [LEO]: three\n"
	if !strings.Contains(got, want) {
		t.Errorf("prompt missing ordered reports:\n%s", got)
	}
	if !strings.Contains(got, "reports from three A2A-compliant agents") {
		t.Errorf("prompt missing agent count:\n%s", got)
	}
	if !strings.HasSuffix(got, "Orchestrator: IC Orchestrator\n") {
		t.Errorf("prompt missing orchestrator metadata:\n%s", got)
	}
}
