package persona

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCommitteeOrderAndIDs(t *testing.T) {
	ps := Committee("http://localhost:3000")
	want := []string{"sarah", "marcus", "leo"}
	if len(ps) != len(want) {
		t.Fatalf("len = %d, want %d", len(ps), len(want))
	}
	for i, id := range want {
		if ps[i].ID != id {
			t.Errorf("ps[%d].ID = %q, want %q", i, ps[i].ID, id)
		}
		if ps[i].Label != strings.ToUpper(id) {
			t.Errorf("ps[%d].Label = %q, want %q", i, ps[i].Label, strings.ToUpper(id))
		}
	}
}

func TestCardURLsUseBaseURL(t *testing.T) {
	ps := Committee("https://deckslayer.example/")
	if got := ps[1].Card.URL; got != "https://deckslayer.example/api/roast/marcus" {
		t.Errorf("marcus URL = %q", got)
	}
	if got := Orchestrator("https://deckslayer.example").URL; got != "https://deckslayer.example/api/roast" {
		t.Errorf("orchestrator URL = %q", got)
	}
	if got := Oracle("https://deckslayer.example").URL; got != "https://deckslayer.example/api/internal/oracle" {
		t.Errorf("oracle URL = %q", got)
	}
}

func TestCardJSONFieldNames(t *testing.T) {
	var m map[string]any
	if err := json.Unmarshal([]byte(Committee("http://x")[0].Card.JSON()), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"name", "protocolVersion", "defaultInputModes", "defaultOutputModes", "capabilities", "skills"} {
		if _, ok := m[k]; !ok {
			t.Errorf("card JSON missing %q", k)
		}
	}
	if m["name"] != "Sarah (Liquidator)" {
		t.Errorf("name = %v, want Sarah (Liquidator)", m["name"])
	}
}

func TestNames(t *testing.T) {
	got := strings.Join(Names(Committee("http://x")), ", ")
	want := "Sarah (Liquidator), Marcus (The Hawk), Leo (The Visionary)"
	if got != want {
		t.Errorf("Names = %q, want %q", got, want)
	}
}
