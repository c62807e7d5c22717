// Package persona defines the fixed reviewer roles of the investment
// committee and the agent cards that introduce them to the model.
package persona

import (
	"encoding/json"
	"strings"
)

// Protocol is the tag every agent prompt opens with.
const Protocol = "a2aproject-v1.0"

// Card describes an agent in the A2A agent-card format.
type Card struct {
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	ProtocolVersion    string       `json:"protocolVersion"`
	Version            string       `json:"version"`
	URL                string       `json:"url"`
	DefaultInputModes  []string     `json:"defaultInputModes"`
	DefaultOutputModes []string     `json:"defaultOutputModes"`
	Capabilities       Capabilities `json:"capabilities"`
	Skills             []Skill      `json:"skills"`
}

type Capabilities struct {
	Streaming bool `json:"streaming"`
}

type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// JSON returns the card's compact JSON encoding as embedded in prompts.
func (c Card) JSON() string {
	b, err := json.Marshal(c)
	if err != nil {
		// Card holds only strings, slices of strings and a bool.
		panic(err)
	}
	return string(b)
}

// Persona is one committee member.
type Persona struct {
	ID          string // stable identifier: sarah, marcus, leo
	Label       string // transcript label: SARAH, MARCUS, LEO
	Card        Card
	Task        string // single-deck instruction
	CompareTask string // per-deck instruction in a comparison
	Focus       string // heading for the comparison synthesis prompt
}

// Committee returns the reviewers in their fixed order. Synthesis prompts
// reference opinions in this order.
func Committee(baseURL string) []Persona {
	base := strings.TrimRight(baseURL, "/")
	return []Persona{
		{
			ID:    "sarah",
			Label: "SARAH",
			Card: card(base, "sarah", "Sarah (Liquidator)",
				"Skeptical GP with 20 years experience focusing on risk assessment and execution gaps.",
				"text/plain",
				Skill{ID: "risk-audit", Name: "Risk Audit", Description: "In-depth risk assessment of startup narratives.", Tags: []string{"risk", "vc"}},
				Skill{ID: "narrative-pressure-test", Name: "Pressure Test", Description: "Adversarial testing of pitch logic.", Tags: []string{"narrative", "adversarial"}},
			),
			Task:        "Perform risk audit on this deck:",
			CompareTask: "Perform risk audit. Rate 0-100. Be concise.",
			Focus:       "Risk Analysis",
		},
		{
			ID:    "marcus",
			Label: "MARCUS",
			Card: card(base, "marcus", "Marcus (The Hawk)",
				"Data-driven specialist focusing on TAM, unit economics, and competitive realism.",
				"text/plain",
				Skill{ID: "market-sizing", Name: "Market Sizing", Description: "Bottoms-up TAM and market realism check.", Tags: []string{"market", "data"}},
				Skill{ID: "data-validation", Name: "Data Validation", Description: "Verification of unit economics and projections.", Tags: []string{"economics", "validation"}},
			),
			Task:        "Perform market/data validation on this deck:",
			CompareTask: "Perform market validation. Rate 0-100. Be concise.",
			Focus:       "Market Analysis",
		},
		{
			ID:    "leo",
			Label: "LEO",
			Card: card(base, "leo", "Leo (The Visionary)",
				"Product-obsessed partner looking for moonshots and 'Why Now' narratives.",
				"text/plain",
				Skill{ID: "product-strategy", Name: "Product Strategy", Description: "Assessment of PMF and product-led growth potential.", Tags: []string{"product", "strategy"}},
				Skill{ID: "vision-check", Name: "Vision Check", Description: "Validation of 'Why Now' and long-term moonshot potential.", Tags: []string{"vision", "moonshot"}},
			),
			Task:        "Perform product/vision strategic check on this deck:",
			CompareTask: "Perform vision check. Rate 0-100. Be concise.",
			Focus:       "Vision Analysis",
		},
	}
}

// Names returns the card names of ps in order.
func Names(ps []Persona) []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Card.Name
	}
	return names
}

// Orchestrator is the card of the synthesis agent.
func Orchestrator(baseURL string) Card {
	return card(strings.TrimRight(baseURL, "/"), "", "IC Orchestrator",
		"Synthesizer for the Multi-Agent Investment Committee.",
		"application/json",
		Skill{ID: "synthesis", Name: "Report Synthesis", Description: "Synthesizing divergent agent reports into a coordinated diagnostic.", Tags: []string{"synthesis", "orchestration"}},
	)
}

// Oracle is the card of the internal market-intelligence agent. Its output is
// never shown to users.
func Oracle(baseURL string) Card {
	c := card(strings.TrimRight(baseURL, "/"), "", "The Oracle",
		"Internal intelligence agent for sector classification, stage detection, and narrative fingerprinting.",
		"application/json",
		Skill{ID: "sector-classification", Name: "Sector Classification", Description: "Identifies the startup's primary industry and sub-sector.", Tags: []string{"sector", "classification"}},
		Skill{ID: "stage-detection", Name: "Stage Detection", Description: "Determines the funding stage and requested capital.", Tags: []string{"stage", "funding"}},
		Skill{ID: "narrative-fingerprinting", Name: "Narrative Fingerprinting", Description: "Extracts key claims and buzzwords from the pitch.", Tags: []string{"narrative", "trends"}},
	)
	c.URL = strings.TrimRight(baseURL, "/") + "/api/internal/oracle"
	return c
}

func card(base, id, name, description, outputMode string, skills ...Skill) Card {
	url := base + "/api/roast"
	if id != "" {
		url += "/" + id
	}
	return Card{
		Name:               name,
		Description:        description,
		ProtocolVersion:    "1.0.0",
		Version:            "1.0.0",
		URL:                url,
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{outputMode},
		Skills:             skills,
	}
}
