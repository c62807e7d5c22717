// Package report holds the structured outputs of the committee and the pure
// functions that validate model responses against them.
package report

import (
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// DefaultA2AStatus is the transcript status used when the model omits one.
const DefaultA2AStatus = "verified"

// Partner labels allowed in a meeting transcript.
var Partners = []string{"SARAH", "MARCUS", "LEO"}

// AuditReport is the synthesized single-deck report.
//
//	{
//	  "headline_burn": "string",
//	  "fundability_score": "integer (0-100)",
//	  "meeting_transcript": [{"partner": "SARAH | MARCUS | LEO", "comment": "string", "a2a_status": "string"}],
//	  "red_flag_count": "integer",
//	  "red_flags": [{"title": "string", "reason": "string"}],
//	  "slayers_list": ["string"],
//	  "market_benchmark": "string",
//	  "narrative_delta": "string",
//	  "killer_question": "string",
//	  "slide_breakdown": [{"slide": "string", "critique": "string", "score": "integer (0-100)"}],
//	  "a2a_metadata": {"protocol": "string", "agents_consulted": ["string"], "orchestrator": "string"}
//	}
type AuditReport struct {
	HeadlineBurn      string           `json:"headline_burn"`
	FundabilityScore  int              `json:"fundability_score"`
	MeetingTranscript []TranscriptTurn `json:"meeting_transcript"`
	RedFlagCount      int              `json:"red_flag_count"`
	RedFlags          []RedFlag        `json:"red_flags"`
	SlayersList       []string         `json:"slayers_list"`
	MarketBenchmark   string           `json:"market_benchmark"`
	NarrativeDelta    string           `json:"narrative_delta"`
	KillerQuestion    string           `json:"killer_question"`
	SlideBreakdown    []SlideScore     `json:"slide_breakdown,omitempty"`
	A2AMetadata       A2AMetadata      `json:"a2a_metadata"`
}

type TranscriptTurn struct {
	Partner   string `json:"partner"`
	Comment   string `json:"comment"`
	A2AStatus string `json:"a2a_status"`
}

type RedFlag struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

type SlideScore struct {
	Slide    string `json:"slide"`
	Critique string `json:"critique"`
	Score    int    `json:"score"`
}

type A2AMetadata struct {
	Protocol        string   `json:"protocol"`
	AgentsConsulted []string `json:"agents_consulted"`
	Orchestrator    string   `json:"orchestrator"`
}

var auditRequired = []string{
	"headline_burn", "fundability_score", "meeting_transcript", "red_flag_count",
	"red_flags", "slayers_list", "market_benchmark", "narrative_delta",
	"killer_question", "a2a_metadata",
}

// AuditSchema is the response format sent with the synthesis request.
func AuditSchema() *jsonschema.Definition {
	str := jsonschema.Definition{Type: jsonschema.String}
	score := jsonschema.Definition{Type: jsonschema.Integer, Description: "0-100"}
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"headline_burn":     {Type: jsonschema.String, Description: "A brutal, punchy headline summarizing the deck's failure."},
			"fundability_score": {Type: jsonschema.Integer, Description: "Overall fundability score, 0-100."},
			"meeting_transcript": {
				Type:        jsonschema.Array,
				Description: "Simulated dialogue between the IC partners.",
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"partner":    {Type: jsonschema.String, Enum: Partners},
						"comment":    str,
						"a2a_status": str,
					},
					Required: []string{"partner", "comment"},
				},
			},
			"red_flag_count": {Type: jsonschema.Integer},
			"red_flags": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type:       jsonschema.Object,
					Properties: map[string]jsonschema.Definition{"title": str, "reason": str},
					Required:   []string{"title", "reason"},
				},
			},
			"slayers_list":     {Type: jsonschema.Array, Items: &str, Description: "List of critical points mentioned by the partners."},
			"market_benchmark": {Type: jsonschema.String, Description: "Contextual market valuation or benchmark."},
			"narrative_delta":  {Type: jsonschema.String, Description: "The gap between stated problem and proposed solution."},
			"killer_question":  {Type: jsonschema.String, Description: "The most difficult question the founder must answer."},
			"slide_breakdown": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type:       jsonschema.Object,
					Properties: map[string]jsonschema.Definition{"slide": str, "critique": str, "score": score},
					Required:   []string{"slide", "critique", "score"},
				},
			},
			"a2a_metadata": {
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"protocol":         str,
					"agents_consulted": {Type: jsonschema.Array, Items: &str},
					"orchestrator":     str,
				},
				Required: []string{"protocol", "agents_consulted", "orchestrator"},
			},
		},
		Required: auditRequired,
	}
}

// ParseAuditReport decodes and validates a model response. Validation
// failures are returned as *SchemaError.
func ParseAuditReport(text string) (AuditReport, error) {
	var r AuditReport
	if err := decodeObject("audit report", text, auditRequired, &r); err != nil {
		return AuditReport{}, err
	}

	var problems []string
	problems = checkRange(problems, "fundability_score", r.FundabilityScore, 0, 100)
	for i, t := range r.MeetingTranscript {
		problems = checkEnum(problems, fmt.Sprintf("meeting_transcript[%d].partner", i), t.Partner, Partners)
	}
	for i, s := range r.SlideBreakdown {
		problems = checkRange(problems, fmt.Sprintf("slide_breakdown[%d].score", i), s.Score, 0, 100)
	}
	if len(problems) > 0 {
		return AuditReport{}, &SchemaError{Schema: "audit report", Problems: problems}
	}
	return r, nil
}

// Normalize fills transcript defaults, replaces nil lists with empty ones and
// derives red_flag_count from red_flags. It reports whether the model's own
// count disagreed with the list.
func (r *AuditReport) Normalize() (countMismatch bool) {
	for i := range r.MeetingTranscript {
		if r.MeetingTranscript[i].A2AStatus == "" {
			r.MeetingTranscript[i].A2AStatus = DefaultA2AStatus
		}
	}
	if r.MeetingTranscript == nil {
		r.MeetingTranscript = []TranscriptTurn{}
	}
	if r.RedFlags == nil {
		r.RedFlags = []RedFlag{}
	}
	if r.SlayersList == nil {
		r.SlayersList = []string{}
	}
	if r.A2AMetadata.AgentsConsulted == nil {
		r.A2AMetadata.AgentsConsulted = []string{}
	}
	countMismatch = r.RedFlagCount != len(r.RedFlags)
	r.RedFlagCount = len(r.RedFlags)
	return countMismatch
}

// JSON encodes the report for storage and transport.
func (r AuditReport) JSON() (json.RawMessage, error) {
	return json.Marshal(r)
}
