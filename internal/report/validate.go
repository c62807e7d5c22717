package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// SchemaError lists the ways a model response failed to match its schema.
type SchemaError struct {
	Schema   string
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s does not match schema: %s", e.Schema, strings.Join(e.Problems, "; "))
}

// StripFences removes a markdown code fence around a JSON body, which some
// models add even when asked for bare JSON.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decodeObject checks that text is a JSON object carrying every required key,
// then decodes it into dst. Unknown keys are ignored.
func decodeObject(schema, text string, required []string, dst any) error {
	body := StripFences(text)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return &SchemaError{Schema: schema, Problems: []string{"not a JSON object: " + err.Error()}}
	}

	var problems []string
	for _, k := range required {
		v, ok := fields[k]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			problems = append(problems, "missing "+k)
		}
	}
	if len(problems) > 0 {
		return &SchemaError{Schema: schema, Problems: problems}
	}

	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return &SchemaError{Schema: schema, Problems: []string{err.Error()}}
	}
	return nil
}

func checkRange(problems []string, field string, v, lo, hi int) []string {
	if v < lo || v > hi {
		return append(problems, fmt.Sprintf("%s = %d, outside %d..%d", field, v, lo, hi))
	}
	return problems
}

func checkEnum(problems []string, field, v string, allowed []string) []string {
	if !slices.Contains(allowed, v) {
		return append(problems, fmt.Sprintf("%s = %q, want one of %s", field, v, strings.Join(allowed, "|")))
	}
	return problems
}
