package report

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RepairPartial turns the prefix of a streamed JSON object into the most
// complete valid object it can. Open strings, arrays and objects are closed;
// a dangling key, comma or half-written literal is dropped by cutting back to
// the previous structural boundary. It returns the compacted object and
// false when nothing usable can be recovered yet.
//
// The repair is restartable: it looks only at buf, so callers pass the whole
// accumulated buffer after every chunk.
func RepairPartial(buf string) (json.RawMessage, bool) {
	s := StripFences(buf)
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, false
	}
	s = s[start:]

	boundaries := structuralBoundaries(s)
	cut := len(s)
	for {
		candidate := closeUp(s[:cut])
		var out bytes.Buffer
		if err := json.Compact(&out, []byte(candidate)); err == nil {
			return out.Bytes(), true
		}
		// Step back to the last boundary strictly before cut.
		next := -1
		for len(boundaries) > 0 {
			b := boundaries[len(boundaries)-1]
			boundaries = boundaries[:len(boundaries)-1]
			if b < cut {
				next = b
				break
			}
		}
		if next < 0 {
			return nil, false
		}
		cut = next
	}
}

// structuralBoundaries returns prefix lengths at which s can be cut: just
// before each comma and just after each opening bracket, outside strings.
func structuralBoundaries(s string) []int {
	var out []int
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',':
			out = append(out, i)
		case '{', '[':
			out = append(out, i+1)
		}
	}
	return out
}

// closeUp appends whatever closing characters the prefix s needs.
func closeUp(s string) string {
	var stack []byte
	inString, escaped := false, false
	// Start of an unfinished \uXXXX escape, or -1.
	unicodeStart, hexDigits := -1, 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case unicodeStart >= 0:
				if hexDigits++; hexDigits == 4 {
					unicodeStart = -1
				}
			case escaped:
				escaped = false
				if c == 'u' {
					unicodeStart, hexDigits = i-1, 0
				}
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	out := s
	if inString {
		switch {
		case unicodeStart >= 0:
			// Drop the half-written \u escape.
			out = out[:unicodeStart]
		case escaped:
			// Drop the lone backslash so the closing quote is not escaped.
			out = out[:len(out)-1]
		}
		out += `"`
	}
	out = strings.TrimRight(out, " \t\r\n")
	out = strings.TrimSuffix(out, ",")
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}
