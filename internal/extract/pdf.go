// Package extract turns uploaded deck files into plain text for the committee.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxChars is the per-document character budget sent to the model.
const MaxChars = 8000

// ErrNoText is returned when a PDF parses but yields no text (for example a
// deck exported as flattened images).
var ErrNoText = errors.New("no extractable text in document")

// Text extracts the plain text of a PDF held in memory.
func Text(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty document")
	}

	// The pdf package panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parsing pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("reading extracted text: %w", err)
	}

	text = strings.TrimSpace(string(raw))
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// Truncate returns at most limit characters of s, cutting on a rune boundary.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
