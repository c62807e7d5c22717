package extract

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateShortStringUnchanged(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("Truncate = %q, want %q", got, "hello")
	}
}

func TestTruncateAtLimit(t *testing.T) {
	s := strings.Repeat("a", MaxChars+500)
	got := Truncate(s, MaxChars)
	if len(got) != MaxChars {
		t.Errorf("len = %d, want %d", len(got), MaxChars)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("é", 10)
	got := Truncate(s, 4)
	if !utf8.ValidString(got) {
		t.Fatalf("Truncate produced invalid UTF-8: %q", got)
	}
	if utf8.RuneCountInString(got) != 4 {
		t.Errorf("rune count = %d, want 4", utf8.RuneCountInString(got))
	}
}

func TestTruncateZeroLimit(t *testing.T) {
	if got := Truncate("abc", 0); got != "" {
		t.Errorf("Truncate(0) = %q, want empty", got)
	}
}

func TestTextRejectsEmpty(t *testing.T) {
	if _, err := Text(nil); err == nil {
		t.Error("Text(nil) returned nil error")
	}
}

func TestTextRejectsGarbage(t *testing.T) {
	if _, err := Text([]byte("this is not a pdf")); err == nil {
		t.Error("Text(garbage) returned nil error")
	}
}
