package archive

import (
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		want string
	}{
		{"deck.pdf", "user-1/2026/03/abc-deck.pdf"},
		{"../../etc/passwd", "user-1/2026/03/abc-passwd"},
		{`C:\decks\seed.pdf`, "user-1/2026/03/abc-seed.pdf"},
		{"", "user-1/2026/03/abc-deck.pdf"},
	}
	for _, tt := range tests {
		if got := ObjectKey("user-1", tt.name, at, "abc"); got != tt.want {
			t.Errorf("ObjectKey(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
