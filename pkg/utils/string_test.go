package utils

import (
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"long string gets ellipsis", "hello world", 8, "hello..."},
		{"tiny limit has no ellipsis", "hello", 2, "he"},
		{"multibyte runes survive", "héllo wörld", 8, "héllo..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.input, tt.maxLen); got != tt.want {
				t.Fatalf("Truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestSplitMessageRespectsLimit(t *testing.T) {
	content := strings.Repeat("word ", 100)
	chunks := SplitMessage(content, 50)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len([]rune(chunk)) > 50 {
			t.Fatalf("chunk %d exceeds limit: %d runes", i, len([]rune(chunk)))
		}
	}
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	content := "first line\nsecond line\nthird line"
	chunks := SplitMessage(content, 24)

	if len(chunks) < 2 {
		t.Fatalf("expected a split, got %v", chunks)
	}
	if chunks[0] != "first line\nsecond line" && chunks[0] != "first line" {
		t.Fatalf("expected split on newline, got %q", chunks[0])
	}
}

func TestSplitMessageShortContent(t *testing.T) {
	chunks := SplitMessage("short", 100)
	if len(chunks) != 1 || chunks[0] != "short" {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
	if SplitMessage("", 100) != nil {
		t.Fatal("empty content should produce no chunks")
	}
}
