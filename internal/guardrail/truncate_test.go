package guardrail

import (
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short", in: "abc", max: 8, want: "abc"},
		{name: "ascii", in: "abcdef", max: 4, want: "abcd..."},
		{name: "rune boundary", in: "会議の要約", max: 6, want: "会議..."},
		{name: "mid rune", in: "会議の要約", max: 7, want: "会議..."},
		{name: "first rune split", in: "会議", max: 2, want: "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := truncate(tt.in, tt.max)
			if got != tt.want {
				t.Fatalf("truncate(%q, %d)=%q want %q", tt.in, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}
