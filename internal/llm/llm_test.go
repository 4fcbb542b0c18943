package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shpitdev/transcript-digest/internal/llm"
)

func TestResponseFirstText(t *testing.T) {
	tests := []struct {
		name  string
		parts []llm.Part
		want  string
	}{
		{name: "empty", parts: nil, want: ""},
		{name: "first text", parts: []llm.Part{llm.TextPart("a"), llm.TextPart("b")}, want: "a"},
		{name: "skips non text", parts: []llm.Part{{Type: "tool_use", Text: "x"}, llm.TextPart("b")}, want: "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (llm.Response{Parts: tt.parts}).FirstText(); got != tt.want {
				t.Fatalf("FirstText()=%q want=%q", got, tt.want)
			}
		})
	}
}

func TestStubRepliesInOrderThenRepeats(t *testing.T) {
	s := llm.NewStub("one", "two")
	s.Push(llm.StubReply{Err: errors.New("boom")})
	ctx := context.Background()

	for i, want := range []string{"one", "two"} {
		resp, err := s.Invoke(ctx, llm.Request{Model: "m"})
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if resp.FirstText() != want {
			t.Fatalf("call %d: got %q want %q", i, resp.FirstText(), want)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Invoke(ctx, llm.Request{}); err == nil || err.Error() != "boom" {
			t.Fatalf("expected scripted error, got %v", err)
		}
	}
	if got := len(s.Requests()); got != 4 {
		t.Fatalf("expected 4 recorded requests, got %d", got)
	}
}

func TestPromptChars(t *testing.T) {
	req := llm.Request{Messages: []llm.Message{{
		Role:  llm.RoleUser,
		Parts: []llm.Part{llm.TextPart("abc"), llm.TextPart("de")},
	}}}
	if got := llm.PromptChars(req); got != 5 {
		t.Fatalf("PromptChars=%d want=5", got)
	}
	if got := llm.JoinText(req.Messages[0].Parts); got != "abc\nde" {
		t.Fatalf("JoinText=%q", got)
	}
}
