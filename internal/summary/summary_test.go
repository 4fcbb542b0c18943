package summary_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shpitdev/transcript-digest/internal/llm"
	"github.com/shpitdev/transcript-digest/internal/summary"
)

func TestSummarize(t *testing.T) {
	t.Parallel()

	stub := llm.NewStub("## 概要\n商談の要約")
	g := summary.NewGenerator(stub, summary.Options{Model: "m", Temperature: 0.5}, nil)

	got, err := g.Summarize(context.Background(), "Meeting notes...")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "## 概要\n商談の要約" {
		t.Fatalf("unexpected summary: %q", got)
	}

	reqs := stub.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	req := reqs[0]
	if req.MaxTokens != 4096 || req.Temperature != 0.5 {
		t.Fatalf("unexpected generation params: %#v", req)
	}
	want := "Meeting notes...\n\nGive me the summary, speakers, key discussions, and action items in japanese"
	if len(req.Messages) != 1 || len(req.Messages[0].Parts) != 1 || req.Messages[0].Parts[0].Text != want {
		t.Fatalf("unexpected prompt: %#v", req.Messages)
	}
	if req.Messages[0].Role != llm.RoleUser {
		t.Fatalf("unexpected role %q", req.Messages[0].Role)
	}
}

func TestSummarize_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty reply", func(t *testing.T) {
		t.Parallel()
		g := summary.NewGenerator(llm.NewStub("  \n"), summary.Options{}, nil)
		_, err := g.Summarize(context.Background(), "x")
		if !errors.Is(err, summary.ErrEmptySummary) {
			t.Fatalf("expected ErrEmptySummary, got %v", err)
		}
	})

	t.Run("inference failure", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("throttled")
		stub := (&llm.Stub{}).Push(llm.StubReply{Err: boom})
		g := summary.NewGenerator(stub, summary.Options{}, nil)
		_, err := g.Summarize(context.Background(), "x")
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped inference error, got %v", err)
		}
	})
}
