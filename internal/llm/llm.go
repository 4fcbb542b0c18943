// Package llm defines the provider-neutral request/response shapes used by the summary and
// metadata stages. Provider backends live in the gemini and openai subpackages.
package llm

import (
	"context"
	"strings"
)

// Roles understood by every backend.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PartText is the only content segment type the pipeline sends or reads.
const PartText = "text"

// Part is one typed content segment of a message.
type Part struct {
	Type string
	Text string
}

// TextPart builds a text segment.
func TextPart(s string) Part {
	return Part{Type: PartText, Text: s}
}

// Message is one conversation turn. Segments are kept separate end to end so the model can
// tell instructions apart from attached material.
type Message struct {
	Role  string
	Parts []Part
}

// Request is a single unary inference call.
type Request struct {
	Model       string
	MaxTokens   int
	Temperature float32
	Messages    []Message
}

// Usage holds token accounting when the provider reports it.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the ordered list of typed segments returned by the model.
type Response struct {
	Model string
	Parts []Part
	Usage Usage
}

// FirstText returns the first text segment, or "" when the reply carries none.
func (r Response) FirstText() string {
	for _, p := range r.Parts {
		if p.Type == PartText || p.Type == "" {
			return p.Text
		}
	}
	return ""
}

// Client performs one inference call.
type Client interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (Response, error)

func (f ClientFunc) Invoke(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// PromptChars counts the characters sent in a request. Used for logging only.
func PromptChars(req Request) int {
	n := 0
	for _, m := range req.Messages {
		for _, p := range m.Parts {
			n += len(p.Text)
		}
	}
	return n
}

// JoinText concatenates the text of all parts, one per line. Used for logging and tests.
func JoinText(parts []Part) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
