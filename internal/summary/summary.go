// Package summary produces the natural-language digest of a transcript.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shpitdev/transcript-digest/internal/llm"
	"github.com/shpitdev/transcript-digest/internal/logger"
)

// ErrEmptySummary is returned when the model answered without any text.
var ErrEmptySummary = errors.New("model returned an empty summary")

// Options are the fixed generation parameters for the summary call.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float32
	// Language is the language the summary should be written in.
	Language string
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4096
	}
	if strings.TrimSpace(o.Language) == "" {
		o.Language = "japanese"
	}
	return o
}

// Generator runs the summary call.
type Generator struct {
	client llm.Client
	opts   Options
	logger logger.Logger
}

func NewGenerator(client llm.Client, opts Options, log logger.Logger) *Generator {
	if log == nil {
		log = logger.Discard()
	}
	return &Generator{client: client, opts: opts.withDefaults(), logger: log}
}

// BuildPrompt embeds the transcript verbatim followed by the instruction line.
func BuildPrompt(transcript, language string) string {
	return fmt.Sprintf("%s\n\nGive me the summary, speakers, key discussions, and action items in %s", transcript, language)
}

// Summarize returns the first text segment of the model reply. There is no retry here; a
// failed call or an empty reply is returned to the caller.
func (g *Generator) Summarize(ctx context.Context, transcript string) (string, error) {
	req := llm.Request{
		Model:       g.opts.Model,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
		Messages: []llm.Message{{
			Role:  llm.RoleUser,
			Parts: []llm.Part{llm.TextPart(BuildPrompt(transcript, g.opts.Language))},
		}},
	}
	resp, err := g.client.Invoke(ctx, req)
	if err != nil {
		return "", fmt.Errorf("summary inference: %w", err)
	}
	text := resp.FirstText()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptySummary
	}
	g.logger.Debug(ctx, "summary generated: chars=%d inputTokens=%d outputTokens=%d", len(text), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return text, nil
}
