// Package metadata extracts structured meeting metadata from a transcript: it prompts the model
// with a fixed schema, recovers the fenced JSON block from the reply and checks it against the
// schema.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shpitdev/transcript-digest/internal/llm"
	"github.com/shpitdev/transcript-digest/internal/logger"
)

// First ```json fenced block, non-greedy, spanning lines.
var fenceRe = regexp.MustCompile("(?s)```json\\r?\\n(.*?)\\r?\\n```")

// Result is either a parsed object (OK) or a failure reason. Raw holds the exact fenced
// interior that was parsed, which is what gets persisted.
type Result struct {
	OK     bool
	Object map[string]any
	Raw    string
	Reason string
}

func failure(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Parse recovers the metadata object from a model reply. It never panics or returns an error;
// a missing fence, malformed JSON or a non-object document is reported as a failed Result.
func Parse(reply string) Result {
	m := fenceRe.FindStringSubmatch(reply)
	if m == nil {
		return failure("no ```json fenced block in reply")
	}
	raw := strings.TrimSpace(m[1])
	if raw == "" {
		return failure("fenced json block is empty")
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return failure("malformed json in fenced block: %v", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return failure("fenced json is %T, want object", v)
	}
	return Result{OK: true, Object: obj, Raw: raw}
}

// Options are the fixed generation parameters for the extraction call.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// Extractor runs the metadata extraction call.
type Extractor struct {
	client llm.Client
	schema Schema
	opts   Options
	logger logger.Logger
}

func NewExtractor(client llm.Client, schema Schema, opts Options, log logger.Logger) *Extractor {
	if log == nil {
		log = logger.Discard()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	return &Extractor{client: client, schema: schema, opts: opts, logger: log}
}

// Extract prompts the model and parses its reply. The returned error is non-nil only when the
// inference call itself fails; parse problems come back as a failed Result.
func (e *Extractor) Extract(ctx context.Context, transcript string, referenceDate time.Time) (Result, error) {
	schemaJSON, err := e.schema.JSON()
	if err != nil {
		return Result{}, fmt.Errorf("render metadata schema: %w", err)
	}
	req := llm.Request{
		Model:       e.opts.Model,
		MaxTokens:   e.opts.MaxTokens,
		Temperature: e.opts.Temperature,
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Parts: []llm.Part{
				llm.TextPart(BuildPrompt(transcript, referenceDate)),
				llm.TextPart(string(schemaJSON)),
			},
		}},
	}
	resp, err := e.client.Invoke(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("metadata inference: %w", err)
	}
	res := Parse(resp.FirstText())
	if !res.OK {
		e.logger.Warn(ctx, "metadata extraction failed: %s", res.Reason)
	}
	return res, nil
}
