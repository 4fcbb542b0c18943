// Package guardrail runs transcripts through a content-safety filter before they reach the
// model. The filter is best effort: whatever happens, the caller gets usable text back.
package guardrail

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shpitdev/transcript-digest/internal/logger"
)

// ActionIntervened is the action flag the filter service reports when it rewrote the input.
const ActionIntervened = "GUARDRAIL_INTERVENED"

// Kind tags a Verdict.
type Kind int

const (
	Passthrough Kind = iota
	Intervened
	FilterError
)

func (k Kind) String() string {
	switch k {
	case Intervened:
		return "intervened"
	case FilterError:
		return "filter_error"
	default:
		return "passthrough"
	}
}

// Verdict is the outcome of one Apply call. Text is always the text the pipeline should
// continue with: the redacted text when the filter intervened, the original otherwise.
type Verdict struct {
	Kind   Kind
	Text   string
	Reason string
	Usage  map[string]any
}

// ApplyRequest is the wire-neutral filter request.
type ApplyRequest struct {
	Identifier string
	Version    string
	Source     string
	Content    []ContentBlock
}

// ContentBlock is one input segment: {"text": {"text": "..."}}.
type ContentBlock struct {
	Text TextBlock `json:"text"`
}

type TextBlock struct {
	Text string `json:"text"`
}

// ApplyResponse is the filter reply. Outputs are kept raw because the service has been seen
// answering with several different output shapes.
type ApplyResponse struct {
	Action  string            `json:"action"`
	Outputs []json.RawMessage `json:"outputs,omitempty"`
	Usage   map[string]any    `json:"usage,omitempty"`
}

// Service is the remote content-safety filter.
type Service interface {
	Apply(ctx context.Context, req ApplyRequest) (ApplyResponse, error)
}

// Options identifies which guardrail to apply.
type Options struct {
	Identifier string
	Version    string
	Source     string
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.Version) == "" {
		o.Version = "DRAFT"
	}
	if strings.TrimSpace(o.Source) == "" {
		o.Source = "OUTPUT"
	}
	return o
}

// Filter is the redaction stage. A nil Service disables filtering.
type Filter struct {
	svc    Service
	opts   Options
	logger logger.Logger
}

func New(svc Service, opts Options, log logger.Logger) *Filter {
	if log == nil {
		log = logger.Discard()
	}
	return &Filter{svc: svc, opts: opts.withDefaults(), logger: log}
}

// Enabled reports whether a filter service is configured.
func (f *Filter) Enabled() bool {
	return f != nil && f.svc != nil
}

// Apply submits text to the filter. It never fails: service errors, missing intervention and
// unrecognized reply shapes all fall back to the original text.
func (f *Filter) Apply(ctx context.Context, text string) (v Verdict) {
	if !f.Enabled() {
		return Verdict{Kind: Passthrough, Text: text, Reason: "guardrail disabled"}
	}

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error(ctx, "guardrail panic recovered: %v", r)
			v = Verdict{Kind: FilterError, Text: text, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	resp, err := f.svc.Apply(ctx, ApplyRequest{
		Identifier: f.opts.Identifier,
		Version:    f.opts.Version,
		Source:     f.opts.Source,
		Content:    []ContentBlock{{Text: TextBlock{Text: text}}},
	})
	if err != nil {
		f.logger.Error(ctx, "guardrail apply failed, continuing with original text: %v", err)
		return Verdict{Kind: FilterError, Text: text, Reason: err.Error()}
	}

	usage := resp.Usage
	if resp.Action == ActionIntervened && len(resp.Outputs) > 0 {
		redacted, shape := decodeOutput(resp.Outputs[0])
		if shape != shapeUnrecognized {
			f.logger.Info(ctx, "guardrail intervened: shape=%s inputChars=%d outputChars=%d", shape, len(text), len(redacted))
			f.logUsage(ctx, usage)
			return Verdict{Kind: Intervened, Text: redacted, Usage: usage}
		}
		f.logger.Warn(ctx, "guardrail intervened but output shape was not recognized: %s", truncate(string(resp.Outputs[0]), 256))
		f.logUsage(ctx, usage)
		return Verdict{Kind: FilterError, Text: text, Reason: "unrecognized output shape", Usage: usage}
	}

	f.logger.Warn(ctx, "no redacted output from guardrail: action=%q", resp.Action)
	f.logUsage(ctx, usage)
	return Verdict{Kind: Passthrough, Text: text, Usage: usage}
}

func (f *Filter) logUsage(ctx context.Context, usage map[string]any) {
	if len(usage) == 0 {
		return
	}
	b, err := json.Marshal(usage)
	if err != nil {
		return
	}
	f.logger.Info(ctx, "guardrail usage stats: %s", string(b))
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
