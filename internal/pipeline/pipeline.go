// Package pipeline runs one transcript through redaction, summarization and metadata
// extraction and writes both outputs.
package pipeline

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/shpitdev/transcript-digest/internal/guardrail"
	"github.com/shpitdev/transcript-digest/internal/ledger"
	"github.com/shpitdev/transcript-digest/internal/logger"
	"github.com/shpitdev/transcript-digest/internal/metadata"
	"github.com/shpitdev/transcript-digest/internal/naming"
	"github.com/shpitdev/transcript-digest/internal/redact"
	"github.com/shpitdev/transcript-digest/internal/storage"
)

// ledgerWriteTimeout bounds a ledger write made after the run's context is done.
const ledgerWriteTimeout = 10 * time.Second

// Summarizer produces the summary text.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Extractor produces the metadata document.
type Extractor interface {
	Extract(ctx context.Context, transcript string, referenceDate time.Time) (metadata.Result, error)
}

// Redactor is the best-effort content filter.
type Redactor interface {
	Apply(ctx context.Context, text string) guardrail.Verdict
}

// Config wires a Runner.
type Config struct {
	Store      storage.Store
	Redactor   Redactor
	Summarizer Summarizer
	Extractor  Extractor
	Namer      naming.Namer
	Ledger     ledger.Ledger
	Logger     logger.Logger

	// OutputBucket receives both outputs.
	OutputBucket string
	// Schema is used to check extracted metadata.
	Schema metadata.Schema
	// StrictMetadata skips the metadata write when the document violates Schema.
	StrictMetadata bool
	// Location is the timezone of the date used in output names. Defaults to UTC.
	Location *time.Location

	Now      func() time.Time
	NewRunID func() string
}

// Runner executes invocations. It holds no per-run state and is safe for concurrent use.
type Runner struct {
	cfg Config
}

func New(cfg Config) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("pipeline: store is required")
	}
	if cfg.Summarizer == nil || cfg.Extractor == nil {
		return nil, fmt.Errorf("pipeline: summarizer and extractor are required")
	}
	if cfg.OutputBucket == "" {
		return nil, fmt.Errorf("pipeline: output bucket is required")
	}
	if cfg.Redactor == nil {
		cfg.Redactor = guardrail.New(nil, guardrail.Options{}, cfg.Logger)
	}
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.Namer == (naming.Namer{}) {
		cfg.Namer = naming.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = uuid.NewString
	}
	if len(cfg.Schema.Fields) == 0 {
		cfg.Schema = metadata.DefaultSchema
	}
	return &Runner{cfg: cfg}, nil
}

type run struct {
	*Runner
	id    string
	req   Request
	entry ledger.Entry
	start time.Time
}

func (r *run) logf(ctx context.Context, format string, args ...any) {
	r.cfg.Logger.Info(ctx, "run=%s "+format, append([]any{r.id}, args...)...)
}

func (r *run) warnf(ctx context.Context, format string, args ...any) {
	r.cfg.Logger.Warn(ctx, "run=%s "+format, append([]any{r.id}, args...)...)
}

// record writes the ledger entry. Ledger failures are logged and never fail the run.
func (r *run) record(ctx context.Context, status ledger.Status, detail string) {
	r.entry.Status = status
	r.entry.Detail = detail
	r.entry.UpdatedAt = time.Time{}
	// Terminal records must land even after the run's context is done.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	if err := r.cfg.Ledger.Record(wctx, r.entry); err != nil {
		r.cfg.Logger.Error(ctx, "run=%s ledger record status=%s failed: %s", r.id, status, redact.Secrets(err.Error()))
	}
}

func (r *run) fail(ctx context.Context, stage string, err error) error {
	serr := &StageError{Stage: stage, Err: err}
	r.cfg.Logger.Error(ctx, "run=%s failed: stage=%s duration=%s error=%q", r.id, stage, time.Since(r.start).Round(time.Millisecond), redact.Secrets(err.Error()))
	r.record(ctx, ledger.StatusFailed, stage+": "+redact.Secrets(err.Error()))
	return serr
}

// Run executes one invocation. Validation failures return a *ValidationError without touching
// any collaborator; storage and inference failures return a *StageError.
func (rn *Runner) Run(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		rn.cfg.Logger.Warn(ctx, "rejected invocation: %v (bucket_name=%q object_key=%q)", err, req.BucketName, req.ObjectKey)
		return Result{}, err
	}

	r := &run{
		Runner: rn,
		id:     rn.cfg.NewRunID(),
		req:    req,
		start:  time.Now(),
		entry:  ledger.Entry{Container: req.BucketName, SourceKey: req.ObjectKey},
	}
	r.entry.RunID = r.id
	r.logf(ctx, "digest start: bucket=%s key=%s output=%s", req.BucketName, req.ObjectKey, rn.cfg.OutputBucket)
	r.record(ctx, ledger.StatusStarted, "")

	fetchStart := time.Now()
	raw, err := rn.cfg.Store.Get(ctx, req.BucketName, req.ObjectKey)
	if err != nil {
		return Result{}, r.fail(ctx, StageFetch, err)
	}
	if !utf8.Valid(raw) {
		return Result{}, r.fail(ctx, StageFetch, fmt.Errorf("%s/%s is not valid UTF-8", req.BucketName, req.ObjectKey))
	}
	transcript := string(raw)
	r.logf(ctx, "transcript loaded: bytes=%d duration=%s", len(raw), time.Since(fetchStart).Round(time.Millisecond))

	verdict := rn.cfg.Redactor.Apply(ctx, transcript)
	r.logf(ctx, "guardrail verdict=%s inputChars=%d outputChars=%d", verdict.Kind, len(transcript), len(verdict.Text))
	if verdict.Kind == guardrail.FilterError {
		r.warnf(ctx, "guardrail fault recovered, continuing with original text: %s", redact.Secrets(verdict.Reason))
	}
	text := verdict.Text

	sumStart := time.Now()
	summaryText, err := rn.cfg.Summarizer.Summarize(ctx, text)
	if err != nil {
		return Result{}, r.fail(ctx, StageSummarize, err)
	}
	r.logf(ctx, "summary generated: chars=%d duration=%s", len(summaryText), time.Since(sumStart).Round(time.Millisecond))

	now := rn.cfg.Now().In(rn.cfg.Location)
	summaryKey, metadataKey := rn.cfg.Namer.NameFor(req.ObjectKey, now)
	r.entry.SummaryKey = summaryKey

	if err := rn.cfg.Store.Put(ctx, rn.cfg.OutputBucket, summaryKey, []byte(summaryText), storage.ContentTypeText); err != nil {
		return Result{}, r.fail(ctx, StageWriteSummary, err)
	}
	r.logf(ctx, "summary written: %s/%s", rn.cfg.OutputBucket, summaryKey)
	r.record(ctx, ledger.StatusSummaryWritten, "")

	out := Result{
		RunID:          r.id,
		BucketName:     rn.cfg.OutputBucket,
		ObjectKey:      summaryKey,
		MetadataStatus: MetadataSkipped,
		Guardrail:      verdict.Kind.String(),
		Message:        MessageOK,
	}

	extractStart := time.Now()
	res, err := rn.cfg.Extractor.Extract(ctx, text, now)
	if err != nil {
		return Result{}, r.fail(ctx, StageExtract, err)
	}
	if !res.OK {
		r.warnf(ctx, "metadata extraction failed, skipping metadata write: %s", res.Reason)
		r.record(ctx, ledger.StatusMetadataSkipped, res.Reason)
		r.logf(ctx, "digest complete: metadata=skipped duration=%s", time.Since(r.start).Round(time.Millisecond))
		return out, nil
	}
	violations := metadata.Validate(rn.cfg.Schema, res.Object)
	for _, v := range violations {
		r.warnf(ctx, "metadata schema violation: %s", v)
	}
	r.logf(ctx, "metadata extracted: bytes=%d violations=%d duration=%s", len(res.Raw), len(violations), time.Since(extractStart).Round(time.Millisecond))
	if rn.cfg.StrictMetadata && len(violations) > 0 {
		detail := fmt.Sprintf("%d schema violations", len(violations))
		r.warnf(ctx, "strict metadata mode, skipping metadata write: %s", detail)
		r.record(ctx, ledger.StatusMetadataSkipped, detail)
		return out, nil
	}

	if err := rn.cfg.Store.Put(ctx, rn.cfg.OutputBucket, metadataKey, []byte(res.Raw), storage.ContentTypeJSON); err != nil {
		return Result{}, r.fail(ctx, StageWriteMetadata, err)
	}
	r.entry.MetadataKey = metadataKey
	out.MetadataKey = metadataKey
	out.MetadataStatus = MetadataWritten
	r.record(ctx, ledger.StatusCompleted, "")
	r.logf(ctx, "digest complete: summary=%s metadata=%s duration=%s", summaryKey, metadataKey, time.Since(r.start).Round(time.Millisecond))
	return out, nil
}
