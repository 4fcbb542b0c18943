package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shpitdev/transcript-digest/internal/logger"
	"github.com/shpitdev/transcript-digest/internal/pipeline"
	"github.com/shpitdev/transcript-digest/internal/redact"
	"github.com/shpitdev/transcript-digest/internal/worker"
)

// Invoker runs one pipeline invocation.
type Invoker interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// BatchLine is the JSON line printed for each key.
type BatchLine struct {
	BucketName string           `json:"bucket_name"`
	ObjectKey  string           `json:"object_key"`
	Status     string           `json:"status"`
	Attempts   int              `json:"attempts"`
	Result     *pipeline.Result `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// BatchSummary counts outcomes of a batch.
type BatchSummary struct {
	Total  int
	OK     int
	Failed int
}

// RunBatch runs every key in bucket through inv and writes one BatchLine per key to out in
// completion order. Per-key failures are reported in the output; the returned error is set only
// when the batch itself was aborted (fail-fast, cancellation or an output write error).
func RunBatch(ctx context.Context, inv Invoker, bucket string, keys []string, opts worker.Options, out io.Writer, log logger.Logger) (BatchSummary, error) {
	if log == nil {
		log = logger.Discard()
	}
	batchID := uuid.NewString()
	logf := func(format string, args ...any) {
		log.Info(ctx, "batch=%s "+format, append([]any{batchID}, args...)...)
	}
	start := time.Now()
	logf("batch start: bucket=%s keys=%d workers=%d maxRetries=%d timeout=%s rateLimitRPS=%g failFast=%t",
		bucket, len(keys), opts.Workers, opts.MaxRetries, opts.Timeout, opts.RateLimitRPS, opts.FailFast)

	reqs := make([]pipeline.Request, len(keys))
	for i, k := range keys {
		reqs[i] = pipeline.Request{BucketName: bucket, ObjectKey: k}
	}

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	sum := BatchSummary{Total: len(keys)}
	_, err := worker.Run(ctx, reqs, inv.Run, opts, func(o worker.Outcome[pipeline.Request, pipeline.Result]) error {
		line := BatchLine{
			BucketName: o.Item.BucketName,
			ObjectKey:  o.Item.ObjectKey,
			Attempts:   o.Attempts,
		}
		if o.Err != nil {
			sum.Failed++
			line.Status = "error"
			line.Error = redact.Secrets(o.Err.Error())
		} else {
			sum.OK++
			res := o.Value
			line.Status = "ok"
			line.Result = &res
		}
		logf("item done: key=%q status=%s attempts=%d completed=%d/%d",
			o.Item.ObjectKey, line.Status, o.Attempts, sum.OK+sum.Failed, sum.Total)
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write batch output: %w", err)
		}
		return nil
	})
	logf("batch complete: ok=%d failed=%d duration=%s", sum.OK, sum.Failed, time.Since(start).Round(time.Millisecond))
	if err != nil {
		return sum, err
	}
	return sum, nil
}

// ReadKeys reads one object key per line. Blank lines and lines starting with # are skipped.
func ReadKeys(r io.Reader) ([]string, error) {
	var keys []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read keys: %w", err)
	}
	return keys, nil
}
