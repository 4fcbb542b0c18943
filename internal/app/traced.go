package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shpitdev/transcript-digest/internal/llm"
	"github.com/shpitdev/transcript-digest/internal/logger"
	"github.com/shpitdev/transcript-digest/internal/redact"
	"github.com/shpitdev/transcript-digest/internal/worker"
)

// tracedClient logs every inference call made by one pipeline stage.
type tracedClient struct {
	next   llm.Client
	stage  string
	logger logger.Logger
	calls  atomic.Int64
}

func newTracedClient(next llm.Client, stage string, log logger.Logger) *tracedClient {
	return &tracedClient{next: next, stage: stage, logger: log}
}

func (t *tracedClient) Invoke(ctx context.Context, req llm.Request) (llm.Response, error) {
	call := t.calls.Add(1)

	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	t.logger.Debug(ctx,
		"llm request: stage=%s call=%d model=%s messages=%d promptChars=%d maxTokens=%d temperature=%g deadlineIn=%s",
		t.stage,
		call,
		req.Model,
		len(req.Messages),
		llm.PromptChars(req),
		req.MaxTokens,
		req.Temperature,
		deadlineIn,
	)

	start := time.Now()
	resp, err := t.next.Invoke(ctx, req)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		t.logger.Warn(ctx,
			"llm response: stage=%s call=%d duration=%s status=error retryable=%t error=%q",
			t.stage,
			call,
			elapsed,
			worker.Retryable(err),
			redact.Secrets(err.Error()),
		)
		return resp, err
	}

	t.logger.Info(ctx,
		"llm response: stage=%s call=%d duration=%s status=ok model=%s parts=%d outputChars=%d inputTokens=%d outputTokens=%d",
		t.stage,
		call,
		elapsed,
		resp.Model,
		len(resp.Parts),
		len(llm.JoinText(resp.Parts)),
		resp.Usage.InputTokens,
		resp.Usage.OutputTokens,
	)
	return resp, nil
}
