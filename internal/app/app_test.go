package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shpitdev/transcript-digest/internal/app"
	"github.com/shpitdev/transcript-digest/internal/config"
	"github.com/shpitdev/transcript-digest/internal/core"
	"github.com/shpitdev/transcript-digest/internal/ledger"
	"github.com/shpitdev/transcript-digest/internal/llm"
	"github.com/shpitdev/transcript-digest/internal/logger"
	"github.com/shpitdev/transcript-digest/internal/pipeline"
	"github.com/shpitdev/transcript-digest/internal/worker"
)

const transcriptKey = "Transcription-Output-for-visit3.wav-speaker-identification.txt"

func stubConfig(t *testing.T, root string) config.Config {
	t.Helper()
	cfg := config.Config{}
	cfg.LLM.Provider = "stub"
	cfg.Storage.LocalRoot = root
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func writeTranscript(t *testing.T, root, container, key, body string) {
	t.Helper()
	p := filepath.Join(root, container, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuild_StubProviderWritesBothOutputs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTranscript(t, root, "transcripts", transcriptKey, "Speaker 0: 新メニューの提案です。")
	cfg := stubConfig(t, root)

	a, err := app.Build(context.Background(), cfg, logger.Discard(), app.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer func() {
		_ = a.Close()
	}()

	res, err := a.Runner.Run(context.Background(), pipeline.Request{BucketName: "transcripts", ObjectKey: transcriptKey})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.BucketName != "kendra-s3-datasource" || !strings.HasPrefix(res.ObjectKey, "shokken-sales/") || !strings.HasSuffix(res.ObjectKey, "-visit3.txt") {
		t.Fatalf("unexpected result %#v", res)
	}
	if res.MetadataStatus != pipeline.MetadataWritten || res.MetadataKey != res.ObjectKey+".metadata.json" {
		t.Fatalf("unexpected metadata outcome %#v", res)
	}

	got, err := os.ReadFile(filepath.Join(root, res.BucketName, filepath.FromSlash(res.ObjectKey)))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if string(got) != app.DryRunSummary {
		t.Fatalf("summary=%q", got)
	}
	meta, err := os.ReadFile(filepath.Join(root, res.BucketName, filepath.FromSlash(res.MetadataKey)))
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(meta, &doc); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	if _, ok := doc["metadataAttributes"]; !ok {
		t.Fatalf("metadata missing wrapper: %s", meta)
	}
}

func TestBuild_GuardrailRedactsBeforeSummary(t *testing.T) {
	t.Parallel()

	paths := make(chan string, 4)
	gr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"action":"GUARDRAIL_INTERVENED","outputs":[{"text":"Speaker 0: 電話番号は {PHONE} です。"}]}`))
	}))
	defer gr.Close()

	root := t.TempDir()
	writeTranscript(t, root, "transcripts", transcriptKey, "Speaker 0: 電話番号は 090-1234-5678 です。")
	cfg := stubConfig(t, root)
	cfg.Guardrail.Enabled = true
	cfg.Guardrail.Endpoint = gr.URL
	cfg.Guardrail.ID = "gr-sales"
	cfg.Guardrail.Version = "2"

	sumLLM := llm.NewStub("要約")
	a, err := app.Build(context.Background(), cfg, logger.Discard(), app.Options{SummaryClient: sumLLM})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	res, err := a.Runner.Run(context.Background(), pipeline.Request{BucketName: "transcripts", ObjectKey: transcriptKey})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Guardrail != "intervened" {
		t.Fatalf("guardrail=%q", res.Guardrail)
	}
	if got := <-paths; got != "/guardrail/gr-sales/version/2/apply" {
		t.Fatalf("guardrail path=%q", got)
	}

	reqs := sumLLM.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one summary request, got %d", len(reqs))
	}
	prompt := llm.JoinText(reqs[0].Messages[0].Parts)
	if strings.Contains(prompt, "090-1234-5678") || !strings.Contains(prompt, "{PHONE}") {
		t.Fatalf("summary prompt should carry the redacted transcript: %q", prompt)
	}
}

func TestRunBatch_RetriesTransientAndReportsFailures(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTranscript(t, root, "transcripts", "a.txt", "Speaker 0: A")
	cfg := stubConfig(t, root)

	sumLLM := (&llm.Stub{}).
		Push(llm.StubReply{Err: &core.TransientError{Err: errors.New("503 overloaded")}}).
		Push(llm.StubReply{Text: "summary A"})
	mem := ledger.NewMemory()
	a, err := app.Build(context.Background(), cfg, logger.Discard(), app.Options{SummaryClient: sumLLM, Ledger: mem})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var out bytes.Buffer
	sum, err := app.RunBatch(context.Background(), a.Runner, "transcripts", []string{"a.txt", "missing.txt"}, worker.Options{
		Workers:        1,
		MaxRetries:     2,
		BackoffInitial: time.Millisecond,
		BackoffMax:     time.Millisecond,
		BackoffJitter:  -1,
	}, &out, logger.Discard())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if diff := cmp.Diff(app.BatchSummary{Total: 2, OK: 1, Failed: 1}, sum); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out.String())
	}
	var first, second app.BatchLine
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if first.ObjectKey != "a.txt" || first.Status != "ok" || first.Attempts != 2 || first.Result == nil {
		t.Fatalf("unexpected first line %#v", first)
	}
	if second.ObjectKey != "missing.txt" || second.Status != "error" || second.Attempts != 1 || !strings.Contains(second.Error, "fetch") {
		t.Fatalf("unexpected second line %#v", second)
	}

	var failed, completed int
	for _, id := range mem.RunIDs() {
		st := mem.Statuses(id)
		switch st[len(st)-1] {
		case ledger.StatusFailed:
			failed++
		case ledger.StatusCompleted:
			completed++
		}
	}
	if failed != 2 || completed != 1 {
		t.Fatalf("ledger: failed=%d completed=%d", failed, completed)
	}
}

func TestRunBatch_FailFastAborts(t *testing.T) {
	t.Parallel()

	inv := invokerFunc(func(context.Context, pipeline.Request) (pipeline.Result, error) {
		return pipeline.Result{}, &pipeline.StageError{Stage: pipeline.StageFetch, Err: errors.New("denied")}
	})
	var out bytes.Buffer
	_, err := app.RunBatch(context.Background(), inv, "b", []string{"k1", "k2", "k3"},
		worker.Options{Workers: 1, FailFast: true}, &out, nil)
	if err == nil {
		t.Fatalf("expected fail-fast error")
	}
	if n := strings.Count(out.String(), "\n"); n != 1 {
		t.Fatalf("expected exactly one line before abort, got %d", n)
	}
}

type invokerFunc func(ctx context.Context, req pipeline.Request) (pipeline.Result, error)

func (f invokerFunc) Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	return f(ctx, req)
}

func TestReadKeys(t *testing.T) {
	t.Parallel()

	keys, err := app.ReadKeys(strings.NewReader("# nightly\na.txt\n\n  b.txt  \n#skip\nc/d.txt\n"))
	if err != nil {
		t.Fatalf("ReadKeys: %v", err)
	}
	if diff := cmp.Diff([]string{"a.txt", "b.txt", "c/d.txt"}, keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestPrepareWatch(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Watch.Inbox = filepath.Join(base, "inbox")
	if err := app.PrepareWatch(&cfg); err != nil {
		t.Fatalf("PrepareWatch: %v", err)
	}
	if cfg.Storage.LocalRoot != base {
		t.Fatalf("local root=%q want %q", cfg.Storage.LocalRoot, base)
	}
	if fi, err := os.Stat(cfg.Watch.Inbox); err != nil || !fi.IsDir() {
		t.Fatalf("inbox not created: %v", err)
	}

	cfg.Storage.Backend = "supabase"
	if err := app.PrepareWatch(&cfg); err == nil {
		t.Fatalf("expected supabase backend to be rejected")
	}
}
