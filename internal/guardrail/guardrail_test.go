package guardrail_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shpitdev/transcript-digest/internal/core"
	"github.com/shpitdev/transcript-digest/internal/guardrail"
)

type fakeService struct {
	resp  guardrail.ApplyResponse
	err   error
	panic bool
	got   []guardrail.ApplyRequest
}

func (f *fakeService) Apply(_ context.Context, req guardrail.ApplyRequest) (guardrail.ApplyResponse, error) {
	f.got = append(f.got, req)
	if f.panic {
		panic("boom")
	}
	return f.resp, f.err
}

func outputs(raw ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(raw))
	for _, r := range raw {
		out = append(out, json.RawMessage(r))
	}
	return out
}

func TestApply_Shapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		outputs  []json.RawMessage
		wantKind guardrail.Kind
		wantText string
	}{
		{"nested text", outputs(`{"text":{"text":"redacted-1"}}`), guardrail.Intervened, "redacted-1"},
		{"flat text", outputs(`{"text":"redacted-2"}`), guardrail.Intervened, "redacted-2"},
		{"content string", outputs(`{"content":"redacted-3"}`), guardrail.Intervened, "redacted-3"},
		{"content nested", outputs(`{"content":{"text":"redacted-4"}}`), guardrail.Intervened, "redacted-4"},
		{"nested wins over content", outputs(`{"text":{"text":"first"},"content":"second"}`), guardrail.Intervened, "first"},
		{"unknown shape", outputs(`{"weird":42}`), guardrail.FilterError, "original"},
		{"empty outputs", nil, guardrail.Passthrough, "original"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := &fakeService{resp: guardrail.ApplyResponse{Action: guardrail.ActionIntervened, Outputs: tc.outputs}}
			f := guardrail.New(svc, guardrail.Options{Identifier: "gr-1"}, nil)
			v := f.Apply(context.Background(), "original")
			if v.Kind != tc.wantKind {
				t.Fatalf("kind: got %v want %v", v.Kind, tc.wantKind)
			}
			if v.Text != tc.wantText {
				t.Fatalf("text: got %q want %q", v.Text, tc.wantText)
			}
		})
	}
}

func TestApply_NotIntervenedKeepsOriginal(t *testing.T) {
	t.Parallel()

	svc := &fakeService{resp: guardrail.ApplyResponse{
		Action:  "NONE",
		Outputs: outputs(`{"text":"should be ignored"}`),
	}}
	f := guardrail.New(svc, guardrail.Options{Identifier: "gr-1"}, nil)
	v := f.Apply(context.Background(), "hello")
	if v.Kind != guardrail.Passthrough || v.Text != "hello" {
		t.Fatalf("unexpected verdict: %#v", v)
	}
	if len(svc.got) != 1 {
		t.Fatalf("expected 1 call, got %d", len(svc.got))
	}
	req := svc.got[0]
	if req.Version != "DRAFT" || req.Source != "OUTPUT" {
		t.Fatalf("defaults not applied: %#v", req)
	}
	if len(req.Content) != 1 || req.Content[0].Text.Text != "hello" {
		t.Fatalf("unexpected content: %#v", req.Content)
	}
}

func TestApply_FailsOpen(t *testing.T) {
	t.Parallel()

	t.Run("service error", func(t *testing.T) {
		t.Parallel()
		f := guardrail.New(&fakeService{err: errors.New("unreachable")}, guardrail.Options{Identifier: "gr-1"}, nil)
		v := f.Apply(context.Background(), "Meeting notes...")
		if v.Kind != guardrail.FilterError || v.Text != "Meeting notes..." {
			t.Fatalf("unexpected verdict: %#v", v)
		}
	})

	t.Run("panic", func(t *testing.T) {
		t.Parallel()
		f := guardrail.New(&fakeService{panic: true}, guardrail.Options{Identifier: "gr-1"}, nil)
		v := f.Apply(context.Background(), "Meeting notes...")
		if v.Kind != guardrail.FilterError || v.Text != "Meeting notes..." {
			t.Fatalf("unexpected verdict: %#v", v)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		f := guardrail.New(nil, guardrail.Options{}, nil)
		if f.Enabled() {
			t.Fatalf("expected disabled filter")
		}
		v := f.Apply(context.Background(), "x")
		if v.Kind != guardrail.Passthrough || v.Text != "x" {
			t.Fatalf("unexpected verdict: %#v", v)
		}
	})
}

func TestClient_Apply(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"action":"GUARDRAIL_INTERVENED","outputs":[{"text":"[NAME] said hi"}],"usage":{"sensitiveInformationPolicyUnits":1}}`)
	}))
	t.Cleanup(ts.Close)

	c, err := guardrail.NewClient(ts.URL+"/base", "tok", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	f := guardrail.New(c, guardrail.Options{Identifier: "gr-1", Version: "3"}, nil)
	v := f.Apply(context.Background(), "Taro said hi")

	if gotPath != "/base/guardrail/gr-1/version/3/apply" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotBody["source"] != "OUTPUT" {
		t.Fatalf("unexpected body: %#v", gotBody)
	}
	if v.Kind != guardrail.Intervened || v.Text != "[NAME] said hi" {
		t.Fatalf("unexpected verdict: %#v", v)
	}
	if v.Usage["sensitiveInformationPolicyUnits"] != float64(1) {
		t.Fatalf("unexpected usage: %#v", v.Usage)
	}
}

func TestClient_HTTPErrorIsSanitized(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "upstream down Authorization: Bearer secret-token-123")
	}))
	t.Cleanup(ts.Close)

	c, err := guardrail.NewClient(ts.URL, "", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.Apply(context.Background(), guardrail.ApplyRequest{Identifier: "gr", Version: "DRAFT", Source: "OUTPUT"})
	if err == nil {
		t.Fatalf("expected error")
	}
	var te *core.TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected transient error, got %T", err)
	}
	var he *guardrail.HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected HTTPError 503, got %v", err)
	}
	if strings.Contains(err.Error(), "secret-token-123") {
		t.Fatalf("error leaked token: %v", err)
	}
}
