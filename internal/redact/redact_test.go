package redact_test

import (
	"strings"
	"testing"

	"github.com/shpitdev/transcript-digest/internal/redact"
)

func TestSecrets(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantNot string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain", in: "  nothing to hide ", want: "nothing to hide"},
		{name: "bearer", in: `Authorization: Bearer abc.def.ghi failed`, want: "Authorization: Bearer <redacted> failed", wantNot: "abc.def"},
		{name: "api key kv", in: "request failed api_key=XYZ123 status=401", want: "request failed <redacted_kv> status=401", wantNot: "XYZ123"},
		{name: "supabase key", in: "SUPABASE_KEY: eyJhbGciOi", wantNot: "eyJhbGciOi"},
		{name: "openai key", in: "Incorrect API key provided: sk-proj-abcdefghijklmnopqrstuvwxyz", wantNot: "abcdefghijklmnop"},
		{name: "dsn password", in: "dial postgres://digest:hunter2@db:5432/digest failed", want: "dial postgres://digest:<redacted>@db:5432/digest failed", wantNot: "hunter2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redact.Secrets(tt.in)
			if tt.want != "" && got != tt.want {
				t.Fatalf("Secrets(%q)=%q want=%q", tt.in, got, tt.want)
			}
			if tt.wantNot != "" && strings.Contains(got, tt.wantNot) {
				t.Fatalf("Secrets(%q)=%q still contains %q", tt.in, got, tt.wantNot)
			}
		})
	}
}
