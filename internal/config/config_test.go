package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	c := Default()
	if c.Output.Bucket != "kendra-s3-datasource" || c.Output.Prefix != "shokken-sales/" {
		t.Fatalf("unexpected output defaults: %#v", c.Output)
	}
	if c.LLM.SummaryMaxTokens != 4096 || *c.LLM.SummaryTemperature != 0.5 || *c.LLM.MetadataTemperature != 1 {
		t.Fatalf("unexpected llm defaults: %#v", c.LLM)
	}
	if c.Guardrail.Version != "DRAFT" || c.Guardrail.Source != "OUTPUT" || c.Guardrail.Enabled {
		t.Fatalf("unexpected guardrail defaults: %#v", c.Guardrail)
	}
	if c.Batch.Workers != 4 || c.Batch.MaxRetries != 3 || c.Batch.RequestTimeout != 5*time.Minute {
		t.Fatalf("unexpected batch defaults: %#v", c.Batch)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "stub provider needs no key", mutate: func(c *Config) { c.LLM.Provider = "stub" }},
		{name: "gemini with key", mutate: func(c *Config) { c.LLM.APIKey = "k" }},
		{name: "provider case-insensitive", mutate: func(c *Config) { c.LLM.Provider = " OpenAI "; c.LLM.APIKey = "k" }},
		{name: "missing key", mutate: func(c *Config) {}, wantErr: "llm.api_key"},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "bedrock" }, wantErr: "llm.provider"},
		{
			name: "guardrail without id",
			mutate: func(c *Config) {
				c.LLM.Provider = "stub"
				c.Guardrail.Enabled = true
				c.Guardrail.Endpoint = "https://gr.example.com"
			},
			wantErr: "guardrail.id",
		},
		{
			name: "guardrail without endpoint",
			mutate: func(c *Config) {
				c.LLM.Provider = "stub"
				c.Guardrail.Enabled = true
				c.Guardrail.ID = "gr-1"
			},
			wantErr: "guardrail.endpoint",
		},
		{
			name: "supabase without key",
			mutate: func(c *Config) {
				c.LLM.Provider = "stub"
				c.Storage.Backend = "supabase"
				c.Storage.SupabaseURL = "https://x.supabase.co"
			},
			wantErr: "supabase_key",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.LLM.Provider = "stub"; c.Storage.Backend = "s3" },
			wantErr: "storage.backend",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.LLM.Provider = "stub"; c.Output.Timezone = "Mars/Olympus" },
			wantErr: "output.timezone",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var c Config
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	var c Config
	err := c.ApplyEnv(envMap(map[string]string{
		"LLM_PROVIDER":       "openai",
		"OPENAI_API_KEY":     "sk-test",
		"GEMINI_API_KEY":     "ignored",
		"GUARDRAIL_ID":       "gr-1",
		"GUARDRAIL_ENDPOINT": "https://gr.example.com",
		"STORAGE_BACKEND":    "supabase",
		"SUPABASE_URL":       "https://x.supabase.co",
		"SUPABASE_KEY":       "svc",
		"OUTPUT_BUCKET":      "digests",
		"WORKERS":            "8",
		"REQUEST_TIMEOUT":    "90s",
		"RATE_LIMIT_RPS":     "2.5",
		"FAIL_FAST":          "true",
		"METADATA_STRICT":    "1",
		"LOG_LEVEL":          "  ",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if c.LLM.Provider != "openai" || c.LLM.APIKey != "sk-test" || c.LLM.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected llm: %#v", c.LLM)
	}
	if !c.Guardrail.Enabled || c.Guardrail.ID != "gr-1" {
		t.Fatalf("guardrail should be enabled by GUARDRAIL_ID: %#v", c.Guardrail)
	}
	want := BatchConfig{Workers: 8, MaxRetries: 3, RequestTimeout: 90 * time.Second, RateLimitRPS: 2.5, FailFast: true}
	if diff := cmp.Diff(want, c.Batch); diff != "" {
		t.Fatalf("batch mismatch (-want +got):\n%s", diff)
	}
	if !c.Metadata.Strict || c.Output.Bucket != "digests" || c.Logging.Level != "info" {
		t.Fatalf("unexpected config: %#v", c)
	}
}

func TestApplyEnv_InvalidNumber(t *testing.T) {
	t.Parallel()

	var c Config
	err := c.ApplyEnv(envMap(map[string]string{"WORKERS": "many"}))
	if err == nil || !strings.Contains(err.Error(), "WORKERS") {
		t.Fatalf("expected WORKERS error, got %v", err)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "digest.yaml")
	yaml := `
llm:
  provider: stub
  summary_language: english
output:
  bucket: minutes
  timezone: Asia/Tokyo
metadata:
  strict: true
batch:
  workers: 2
  request_timeout: 45s
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.LLM.Provider != "stub" || c.LLM.SummaryLanguage != "english" {
		t.Fatalf("unexpected llm: %#v", c.LLM)
	}
	if c.Output.Bucket != "minutes" || c.Location().String() != "Asia/Tokyo" {
		t.Fatalf("unexpected output: %#v", c.Output)
	}
	if !c.Metadata.Strict || c.Batch.Workers != 2 || c.Batch.RequestTimeout != 45*time.Second {
		t.Fatalf("unexpected config: %#v", c)
	}
	if c.Output.Prefix != "shokken-sales/" {
		t.Fatalf("defaults should fill unset fields, got prefix %q", c.Output.Prefix)
	}
}

func TestLoad_ZeroTemperatureIsKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.yaml")
	yaml := "llm:\n  provider: stub\n  summary_temperature: 0\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if *c.LLM.SummaryTemperature != 0 {
		t.Fatalf("explicit zero summary temperature replaced with %v", *c.LLM.SummaryTemperature)
	}
	if *c.LLM.MetadataTemperature != 1 {
		t.Fatalf("unset metadata temperature should default to 1, got %v", *c.LLM.MetadataTemperature)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "stub")
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Output.Bucket != "kendra-s3-datasource" {
		t.Fatalf("unexpected bucket %q", c.Output.Bucket)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("llm: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
