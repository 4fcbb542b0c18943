package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// ApplyEnv overrides fields from environment variables. Blank values are ignored.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	setString := func(dst *string, names ...string) {
		for _, n := range names {
			if v, ok := get(n); ok {
				*dst = v
				return
			}
		}
	}

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	if c.LLM.APIKey == "" {
		provider := strings.ToLower(c.LLM.Provider)
		if provider == "openai" {
			setString(&c.LLM.APIKey, "OPENAI_API_KEY")
		} else {
			setString(&c.LLM.APIKey, "GEMINI_API_KEY")
		}
	}

	setString(&c.Guardrail.Endpoint, "GUARDRAIL_ENDPOINT")
	setString(&c.Guardrail.ID, "GUARDRAIL_ID")
	setString(&c.Guardrail.Version, "GUARDRAIL_VERSION")
	setString(&c.Guardrail.Token, "GUARDRAIL_TOKEN")
	if _, ok := get("GUARDRAIL_ID"); ok {
		c.Guardrail.Enabled = true
	}
	if err := envBool(get, "GUARDRAIL_ENABLED", &c.Guardrail.Enabled); err != nil {
		return err
	}

	setString(&c.Storage.Backend, "STORAGE_BACKEND")
	setString(&c.Storage.LocalRoot, "STORAGE_LOCAL_ROOT")
	setString(&c.Storage.SupabaseURL, "SUPABASE_URL")
	setString(&c.Storage.SupabaseKey, "SUPABASE_KEY")

	setString(&c.Output.Bucket, "OUTPUT_BUCKET")
	setString(&c.Output.Prefix, "OUTPUT_PREFIX")
	setString(&c.Output.Timezone, "OUTPUT_TIMEZONE")

	setString(&c.Ledger.DatabaseURL, "DATABASE_URL")
	setString(&c.Server.Addr, "SERVER_ADDR")
	setString(&c.Watch.Inbox, "WATCH_INBOX")
	setString(&c.Logging.Level, "LOG_LEVEL")

	if err := envInt(get, "WORKERS", &c.Batch.Workers); err != nil {
		return err
	}
	if err := envInt(get, "MAX_RETRIES", &c.Batch.MaxRetries); err != nil {
		return err
	}
	if err := envDuration(get, "REQUEST_TIMEOUT", &c.Batch.RequestTimeout); err != nil {
		return err
	}
	if err := envFloat(get, "RATE_LIMIT_RPS", &c.Batch.RateLimitRPS); err != nil {
		return err
	}
	if err := envBool(get, "FAIL_FAST", &c.Batch.FailFast); err != nil {
		return err
	}
	if err := envBool(get, "METADATA_STRICT", &c.Metadata.Strict); err != nil {
		return err
	}
	return nil
}

type getter func(string) (string, bool)

func envInt(get getter, name string, dst *int) error {
	v, ok := get(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	*dst = n
	return nil
}

func envFloat(get getter, name string, dst *float64) error {
	v, ok := get(name)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	*dst = f
	return nil
}

func envDuration(get getter, name string, dst *time.Duration) error {
	v, ok := get(name)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	*dst = d
	return nil
}

func envBool(get getter, name string, dst *bool) error {
	v, ok := get(name)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	*dst = b
	return nil
}
