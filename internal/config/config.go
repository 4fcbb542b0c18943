// Package config loads the digest configuration: a YAML file, then environment overrides.
// Command-line flags are applied by the caller on top of the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Guardrail GuardrailConfig `yaml:"guardrail"`
	Storage   StorageConfig   `yaml:"storage"`
	Output    OutputConfig    `yaml:"output"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Server    ServerConfig    `yaml:"server"`
	Batch     BatchConfig     `yaml:"batch"`
	Watch     WatchConfig     `yaml:"watch"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LLMConfig selects the model backend. A nil temperature takes the default; an explicit 0 is kept.
type LLMConfig struct {
	// Provider is "gemini", "openai" or "stub".
	Provider            string   `yaml:"provider"`
	Model               string   `yaml:"model"`
	APIKey              string   `yaml:"api_key"`
	BaseURL             string   `yaml:"base_url"`
	SummaryMaxTokens    int      `yaml:"summary_max_tokens"`
	SummaryTemperature  *float32 `yaml:"summary_temperature"`
	SummaryLanguage     string   `yaml:"summary_language"`
	MetadataMaxTokens   int      `yaml:"metadata_max_tokens"`
	MetadataTemperature *float32 `yaml:"metadata_temperature"`
}

type GuardrailConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	ID       string        `yaml:"id"`
	Version  string        `yaml:"version"`
	Source   string        `yaml:"source"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	// Backend is "local" or "supabase".
	Backend     string `yaml:"backend"`
	LocalRoot   string `yaml:"local_root"`
	SupabaseURL string `yaml:"supabase_url"`
	SupabaseKey string `yaml:"supabase_key"`
}

type OutputConfig struct {
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	StripPrefix string `yaml:"strip_prefix"`
	StripSuffix string `yaml:"strip_suffix"`
	DateLayout  string `yaml:"date_layout"`
	Timezone    string `yaml:"timezone"`
}

type MetadataConfig struct {
	Strict bool `yaml:"strict"`
}

type LedgerConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type BatchConfig struct {
	Workers int `yaml:"workers"`
	// MaxRetries of 0 means the default; negative disables retries.
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	FailFast       bool          `yaml:"fail_fast"`
}

type WatchConfig struct {
	Inbox    string        `yaml:"inbox"`
	Debounce time.Duration `yaml:"debounce"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config with every default filled in.
func Default() Config {
	c := Config{}
	c.applyDefaults()
	return c
}

// Load reads path (a missing file is not an error), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.Model = "gpt-4o-mini"
		default:
			c.LLM.Model = "gemini-2.5-flash"
		}
	}
	if c.LLM.SummaryMaxTokens == 0 {
		c.LLM.SummaryMaxTokens = 4096
	}
	if c.LLM.SummaryTemperature == nil {
		c.LLM.SummaryTemperature = float32Ptr(0.5)
	}
	if c.LLM.SummaryLanguage == "" {
		c.LLM.SummaryLanguage = "japanese"
	}
	if c.LLM.MetadataMaxTokens == 0 {
		c.LLM.MetadataMaxTokens = 4096
	}
	if c.LLM.MetadataTemperature == nil {
		c.LLM.MetadataTemperature = float32Ptr(1)
	}
	if c.Guardrail.Version == "" {
		c.Guardrail.Version = "DRAFT"
	}
	if c.Guardrail.Source == "" {
		c.Guardrail.Source = "OUTPUT"
	}
	if c.Guardrail.Timeout == 0 {
		c.Guardrail.Timeout = 30 * time.Second
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.LocalRoot == "" {
		c.Storage.LocalRoot = "data"
	}
	if c.Output.Bucket == "" {
		c.Output.Bucket = "kendra-s3-datasource"
	}
	if c.Output.Prefix == "" {
		c.Output.Prefix = "shokken-sales/"
	}
	if c.Output.StripPrefix == "" {
		c.Output.StripPrefix = "Transcription-Output-for-"
	}
	if c.Output.StripSuffix == "" {
		c.Output.StripSuffix = ".wav-speaker-identification.txt"
	}
	if c.Output.DateLayout == "" {
		c.Output.DateLayout = "20060102"
	}
	if c.Output.Timezone == "" {
		c.Output.Timezone = "UTC"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Batch.Workers == 0 {
		c.Batch.Workers = 4
	}
	if c.Batch.MaxRetries == 0 {
		c.Batch.MaxRetries = 3
	}
	if c.Batch.RequestTimeout == 0 {
		c.Batch.RequestTimeout = 5 * time.Minute
	}
	if c.Watch.Inbox == "" {
		c.Watch.Inbox = "data/inbox"
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = 500 * time.Millisecond
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate fills defaults and rejects impossible combinations.
func (c *Config) Validate() error {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.applyDefaults()

	switch c.LLM.Provider {
	case "gemini", "openai", "stub":
	default:
		return fmt.Errorf("llm.provider must be gemini, openai or stub (got %q)", c.LLM.Provider)
	}
	if c.LLM.Provider != "stub" && strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required for provider %s", c.LLM.Provider)
	}
	if c.LLM.SummaryMaxTokens < 0 || c.LLM.MetadataMaxTokens < 0 {
		return fmt.Errorf("llm max tokens must be positive")
	}
	if !validTemperature(*c.LLM.SummaryTemperature) || !validTemperature(*c.LLM.MetadataTemperature) {
		return fmt.Errorf("llm temperatures must be within [0, 2]")
	}

	if c.Guardrail.Enabled {
		if strings.TrimSpace(c.Guardrail.ID) == "" {
			return fmt.Errorf("guardrail.id is required when guardrail is enabled")
		}
		if strings.TrimSpace(c.Guardrail.Endpoint) == "" {
			return fmt.Errorf("guardrail.endpoint is required when guardrail is enabled")
		}
	}

	switch c.Storage.Backend {
	case "local":
	case "supabase":
		if strings.TrimSpace(c.Storage.SupabaseURL) == "" || strings.TrimSpace(c.Storage.SupabaseKey) == "" {
			return fmt.Errorf("storage.supabase_url and storage.supabase_key are required for the supabase backend")
		}
	default:
		return fmt.Errorf("storage.backend must be local or supabase (got %q)", c.Storage.Backend)
	}

	if _, err := time.LoadLocation(c.Output.Timezone); err != nil {
		return fmt.Errorf("output.timezone: %w", err)
	}
	if c.Batch.Workers < 0 || c.Batch.RateLimitRPS < 0 {
		return fmt.Errorf("batch workers and rate_limit_rps must not be negative")
	}
	return nil
}

// Location returns the timezone used for output names.
func float32Ptr(v float32) *float32 { return &v }

func validTemperature(v float32) bool { return v >= 0 && v <= 2 }

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Output.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
