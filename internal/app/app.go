// Package app wires the digest components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shpitdev/transcript-digest/internal/config"
	"github.com/shpitdev/transcript-digest/internal/guardrail"
	"github.com/shpitdev/transcript-digest/internal/ledger"
	"github.com/shpitdev/transcript-digest/internal/llm"
	"github.com/shpitdev/transcript-digest/internal/llm/gemini"
	"github.com/shpitdev/transcript-digest/internal/llm/openai"
	"github.com/shpitdev/transcript-digest/internal/logger"
	"github.com/shpitdev/transcript-digest/internal/metadata"
	"github.com/shpitdev/transcript-digest/internal/naming"
	"github.com/shpitdev/transcript-digest/internal/pipeline"
	"github.com/shpitdev/transcript-digest/internal/storage"
	"github.com/shpitdev/transcript-digest/internal/summary"
)

// DryRunSummary is what the stub provider answers for summary requests.
const DryRunSummary = "(dry run) summary unavailable: llm.provider is stub"

// DryRunMetadata is what the stub provider answers for metadata requests.
const DryRunMetadata = "```json\n" + `{"metadataAttributes":{"customer":null,"customer_category":null,"sentiment":null,"date":null,"title":"dry run","practicality_score":null,"keywords":null,"summary":null}}` + "\n```"

// App holds the wired components for one process.
type App struct {
	Config config.Config
	Logger logger.Logger
	Store  storage.Store
	Ledger ledger.Ledger
	Runner *pipeline.Runner

	closers []func() error
}

// Options lets callers and tests replace collaborators that Build would otherwise create.
type Options struct {
	Store          storage.Store
	Ledger         ledger.Ledger
	SummaryClient  llm.Client
	MetadataClient llm.Client
	Guardrail      guardrail.Service
}

// Build creates every component named by cfg. cfg is expected to be validated.
func Build(ctx context.Context, cfg config.Config, log logger.Logger, opts Options) (*App, error) {
	if log == nil {
		log = logger.Discard()
	}
	a := &App{Config: cfg, Logger: log}

	store := opts.Store
	if store == nil {
		var err error
		store, err = buildStore(cfg.Storage)
		if err != nil {
			return nil, err
		}
	}
	a.Store = store

	led := opts.Ledger
	if led == nil {
		var err error
		led, err = a.buildLedger(ctx)
		if err != nil {
			return nil, err
		}
	}
	a.Ledger = led

	sumClient, metaClient := opts.SummaryClient, opts.MetadataClient
	if sumClient == nil || metaClient == nil {
		s, m, err := buildLLM(ctx, cfg.LLM)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		if sumClient == nil {
			sumClient = s
		}
		if metaClient == nil {
			metaClient = m
		}
	}
	sumClient = newTracedClient(sumClient, "summary", log)
	metaClient = newTracedClient(metaClient, "metadata", log)

	gsvc := opts.Guardrail
	if gsvc == nil && cfg.Guardrail.Enabled {
		c, err := guardrail.NewClient(cfg.Guardrail.Endpoint, cfg.Guardrail.Token, cfg.Guardrail.Timeout)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		gsvc = c
	}
	filter := guardrail.New(gsvc, guardrail.Options{
		Identifier: cfg.Guardrail.ID,
		Version:    cfg.Guardrail.Version,
		Source:     cfg.Guardrail.Source,
	}, log)

	runner, err := pipeline.New(pipeline.Config{
		Store:    store,
		Redactor: filter,
		Summarizer: summary.NewGenerator(sumClient, summary.Options{
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.SummaryMaxTokens,
			Temperature: *cfg.LLM.SummaryTemperature,
			Language:    cfg.LLM.SummaryLanguage,
		}, log),
		Extractor: metadata.NewExtractor(metaClient, metadata.DefaultSchema, metadata.Options{
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MetadataMaxTokens,
			Temperature: *cfg.LLM.MetadataTemperature,
		}, log),
		Namer: naming.Namer{
			Prefix:      cfg.Output.Prefix,
			StripPrefix: cfg.Output.StripPrefix,
			StripSuffix: cfg.Output.StripSuffix,
			DateLayout:  cfg.Output.DateLayout,
		},
		Ledger:         led,
		Logger:         log,
		OutputBucket:   cfg.Output.Bucket,
		Schema:         metadata.DefaultSchema,
		StrictMetadata: cfg.Metadata.Strict,
		Location:       cfg.Location(),
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Runner = runner

	log.Info(ctx, "digest ready: provider=%s model=%s storage=%s guardrail=%t output=%s/%s strict=%t",
		cfg.LLM.Provider, cfg.LLM.Model, cfg.Storage.Backend, filter.Enabled(), cfg.Output.Bucket, cfg.Output.Prefix, cfg.Metadata.Strict)
	return a, nil
}

// Close releases database handles. Safe to call more than once.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildStore(cfg config.StorageConfig) (storage.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		return storage.NewLocal(cfg.LocalRoot)
	case "supabase":
		return storage.NewSupabase(storage.SupabaseConfig{URL: cfg.SupabaseURL, Key: cfg.SupabaseKey})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func (a *App) buildLedger(ctx context.Context) (ledger.Ledger, error) {
	dsn := strings.TrimSpace(a.Config.Ledger.DatabaseURL)
	if dsn == "" {
		a.Logger.Debug(ctx, "DATABASE_URL not set; run ledger disabled")
		return ledger.Nop{}, nil
	}
	pg, err := ledger.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}
	a.closers = append(a.closers, pg.Close)
	return pg, nil
}

// buildLLM returns the clients for the summary and metadata stages. Real providers share one
// client; the stub provider answers each stage with a fixed reply.
func buildLLM(ctx context.Context, cfg config.LLMConfig) (summaryClient, metadataClient llm.Client, err error) {
	switch strings.ToLower(cfg.Provider) {
	case "stub":
		return llm.NewStub(DryRunSummary), llm.NewStub(DryRunMetadata), nil
	case "openai":
		c, err := openai.New(openai.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	case "", "gemini":
		c, err := gemini.New(ctx, gemini.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
