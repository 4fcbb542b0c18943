package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
	supabase "github.com/supabase-community/supabase-go"

	"github.com/shpitdev/transcript-digest/internal/core"
	"github.com/shpitdev/transcript-digest/internal/redact"
)

// SupabaseConfig holds what is needed to reach a Supabase project's storage API.
type SupabaseConfig struct {
	// URL is the project URL, e.g. "https://[project-ref].supabase.co".
	URL string
	// Key is the API key. Use the service_role key; outputs are written server-side.
	Key string
}

// Supabase stores objects in Supabase Storage buckets.
type Supabase struct {
	client *storage_go.Client
}

func NewSupabase(cfg SupabaseConfig) (*Supabase, error) {
	if strings.TrimSpace(cfg.URL) == "" || strings.TrimSpace(cfg.Key) == "" {
		return nil, fmt.Errorf("supabase url and key are required")
	}
	sdk, err := supabase.NewClient(strings.TrimRight(cfg.URL, "/"), cfg.Key, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize supabase SDK: %w", err)
	}
	if sdk.Storage == nil {
		return nil, fmt.Errorf("supabase SDK has no storage client")
	}
	return &Supabase{client: sdk.Storage}, nil
}

// The storage SDK has no context support; ctx is only checked before each call.
func (s *Supabase) Get(ctx context.Context, container, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := cleanKey(container, key)
	if err != nil {
		return nil, err
	}
	b, err := s.client.DownloadFile(container, k)
	if err != nil {
		return nil, classify("download", container, k, err)
	}
	return b, nil
}

func (s *Supabase) Put(ctx context.Context, container, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := cleanKey(container, key)
	if err != nil {
		return err
	}
	upsert := true
	opts := storage_go.FileOptions{Upsert: &upsert}
	if contentType != "" {
		opts.ContentType = &contentType
	}
	if _, err := s.client.UploadFile(container, k, bytes.NewReader(data), opts); err != nil {
		return classify("upload", container, k, err)
	}
	return nil
}

func classify(op, container, key string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found") || strings.Contains(msg, "not_found"):
		return fmt.Errorf("%s/%s: %w", container, key, ErrNotFound)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "too many requests") || strings.Contains(msg, "503") || strings.Contains(msg, "502"):
		return &core.TransientError{Err: fmt.Errorf("supabase %s %s/%s: %s", op, container, key, redact.Secrets(err.Error()))}
	default:
		return fmt.Errorf("supabase %s %s/%s: %s", op, container, key, redact.Secrets(err.Error()))
	}
}
