package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shpitdev/transcript-digest/internal/config"
	"github.com/shpitdev/transcript-digest/internal/pipeline"
	"github.com/shpitdev/transcript-digest/internal/watcher"
)

// PrepareWatch points local storage at the inbox's parent directory so the inbox name works as
// a container, and creates the inbox when missing. Watch mode only supports local storage.
func PrepareWatch(cfg *config.Config) error {
	if cfg.Storage.Backend != "" && cfg.Storage.Backend != "local" {
		return fmt.Errorf("watch mode requires the local storage backend (got %q)", cfg.Storage.Backend)
	}
	inbox, err := filepath.Abs(cfg.Watch.Inbox)
	if err != nil {
		return fmt.Errorf("resolve inbox: %w", err)
	}
	if err := os.MkdirAll(inbox, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	cfg.Watch.Inbox = inbox
	cfg.Storage.Backend = "local"
	cfg.Storage.LocalRoot = filepath.Dir(inbox)
	return nil
}

// Watch processes new transcripts dropped into the configured inbox until ctx is done.
func (a *App) Watch(ctx context.Context, maxConcurrent int) error {
	w, err := watcher.New(watcher.Options{
		Inbox:         a.Config.Watch.Inbox,
		Debounce:      a.Config.Watch.Debounce,
		MaxConcurrent: maxConcurrent,
	}, func(ctx context.Context, container, key string) error {
		res, err := a.Runner.Run(ctx, pipeline.Request{BucketName: container, ObjectKey: key})
		if err != nil {
			return err
		}
		a.Logger.Info(ctx, "digest written: run=%s summary=%s/%s metadata=%s",
			res.RunID, res.BucketName, res.ObjectKey, res.MetadataStatus)
		return nil
	}, a.Logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = w.Stop()
	}()
	return w.Start(ctx)
}
