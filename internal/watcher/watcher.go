// Package watcher turns new transcript files in a local inbox directory into pipeline
// invocations.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shpitdev/transcript-digest/internal/logger"
)

// Handler processes one settled file. container is the inbox directory's base name and key is
// the file name inside it, matching the local storage layout rooted at the inbox's parent.
type Handler func(ctx context.Context, container, key string) error

type Options struct {
	Inbox string
	// Debounce is how long a file must stay quiet before it is handled. Default 500ms.
	Debounce time.Duration
	// MaxConcurrent bounds in-flight handlers. Default 2.
	MaxConcurrent int
	// Extensions lists accepted file extensions (lowercase, with dot). Default [".txt"].
	Extensions []string
}

type Watcher struct {
	opts      Options
	container string
	handler   Handler
	logger    logger.Logger
	fs        *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
	done    chan struct{}
	once    sync.Once

	semaphore chan struct{}
	wg        sync.WaitGroup
}

func New(opts Options, handler Handler, log logger.Logger) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watcher: handler is required")
	}
	if strings.TrimSpace(opts.Inbox) == "" {
		return nil, errors.New("watcher: inbox is required")
	}
	if log == nil {
		log = logger.Discard()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".txt"}
	}
	inbox, err := filepath.Abs(opts.Inbox)
	if err != nil {
		return nil, fmt.Errorf("resolve inbox: %w", err)
	}
	opts.Inbox = inbox

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(inbox); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	return &Watcher{
		opts:      opts,
		container: filepath.Base(inbox),
		handler:   handler,
		logger:    log,
		fs:        fw,
		pending:   make(map[string]*time.Timer),
		ready:     make(chan string, 64),
		done:      make(chan struct{}),
		semaphore: make(chan struct{}, opts.MaxConcurrent),
	}, nil
}

// Container is the storage container name handlers receive.
func (w *Watcher) Container() string { return w.container }

// Start blocks until ctx is done, then waits for in-flight handlers.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info(ctx, "watching inbox=%s container=%s debounce=%s max_concurrent=%d",
		w.opts.Inbox, w.container, w.opts.Debounce, w.opts.MaxConcurrent)

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			w.wg.Wait()
			w.logger.Info(ctx, "watcher stopped")
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.accepts(event.Name) {
				w.logger.Debug(ctx, "ignoring %s", event.Name)
				continue
			}
			w.schedule(event.Name)

		case path := <-w.ready:
			select {
			case w.semaphore <- struct{}{}:
			case <-ctx.Done():
				continue
			}
			w.wg.Add(1)
			go func(path string) {
				defer w.wg.Done()
				defer func() { <-w.semaphore }()
				w.handle(ctx, path)
			}(path)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error(ctx, "watcher error: %v", err)
		}
	}
}

// Stop releases the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	w.once.Do(func() { close(w.done) })
	w.stopTimers()
	return w.fs.Close()
}

func (w *Watcher) handle(ctx context.Context, path string) {
	key := filepath.ToSlash(filepath.Base(path))
	started := time.Now()
	w.logger.Info(ctx, "new transcript container=%s key=%s", w.container, key)
	if err := w.handler(ctx, w.container, key); err != nil {
		w.logger.Error(ctx, "failed to process %s/%s: %v", w.container, key, err)
		return
	}
	w.logger.Info(ctx, "processed %s/%s in %s", w.container, key, time.Since(started).Round(time.Millisecond))
}

// schedule (re)starts the quiet-period timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.opts.Debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
}

func (w *Watcher) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range w.opts.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
