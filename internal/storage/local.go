package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Local stores objects as files under Root/<container>/<key>.
type Local struct {
	Root string
}

func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve local storage root: %w", err)
	}
	return &Local{Root: abs}, nil
}

// Path returns the file path backing container/key.
func (l *Local) Path(container, key string) (string, error) {
	k, err := cleanKey(container, key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.Root, container, filepath.FromSlash(k)), nil
}

func (l *Local) Get(ctx context.Context, container, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.Path(container, key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", container, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", container, key, err)
	}
	return b, nil
}

// Put writes through a temp file and rename so readers never observe a partial object.
func (l *Local) Put(ctx context.Context, container, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := l.Path(container, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create directory for %s/%s: %w", container, key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", container, key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s/%s: %w", container, key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s/%s: %w", container, key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("write %s/%s: %w", container, key, err)
	}
	return nil
}
