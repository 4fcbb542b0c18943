// Package storage reads transcripts and writes pipeline outputs. Objects are addressed by a
// container (bucket) and a slash-separated key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Get when the object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is the object storage used for both the transcript read and the two output writes.
type Store interface {
	Get(ctx context.Context, container, key string) ([]byte, error)
	Put(ctx context.Context, container, key string, data []byte, contentType string) error
}

// ContentTypeText and ContentTypeJSON are the content types of the summary and metadata outputs.
const (
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeJSON = "application/json"
)

// cleanKey rejects keys that would escape their container.
func cleanKey(container, key string) (string, error) {
	if strings.TrimSpace(container) == "" {
		return "", fmt.Errorf("container is required")
	}
	if strings.ContainsAny(container, `/\`) || container == "." || container == ".." {
		return "", fmt.Errorf("invalid container %q", container)
	}
	key = strings.TrimPrefix(key, "/")
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", fmt.Errorf("invalid key %q", key)
		}
	}
	if cleaned := path.Clean(key); cleaned != key && cleaned+"/" != key {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return key, nil
}
