package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// LocalStore implements Store on the local filesystem. Keys map to paths
// under the base directory; nested keys create intermediate directories.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a LocalStore rooted at basePath, creating the
// directory if needed.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

// Upload writes the blob to disk. The content type is implied by the key's
// extension and not stored separately.
func (l *LocalStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	path := filepath.Join(l.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing object: %w", err)
	}
	return nil
}

// Download reads a blob from disk.
func (l *LocalStore) Download(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, filepath.FromSlash(key)))
	if err != nil {
		return nil, fmt.Errorf("reading object: %w", err)
	}
	return data, nil
}

// Delete removes blobs from disk, best effort.
func (l *LocalStore) Delete(ctx context.Context, keys []string) {
	for _, key := range keys {
		path := filepath.Join(l.basePath, filepath.FromSlash(key))
		if err := os.Remove(path); err != nil {
			slog.Warn("Failed to delete object", "key", key, "error", err)
		}
	}
}

// SignedURL returns a server-relative URL; the HTTP layer serves local
// objects under /objects/. The ttl is not enforced for local storage.
func (l *LocalStore) SignedURL(key string, ttl time.Duration) (string, error) {
	return "/objects/" + key, nil
}
