package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
)

// GCSStore implements Store on a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCSStore creates a GCSStore for the given bucket using application
// default credentials.
func NewGCSStore(ctx context.Context, bucketName string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &GCSStore{
		client: client,
		bucket: client.Bucket(bucketName),
	}, nil
}

// Upload writes the blob to the bucket.
func (g *GCSStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing object %s: %w", key, err)
	}
	return nil
}

// Download reads a blob from the bucket.
func (g *GCSStore) Download(ctx context.Context, key string) ([]byte, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening object %s: %w", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	return data, nil
}

// Delete removes objects from the bucket, best effort.
func (g *GCSStore) Delete(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := g.bucket.Object(key).Delete(ctx); err != nil {
			slog.Warn("Failed to delete object", "key", key, "error", err)
		}
	}
}

// SignedURL returns a V4 signed GET URL for the object.
func (g *GCSStore) SignedURL(key string, ttl time.Duration) (string, error) {
	url, err := g.bucket.SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("signing url for %s: %w", key, err)
	}
	return url, nil
}

// Close closes the underlying client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}
