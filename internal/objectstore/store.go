package objectstore

import (
	"context"
	"time"
)

// Store defines the interface for the binary blob back end holding uploaded
// page images.
type Store interface {
	// Upload stores data under key with the given content type.
	Upload(ctx context.Context, key string, data []byte, contentType string) error

	// Download retrieves the blob stored under key.
	Download(ctx context.Context, key string) ([]byte, error)

	// Delete removes the given keys, best effort. Failures are logged, not
	// returned.
	Delete(ctx context.Context, keys []string)

	// SignedURL returns a URL from which the blob can be fetched for the
	// given duration.
	SignedURL(key string, ttl time.Duration) (string, error)
}
