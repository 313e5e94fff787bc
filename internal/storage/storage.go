// Package storage persists attachment bytes behind a BlobStore
// interface with S3-compatible and local-filesystem backends.
package storage

import (
	"context"
)

// BlobStore accepts byte streams keyed by attachment identity and
// returns them on demand.
type BlobStore interface {
	// Put stores data under key, replacing any prior version, and
	// returns the stored byte size.
	Put(ctx context.Context, key string, data []byte, contentType string) (int64, error)
	// Get returns the bytes stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the bytes stored under key. Deleting a missing
	// key is not an error.
	Delete(ctx context.Context, key string) error
}
