// Package storage abstracts the object store that holds archived audit
// batches.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
	// Metadata is stored as user metadata next to the object.
	Metadata map[string]string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the objects under prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// BatchDeleter is implemented by stores that remove many keys in one round
// trip. It returns the keys that are gone afterwards, including keys that
// were already missing.
type BatchDeleter interface {
	DeleteBatch(ctx context.Context, keys []string) ([]string, error)
}
