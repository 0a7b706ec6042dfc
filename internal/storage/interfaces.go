package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when a key has never been saved.
var ErrNotFound = errors.New("key not found")

// Store is a durable key→JSON-value store. Keys are slash separated
// ("ratelimit/state"); values are opaque serialized documents.
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
