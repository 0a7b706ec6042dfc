package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Repository is a typed view over one key of a Store. Values round-trip
// through encoding/json.
type Repository[T any] struct {
	store Store
	key   string
}

func NewRepository[T any](store Store, key string) *Repository[T] {
	return &Repository[T]{store: store, key: key}
}

// Load returns ErrNotFound (wrapped) when nothing was saved yet.
func (r *Repository[T]) Load(ctx context.Context) (T, error) {
	var v T
	data, err := r.store.Load(ctx, r.key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decoding %s: %w", r.key, err)
	}
	return v, nil
}

func (r *Repository[T]) Save(ctx context.Context, v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", r.key, err)
	}
	return r.store.Save(ctx, r.key, data)
}

func (r *Repository[T]) Delete(ctx context.Context) error {
	return r.store.Delete(ctx, r.key)
}

func (r *Repository[T]) Key() string { return r.key }
