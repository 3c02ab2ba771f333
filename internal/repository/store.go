package repository

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get for a missing key.
var ErrNotFound = errors.New("key not found")

// Store is a small durable key/value store for saved storybooks.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type namespaced struct {
	store  Store
	prefix string
}

// Namespaced prefixes every key with prefix + ":".
func Namespaced(store Store, prefix string) Store {
	return &namespaced{store: store, prefix: prefix + ":"}
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.store.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.store.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.prefix+key)
}
