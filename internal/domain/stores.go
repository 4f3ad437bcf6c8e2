package domain

import (
	"context"
)

// KVStore is the durable local key/value store backing the cache and queue.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetMany writes all entries atomically.
	SetMany(ctx context.Context, entries map[string][]byte) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Filter matches rows by column equality. Columns use the remote snake_case names.
type Filter map[string]any

// Gateway is the only component that talks to the hosted backend.
type Gateway interface {
	Insert(ctx context.Context, table Table, row Payload) error
	Update(ctx context.Context, table Table, id string, patch Payload) error
	Delete(ctx context.Context, table Table, id string) error
	Select(ctx context.Context, table Table, filter Filter) ([]Payload, error)
	Ping(ctx context.Context) error
}
