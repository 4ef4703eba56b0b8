package storage

import "context"

// Storage is a generic key-value store. List iterates entries in ascending
// key order, so callers that need a stable listing should use sortable keys.
type Storage interface {
	Create(ctx context.Context, key string, value interface{}) error
	Get(ctx context.Context, key string) (interface{}, error)
	Update(ctx context.Context, key string, value interface{}) error
	List(ctx context.Context, offset, limit uint64) ([]interface{}, uint64, error)
	Delete(ctx context.Context, key string) error
}
