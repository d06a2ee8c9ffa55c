package storage

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")

// KVStore is a flat string-keyed blob store. Each key holds one serialized
// value that is always replaced wholesale.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)

	Put(ctx context.Context, key string, value []byte) error

	Delete(ctx context.Context, key string) error
}
