package storage

import (
	"context"
	"errors"
)

// ErrNotCached is returned by Read when no entry exists for a resource id.
var ErrNotCached = errors.New("resource not cached")

// ResourceCache persists the raw payload of each managed resource, keyed by
// resource id. The bytes are stored verbatim.
type ResourceCache interface {
	IsCached(ctx context.Context, id string) bool
	Read(ctx context.Context, id string) ([]byte, error)
	Write(ctx context.Context, id string, data []byte) error
	Clear(ctx context.Context, id string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources (no-op for in-memory).
	Close() error
}
