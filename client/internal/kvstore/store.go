// Package kvstore defines the durable key/value contract the session layer
// persists through, plus adapters for in-memory, BadgerDB and SQLite
// backends. Values are opaque strings; the layout of what is stored is the
// caller's business.
package kvstore

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("kvstore: closed")

// Reader is a read handle valid only inside a View callback.
type Reader interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
}

// Store is the durable key/value service. All methods may fail with an I/O
// error; implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	MultiRemove(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error

	// View runs fn with a consistent read handle. The handle is released
	// when View returns, whatever fn does.
	View(ctx context.Context, fn func(Reader) error) error

	Close() error
}
