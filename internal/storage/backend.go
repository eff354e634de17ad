// Package storage holds the durable media a rule snapshot can live in.
// Every backend stores one opaque payload; encoding belongs to the caller.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the backend holds no snapshot yet
	ErrNotFound = errors.New("snapshot not found")
	// ErrUnavailable means the backend could not be reached or written
	ErrUnavailable = errors.New("storage backend unavailable")
)

// Backend persists a serialized snapshot
type Backend interface {
	// Read returns the stored payload, ErrNotFound or ErrUnavailable
	Read(ctx context.Context) ([]byte, error)
	// Write replaces the stored payload or fails with ErrUnavailable
	Write(ctx context.Context, data []byte) error
	// Location identifies the physical record holding the payload
	Location() string
}
