// Package storage provides the pluggable blob store behind the vault flow.
// Both backends publish objects atomically: a reader never observes a
// partially written or interleaved blob, and a missing key is reported as
// common.ErrorNotFound regardless of backend.
package storage

import (
	"context"
	"io"
)

// BlobStore streams opaque binary objects addressed by key.
type BlobStore interface {
	// Put consumes body incrementally and replaces the object at key. The new
	// content becomes visible only once the write completed; on error the
	// previous object (if any) stays intact.
	Put(ctx context.Context, key string, body io.Reader) error

	// Get opens the object at key for forward-only sequential reading.
	// The caller must close the returned stream. Missing key yields
	// common.ErrorNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}
