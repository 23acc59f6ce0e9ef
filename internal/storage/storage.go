// Package storage defines the blob store contract shared by the local,
// memory, and GCS backends.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// BlobStore persists named artifacts such as league match files and cache
// snapshots.
type BlobStore interface {
	// PutObject writes the object and returns its backend URI.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject opens the object for reading. The caller closes the reader.
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}
