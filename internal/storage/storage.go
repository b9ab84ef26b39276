package storage

import (
	"context"
	"errors"
)

// Error constants for storage layer
var (
	ErrObjectNotFound = errors.New("object not found in storage")
	ErrObjectExists   = errors.New("object already exists in storage")
)

// BlobStore defines the flat key/value operations the file-backed plan store needs.
// Keys are plain file names (e.g. "AB12CD.json"); each backend maps them onto its own namespace.
type BlobStore interface {
	Exists(ctx context.Context, key string) (bool, error)

	// Get returns ErrObjectNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Create writes data only if the key does not exist yet, returning ErrObjectExists otherwise.
	Create(ctx context.Context, key string, data []byte) error

	// Put writes data, replacing any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Delete returns ErrObjectNotFound when the key is absent.
	Delete(ctx context.Context, key string) error

	// List returns every key ending in suffix.
	List(ctx context.Context, suffix string) ([]string, error)
}
