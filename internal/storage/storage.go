// Package storage provides the object-storage collaborator interface.
// The pipeline only reads uploaded originals by key; it never writes back.
package storage

import "context"

// Blob retrieves stored document bytes by key.
type Blob interface {
	// Get returns the stored bytes for key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores bytes under key. Used by the upload collaborator and tests.
	Put(ctx context.Context, key string, data []byte) error
}
