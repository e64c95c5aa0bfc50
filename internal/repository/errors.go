package repository

import "errors"

// Error kinds surfaced by repository operations, in propagation priority
// order. Mutations roll back partial effects before returning any of these.
var (
	// ErrNotFound means the id is missing from the store.
	ErrNotFound = errors.New("knowledge item not found")

	// ErrAlreadyExists means an id collision on add, or an attempt to
	// supersede an item that already has a successor.
	ErrAlreadyExists = errors.New("knowledge item already exists")

	// ErrValidationFailed wraps the validator diagnostic.
	ErrValidationFailed = errors.New("content validation failed")

	// ErrEmbeddingFailed wraps the embedding provider diagnostic.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrVectorStoreFailed covers I/O or invariant violations in vector
	// storage.
	ErrVectorStoreFailed = errors.New("vector store operation failed")

	// ErrBadRequest means a malformed request: unknown type or status,
	// missing required field.
	ErrBadRequest = errors.New("bad request")

	// ErrClosed means the repository has been stopped.
	ErrClosed = errors.New("repository is stopped")
)
