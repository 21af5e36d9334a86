package vectorstore

import "errors"

// Sentinel errors for vector store operations.
var (
	// ErrDimension is returned when a written or queried vector's length
	// differs from the store's configured dimension. This is a client-input
	// error, not a system fault.
	ErrDimension = errors.New("vector dimension mismatch")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoEmbeddings is returned by KNNFromLast when no chunk with a
	// non-null embedding exists.
	ErrNoEmbeddings = errors.New("no embedded chunks available")
)
