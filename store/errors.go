package store

import "errors"

// Sentinel errors for store operations.
var (
	// ErrNilStorage indicates a nil Storage was provided.
	ErrNilStorage = errors.New("store: storage is nil")

	// ErrInvalidIdentity indicates a request identity that cannot be stored.
	ErrInvalidIdentity = errors.New("store: identity is invalid")

	// ErrInvalidTag indicates an empty or malformed generation tag.
	ErrInvalidTag = errors.New("store: generation tag is invalid")

	// ErrUnavailable indicates the backing store cannot be reached.
	// Reads treat this as a miss; writes surface it to the caller.
	ErrUnavailable = errors.New("store: backing store unavailable")
)
