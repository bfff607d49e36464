package store

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a snapshot key.
const MaxKeyLength = 2048

// Identity is the cache key for a stored snapshot: the request method plus
// the full request URL. Only read-only methods are ever stored in practice.
type Identity struct {
	Method string
	URL    string
}

// NewIdentity creates an identity for the given method and URL.
func NewIdentity(method, url string) Identity {
	return Identity{Method: strings.ToUpper(method), URL: url}
}

// Key returns the canonical key form of the identity.
// Format: "<METHOD> <url>", e.g. "GET /app.js".
func (id Identity) Key() string {
	return id.Method + " " + id.URL
}

// Validate checks that the identity can serve as a store key.
func (id Identity) Validate() error {
	if id.Method == "" || id.URL == "" {
		return ErrInvalidIdentity
	}
	key := id.Key()
	if len(key) > MaxKeyLength {
		return ErrInvalidIdentity
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidIdentity
	}
	return nil
}

// Snapshot is the most recent response stored for one identity: status,
// headers and body, treated as an idempotent snapshot rather than a
// transactional record.
type Snapshot struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// OK reports whether the snapshot carries a success status.
func (s Snapshot) OK() bool {
	return s.Status >= 200 && s.Status < 300
}

// Clone returns a deep copy of the snapshot so callers can hold it without
// racing concurrent overwrites.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Status:   s.Status,
		Header:   make(http.Header, len(s.Header)),
		Body:     make([]byte, len(s.Body)),
		StoredAt: s.StoredAt,
	}
	for k, vs := range s.Header {
		out.Header[k] = append([]string(nil), vs...)
	}
	copy(out.Body, s.Body)
	return out
}

// Store is one named cache generation: a mapping from request identity to the
// most recent snapshot stored for that identity.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Writes: last write wins; a concurrent read observes either version.
// - Errors: Get never errors; an unavailable backing store reads as a miss.
type Store interface {
	// Get retrieves the snapshot for an identity. Returns (zero, false) on miss.
	Get(ctx context.Context, id Identity) (Snapshot, bool)

	// Put stores a snapshot for an identity, overwriting any previous one.
	Put(ctx context.Context, id Identity, snap Snapshot) error

	// Delete removes the snapshot for an identity. Idempotent.
	Delete(ctx context.Context, id Identity) error
}

// Storage owns the full set of generation-tagged stores.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Open is idempotent: opening an existing tag returns the same store.
// - Drop removes a whole generation and all of its snapshots.
type Storage interface {
	// Open returns the store for the given generation tag, creating it if
	// it does not exist yet.
	Open(ctx context.Context, tag string) (Store, error)

	// Tags lists every generation tag that currently holds a store.
	Tags(ctx context.Context) ([]string, error)

	// Drop deletes the store for the given tag. Idempotent.
	Drop(ctx context.Context, tag string) error

	// MatchAny looks the identity up across every generation, returning the
	// first snapshot found. Used by fallback paths that accept any version.
	MatchAny(ctx context.Context, id Identity) (Snapshot, bool)
}
