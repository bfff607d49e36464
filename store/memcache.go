package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/bradfitz/gomemcache/memcache"
)

// Memcached key layout. Memcached keys cannot exceed 250 bytes or contain
// whitespace, so tags and identities are addressed by hash.
const (
	mcTagsKey     = TagPrefix + ":tags"
	mcIndexPrefix = TagPrefix + ":idx:"
	mcSnapPrefix  = TagPrefix + ":snap:"
)

// MemcacheStorage is a memcached-backed Storage implementation for
// deployments that share cache stores between processes.
//
// Semantics are strictly best-effort: any memcached error on a read is
// reported as a miss, and index bookkeeping is only consistent within one
// process (concurrent writers in separate processes may leave orphaned
// snapshots behind, which memcached reclaims on its own). Eviction under
// memory pressure simply reads as a miss.
type MemcacheStorage struct {
	client *memcache.Client

	mu sync.Mutex // guards tag and index bookkeeping
}

// NewMemcacheStorage creates a storage backed by the memcached instance(s)
// at the given addresses.
func NewMemcacheStorage(addrs ...string) *MemcacheStorage {
	return &MemcacheStorage{
		client: memcache.New(addrs...),
	}
}

// Open returns the store for the tag, registering the tag if needed.
func (s *MemcacheStorage) Open(_ context.Context, tag string) (Store, error) {
	if tag == "" {
		return nil, ErrInvalidTag
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tags := s.readTags()
	if !containsString(tags, tag) {
		tags = append(tags, tag)
		sort.Strings(tags)
		if err := s.writeGob(mcTagsKey, tags); err != nil {
			return nil, err
		}
	}

	return &memcacheStore{parent: s, tag: tag}, nil
}

// Tags lists all registered generation tags in sorted order.
func (s *MemcacheStorage) Tags(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readTags(), nil
}

// Drop deletes every snapshot of the tag, its identity index, and the tag
// registration itself. Idempotent.
func (s *MemcacheStorage) Drop(_ context.Context, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range s.readIndex(tag) {
		_ = s.client.Delete(snapItemKey(tag, key))
	}
	_ = s.client.Delete(indexItemKey(tag))

	tags := s.readTags()
	kept := tags[:0]
	for _, t := range tags {
		if t != tag {
			kept = append(kept, t)
		}
	}
	return s.writeGob(mcTagsKey, kept)
}

// MatchAny looks the identity up across all registered tags.
func (s *MemcacheStorage) MatchAny(ctx context.Context, id Identity) (Snapshot, bool) {
	tags, _ := s.Tags(ctx)
	for _, tag := range tags {
		if snap, ok := s.readSnapshot(tag, id); ok {
			return snap, true
		}
	}
	return Snapshot{}, false
}

func (s *MemcacheStorage) readTags() []string {
	var tags []string
	s.readGob(mcTagsKey, &tags)
	return tags
}

func (s *MemcacheStorage) readIndex(tag string) []string {
	var keys []string
	s.readGob(indexItemKey(tag), &keys)
	return keys
}

func (s *MemcacheStorage) readSnapshot(tag string, id Identity) (Snapshot, bool) {
	var snap Snapshot
	if !s.readGob(snapItemKey(tag, id.Key()), &snap) {
		return Snapshot{}, false
	}
	return snap, true
}

// readGob fetches and decodes an item. Any error, including a plain cache
// miss, reads as absent.
func (s *MemcacheStorage) readGob(key string, dst any) bool {
	item, err := s.client.Get(key)
	if err != nil {
		return false
	}
	dec := gob.NewDecoder(bytes.NewReader(item.Value))
	return dec.Decode(dst) == nil
}

func (s *MemcacheStorage) writeGob(key string, v any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	// Expiration 0: staleness is version-keyed, never time-based.
	if err := s.client.Set(&memcache.Item{Key: key, Value: buf.Bytes()}); err != nil {
		return ErrUnavailable
	}
	return nil
}

// memcacheStore is one generation inside a MemcacheStorage.
type memcacheStore struct {
	parent *MemcacheStorage
	tag    string
}

func (m *memcacheStore) Get(_ context.Context, id Identity) (Snapshot, bool) {
	return m.parent.readSnapshot(m.tag, id)
}

func (m *memcacheStore) Put(_ context.Context, id Identity, snap Snapshot) error {
	if err := id.Validate(); err != nil {
		return err
	}

	if err := m.parent.writeGob(snapItemKey(m.tag, id.Key()), snap); err != nil {
		return err
	}

	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()

	keys := m.parent.readIndex(m.tag)
	if !containsString(keys, id.Key()) {
		keys = append(keys, id.Key())
		return m.parent.writeGob(indexItemKey(m.tag), keys)
	}
	return nil
}

func (m *memcacheStore) Delete(_ context.Context, id Identity) error {
	_ = m.parent.client.Delete(snapItemKey(m.tag, id.Key()))

	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()

	keys := m.parent.readIndex(m.tag)
	kept := keys[:0]
	for _, k := range keys {
		if k != id.Key() {
			kept = append(kept, k)
		}
	}
	return m.parent.writeGob(indexItemKey(m.tag), kept)
}

func snapItemKey(tag, identityKey string) string {
	return mcSnapPrefix + shortHash(tag+"\x00"+identityKey)
}

func indexItemKey(tag string) string {
	return mcIndexPrefix + shortHash(tag)
}

// shortHash returns the first 16 hex characters of SHA-256(s).
func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Ensure MemcacheStorage implements Storage
var (
	_ Storage = (*MemcacheStorage)(nil)
	_ Store   = (*memcacheStore)(nil)
)
