package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func snap(body string) Snapshot {
	return Snapshot{Status: 200, Body: []byte(body)}
}

// TestMemoryStorage_OpenGetPut tests basic round trips through one generation.
func TestMemoryStorage_OpenGetPut(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	st, err := s.Open(ctx, "aura-v1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	id := NewIdentity("GET", "/app.js")

	if _, ok := st.Get(ctx, id); ok {
		t.Fatal("Get() on empty store reported a hit")
	}

	if err := st.Put(ctx, id, snap("v1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok := st.Get(ctx, id)
	if !ok {
		t.Fatal("Get() after Put() missed")
	}
	if string(got.Body) != "v1" {
		t.Errorf("Get() body = %q, want %q", got.Body, "v1")
	}
}

// TestMemoryStorage_LastWriteWins verifies an identity maps to at most one snapshot.
func TestMemoryStorage_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	st, _ := s.Open(ctx, "aura-v1")
	id := NewIdentity("GET", "/app.js")

	_ = st.Put(ctx, id, snap("v1"))
	_ = st.Put(ctx, id, snap("v2"))

	got, ok := st.Get(ctx, id)
	if !ok || string(got.Body) != "v2" {
		t.Errorf("Get() = %q, %v; want %q, true", got.Body, ok, "v2")
	}
}

// TestMemoryStorage_OpenIdempotent verifies reopening a tag yields the same store.
func TestMemoryStorage_OpenIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	id := NewIdentity("GET", "/")

	st1, _ := s.Open(ctx, "aura-v1")
	_ = st1.Put(ctx, id, snap("hello"))

	st2, _ := s.Open(ctx, "aura-v1")
	if _, ok := st2.Get(ctx, id); !ok {
		t.Error("reopened store lost entry")
	}
}

// TestMemoryStorage_OpenInvalidTag rejects empty tags.
func TestMemoryStorage_OpenInvalidTag(t *testing.T) {
	_, err := NewMemoryStorage().Open(context.Background(), "")
	if err != ErrInvalidTag {
		t.Errorf("Open(\"\") error = %v, want %v", err, ErrInvalidTag)
	}
}

// TestMemoryStorage_TagsAndDrop tests generation enumeration and removal.
func TestMemoryStorage_TagsAndDrop(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	for _, tag := range []string{"aura-v1", "aura-static-v1", "aura-v2"} {
		if _, err := s.Open(ctx, tag); err != nil {
			t.Fatalf("Open(%q) error = %v", tag, err)
		}
	}

	tags, err := s.Tags(ctx)
	if err != nil {
		t.Fatalf("Tags() error = %v", err)
	}
	if len(tags) != 3 {
		t.Fatalf("Tags() = %v, want 3 tags", tags)
	}

	if err := s.Drop(ctx, "aura-v1"); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	// Idempotent
	if err := s.Drop(ctx, "aura-v1"); err != nil {
		t.Fatalf("second Drop() error = %v", err)
	}

	tags, _ = s.Tags(ctx)
	for _, tag := range tags {
		if tag == "aura-v1" {
			t.Error("dropped tag still listed")
		}
	}
	if len(tags) != 2 {
		t.Errorf("Tags() after drop = %v, want 2 tags", tags)
	}
}

// TestMemoryStorage_MatchAny tests cross-generation lookup.
func TestMemoryStorage_MatchAny(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	id := NewIdentity("GET", "/index.html")

	if _, ok := s.MatchAny(ctx, id); ok {
		t.Fatal("MatchAny() on empty storage reported a hit")
	}

	old, _ := s.Open(ctx, "aura-v1")
	_ = old.Put(ctx, id, snap("<html v1>"))

	got, ok := s.MatchAny(ctx, id)
	if !ok || string(got.Body) != "<html v1>" {
		t.Errorf("MatchAny() = %q, %v; want %q, true", got.Body, ok, "<html v1>")
	}

	// A hit in any generation counts, regardless of which tag holds it.
	if _, err := s.Open(ctx, "aura-v2"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.MatchAny(ctx, id); !ok {
		t.Error("MatchAny() lost entry after opening another generation")
	}
}

// TestMemoryStorage_Delete tests snapshot removal.
func TestMemoryStorage_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	st, _ := s.Open(ctx, "aura-v1")
	id := NewIdentity("GET", "/app.css")

	_ = st.Put(ctx, id, snap("body{}"))
	if err := st.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := st.Get(ctx, id); ok {
		t.Error("Get() after Delete() hit")
	}
	// Idempotent
	if err := st.Delete(ctx, id); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

// TestMemoryStorage_ConcurrentAccess exercises concurrent readers and writers
// across identities and generations.
func TestMemoryStorage_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tag := fmt.Sprintf("aura-v%d", n%4)
			st, err := s.Open(ctx, tag)
			if err != nil {
				t.Errorf("Open(%q) error = %v", tag, err)
				return
			}
			id := NewIdentity("GET", fmt.Sprintf("/asset-%d.js", n))
			for j := 0; j < 50; j++ {
				_ = st.Put(ctx, id, snap("x"))
				st.Get(ctx, id)
				s.MatchAny(ctx, id)
			}
		}(i)
	}
	wg.Wait()
}
