// cache_test.go tests TTL semantics across both stores and the
// scheduled sweep wrapper. Expiry is strict: an expired entry is a
// miss on the lookup that finds it, and the sweep evicts what lookups
// never touch.
package cache

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

// nopLogger returns a logger that discards all output, suitable for tests.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemoryStore_StoreAndLookup(t *testing.T) {
	s := NewMemoryStore()

	if err := s.Store("k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	v, ok := s.Lookup("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(v) != "v" {
		t.Errorf("value = %q, want %q", v, "v")
	}
}

func TestMemoryStore_MissOnUnknownKey(t *testing.T) {
	s := NewMemoryStore()
	if _, ok := s.Lookup("absent"); ok {
		t.Fatal("expected miss")
	}
}

func TestMemoryStore_ExpiredEntryEvictedOnLookup(t *testing.T) {
	s := NewMemoryStore()
	s.Store("k", []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := s.Lookup("k"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0 (lookup must evict)", s.Len())
	}
}

func TestMemoryStore_Invalidate(t *testing.T) {
	s := NewMemoryStore()
	s.Store("k", []byte("v"), time.Minute)
	s.Invalidate("k")
	if _, ok := s.Lookup("k"); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	s := NewMemoryStore()
	s.Store("stale1", []byte("v"), time.Millisecond)
	s.Store("stale2", []byte("v"), time.Millisecond)
	s.Store("fresh", []byte("v"), time.Minute)
	time.Sleep(5 * time.Millisecond)

	if n := s.Sweep(); n != 2 {
		t.Errorf("Sweep evicted %d, want 2", n)
	}
	if _, ok := s.Lookup("fresh"); !ok {
		t.Error("fresh entry must survive the sweep")
	}
}

func TestBoltStore_StoreAndLookup(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	defer s.Close()

	if err := s.Store("k", []byte(`{"status":"succeeded"}`), time.Minute); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	v, ok := s.Lookup("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(v) != `{"status":"succeeded"}` {
		t.Errorf("value = %q", v)
	}
}

func TestBoltStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	s.Store("k", []byte("v"), time.Minute)
	s.Close()

	s2, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	if _, ok := s2.Lookup("k"); !ok {
		t.Fatal("expected entry to survive reopen")
	}
}

func TestBoltStore_ExpiredEntryEvictedOnLookup(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	defer s.Close()

	s.Store("k", []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := s.Lookup("k"); ok {
		t.Fatal("expected expired entry to miss")
	}
	// A second lookup must not find a resurrected entry.
	if _, ok := s.Lookup("k"); ok {
		t.Fatal("expired entry was not evicted")
	}
}

func TestBoltStore_Sweep(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	defer s.Close()

	s.Store("stale", []byte("v"), time.Millisecond)
	s.Store("fresh", []byte("v"), time.Minute)
	time.Sleep(5 * time.Millisecond)

	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep evicted %d, want 1", n)
	}
	if _, ok := s.Lookup("fresh"); !ok {
		t.Error("fresh entry must survive the sweep")
	}
}

func TestCache_DelegatesToStore(t *testing.T) {
	c, err := New(NewMemoryStore(), "@every 1m", nopLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	c.Store("k", []byte("v"), time.Minute)
	if _, ok := c.Lookup("k"); !ok {
		t.Fatal("expected hit through the wrapper")
	}
	c.Invalidate("k")
	if _, ok := c.Lookup("k"); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestCache_RejectsInvalidSchedule(t *testing.T) {
	if _, err := New(NewMemoryStore(), "not a schedule", nopLogger()); err == nil {
		t.Fatal("expected error for invalid sweep schedule")
	}
}
