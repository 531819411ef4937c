// memstore.go implements the in-memory cache store.
// Entries live in a map guarded by a read-write mutex; the lock is held
// only for the brief bookkeeping operation, never across anything that
// blocks.
package cache

import (
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is a map-backed Store. The cache is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
	}
}

// Lookup returns the value for key. An entry found expired is evicted
// here so no read ever returns stale data.
func (s *MemoryStore) Lookup(key string) ([]byte, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock: a concurrent Store may have
		// refreshed the entry since the read.
		if current, ok := s.entries[key]; ok && time.Now().After(current.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false
	}

	return e.value, true
}

// Store saves value under key until now+ttl.
func (s *MemoryStore) Store(key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[key] = memEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	s.mu.Unlock()
	return nil
}

// Invalidate removes key immediately.
func (s *MemoryStore) Invalidate(key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Sweep evicts all expired entries.
func (s *MemoryStore) Sweep() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
			evicted++
		}
	}
	return evicted
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of entries, expired or not. For tests and
// health reporting.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
