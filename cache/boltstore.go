// boltstore.go implements the persistent cache store using bbolt.
// Memoized report results can be expensive to regenerate (the scripts
// call out to cloud APIs), so deployments that restart frequently can
// point the cache at a bbolt file and keep entries across restarts.
package cache

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

const cacheBucket = "result_cache"

// boltEntry is the JSON envelope stored per key.
type boltEntry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BoltStore is a bbolt-backed Store.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the cache database at dbPath.
func NewBoltStore(dbPath string) (*BoltStore, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	// Ensure bucket exists
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cacheBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Lookup returns the value for key. An entry found expired is deleted
// in a follow-up write transaction and reported as a miss.
func (s *BoltStore) Lookup(key string) ([]byte, bool) {
	var e boltEntry
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(cacheBucket))
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &e); err != nil {
			return nil // treat a corrupt entry as a miss
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, false
	}

	if time.Now().After(e.ExpiresAt) {
		// Evict on the lookup that found it expired.
		_ = s.Invalidate(key)
		return nil, false
	}

	return e.Value, true
}

// Store saves value under key until now+ttl.
func (s *BoltStore) Store(key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(cacheBucket))
		data, err := json.Marshal(boltEntry{
			Value:     value,
			ExpiresAt: time.Now().Add(ttl),
		})
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// Invalidate removes key immediately.
func (s *BoltStore) Invalidate(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(cacheBucket))
		return b.Delete([]byte(key))
	})
}

// Sweep evicts all expired entries.
func (s *BoltStore) Sweep() int {
	now := time.Now()
	evicted := 0

	_ = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(cacheBucket))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e boltEntry
			if err := json.Unmarshal(v, &e); err != nil {
				continue // skip corrupt entries
			}
			if now.After(e.ExpiresAt) {
				if err := c.Delete(); err == nil {
					evicted++
				}
			}
		}
		return nil
	})

	return evicted
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
