// Package cache memoizes script execution results for a bounded TTL,
// so redundant expensive external calls (the invoked scripts hit cloud
// APIs) can be skipped when the caller opts in.
//
// Entries are JSON-encoded results keyed by a canonical request hash
// computed by the caller. Expiry is strict: an expired entry is a miss
// and is evicted during that same lookup. A background sweep on an
// operator-configurable cron schedule eagerly evicts what lookups
// never touch.
//
// Two stores are provided: an in-memory map and a bbolt-backed store
// that survives restarts. Both implement Store and are interchangeable.
package cache

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Store is the persistence contract for cache entries. Implementations
// must be safe for concurrent use and must treat expired entries as
// absent (evicting them on the lookup that finds them expired).
type Store interface {
	// Lookup returns the stored value for key, or false on miss/expiry.
	Lookup(key string) ([]byte, bool)

	// Store saves value under key with the given time-to-live.
	Store(key string, value []byte, ttl time.Duration) error

	// Invalidate removes key immediately.
	Invalidate(key string) error

	// Sweep evicts all expired entries and returns how many it removed.
	Sweep() int

	// Close releases store resources.
	Close() error
}

// Cache wraps a Store with a scheduled background sweep.
type Cache struct {
	store  Store
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a cache over the given store and starts the background
// sweep on the given cron schedule (standard 5-field expressions and
// descriptors like "@every 1m"). An invalid schedule is a
// construction-time error.
func New(store Store, sweepSchedule string, logger *slog.Logger) (*Cache, error) {
	c := &Cache{
		store:  store,
		cron:   cron.New(),
		logger: logger,
	}

	_, err := c.cron.AddFunc(sweepSchedule, func() {
		if n := c.store.Sweep(); n > 0 {
			c.logger.Debug("swept expired cache entries", slog.Int("evicted", n))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", sweepSchedule, err)
	}

	c.cron.Start()
	return c, nil
}

// Lookup returns the cached value for key, or false on miss.
func (c *Cache) Lookup(key string) ([]byte, bool) {
	return c.store.Lookup(key)
}

// Store saves a value under key for the given TTL.
func (c *Cache) Store(key string, value []byte, ttl time.Duration) error {
	return c.store.Store(key, value, ttl)
}

// Invalidate removes key immediately.
func (c *Cache) Invalidate(key string) error {
	return c.store.Invalidate(key)
}

// Close stops the sweep schedule and closes the store. Any sweep still
// running is allowed to finish.
func (c *Cache) Close() error {
	ctx := c.cron.Stop()
	<-ctx.Done()
	return c.store.Close()
}
