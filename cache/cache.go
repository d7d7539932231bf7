package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/netfold/ctrlmesh/logging"
)

// DefaultTTL is the validity window applied when Put is used without an
// explicit ttl.
const DefaultTTL = 45 * time.Second

type entry struct {
	value      interface{}
	insertedAt time.Time
	ttl        time.Duration
}

func (e entry) validAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.insertedAt) < ttl
}

// Options holds configuration overrides passed to New().
type Options struct {
	// TTL is the default validity window for entries stored via Put.
	TTL time.Duration
	// Logger receives cache diagnostics.
	Logger logging.Logger
}

// Cache is a TTL-keyed store for controller read responses. Keys follow the
// {resource-family}_{qualifier}_{site} convention, so a mutation on a
// resource family invalidates every related read with one prefix sweep and
// no per-entity bookkeeping. The key universe is a fixed handful of
// collection-level keys, which is why there is no size-based eviction.
//
// Cache is safe for concurrent use. A miss is a normal outcome, never an
// error.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
	logger     logging.Logger
}

// New constructs an empty Cache.
func New(optFns ...func(o *Options)) *Cache {
	opts := Options{
		TTL:    DefaultTTL,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Cache{
		entries:    make(map[string]entry),
		defaultTTL: opts.TTL,
		logger:     opts.Logger,
	}
}

// Get returns the stored value if it is still within its ttl. The second
// return value reports a hit; expired entries behave exactly like absent
// ones.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !e.validAt(time.Now(), e.ttl) {
		return nil, false
	}
	return e.value, true
}

// GetWithin behaves like Get but judges freshness against the caller
// supplied maxAge instead of the ttl recorded at insertion. Callers use it
// to demand fresher data for a single read without re-storing.
func (c *Cache) GetWithin(key string, maxAge time.Duration) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !e.validAt(time.Now(), maxAge) {
		return nil, false
	}
	return e.value, true
}

// Put stores value under key with the cache default ttl, unconditionally
// overwriting any previous entry.
func (c *Cache) Put(key string, value interface{}) {
	c.PutWithTTL(key, value, c.defaultTTL)
}

// PutWithTTL stores value under key with an explicit ttl.
func (c *Cache) PutWithTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, insertedAt: time.Now(), ttl: ttl}
}

// Invalidate removes every entry whose key starts with prefix and returns
// the number removed. An empty prefix clears the whole cache. Called after
// every mutating request touching a resource family.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("cache invalidated", "prefix", prefix, "removed", removed)
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
