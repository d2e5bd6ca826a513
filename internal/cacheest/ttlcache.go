package cacheest

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ttlCache wraps a size-bounded LRU with a TTL, following the same
// entry{value, storedAt}-checked-against-an-injectable-clock idiom the
// credential package's sticky session table uses, since the plain LRU
// library has no notion of expiry.
type ttlCache[K comparable, V any] struct {
	mu    sync.Mutex
	cache *lru.Cache[K, ttlEntry[V]]
	ttl   time.Duration
	now   func() time.Time
}

type ttlEntry[V any] struct {
	value    V
	storedAt time.Time
}

func newTTLCache[K comparable, V any](size int, ttl time.Duration, now func() time.Time) *ttlCache[K, V] {
	if size <= 0 {
		size = 1
	}
	cache, _ := lru.New[K, ttlEntry[V]](size)
	return &ttlCache[K, V]{cache: cache, ttl: ttl, now: now}
}

// Get returns the cached value for key if present and not expired. An
// expired entry is evicted on the read that discovers it.
func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache.Get(key)
	var zero V
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && c.now().Sub(entry.storedAt) > c.ttl {
		c.cache.Remove(key)
		return zero, false
	}
	return entry.value, true
}

// Put stores value under key, stamped with the current time, evicting the
// LRU tail if the cache is at capacity.
func (c *ttlCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, ttlEntry[V]{value: value, storedAt: c.now()})
}
