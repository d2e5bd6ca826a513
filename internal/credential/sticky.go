package credential

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// StickyOptions configure the Sticky Session Table.
type StickyOptions struct {
	TTL             time.Duration // default 30min
	MaxSessions     int           // default 10000
	CleanupInterval time.Duration // default 1min
}

type stickyBinding struct {
	ProviderType   ProviderType
	CredID         string
	CreatedAt      time.Time
	LastAccessedAt time.Time
	RequestCount   int64
}

// StickyTable maps a session id to (providerType, credential id), with TTL
// expiry and 10%-of-capacity batch LRU eviction when maxSessions is exceeded.
// A missing or expired binding is never an error to the caller — it just
// means selection falls back to ordinary LRU-by-credential.
type StickyTable struct {
	mu          sync.Mutex
	cache       *lru.Cache[string, *stickyBinding]
	ttl         time.Duration
	maxSessions int

	cleanupStop chan struct{}
	cleanupOnce sync.Once
}

// NewStickyTable builds a StickyTable, defaulting unset options, and starts
// its background TTL-sweep timer.
func NewStickyTable(opts StickyOptions) *StickyTable {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	maxSessions := opts.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 10000
	}
	interval := opts.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}

	// Capacity is sized generously above maxSessions: the table itself
	// enforces the 10%-batch eviction rule on Bind, not the underlying cache.
	cache, _ := lru.New[string, *stickyBinding](maxSessions*2 + 1)
	t := &StickyTable{
		cache:       cache,
		ttl:         ttl,
		maxSessions: maxSessions,
		cleanupStop: make(chan struct{}),
	}
	go t.cleanupLoop(interval)
	return t
}

// Lookup returns the bound credential id for sessionID if present, not
// expired, and matching pt. It refreshes lastAccessedAt and increments
// requestCount on a hit.
func (t *StickyTable) Lookup(pt ProviderType, sessionID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.cache.Get(sessionID)
	if !ok {
		return "", false
	}
	if b.ProviderType != pt {
		return "", false
	}
	if time.Since(b.LastAccessedAt) > t.ttl {
		t.cache.Remove(sessionID)
		return "", false
	}
	b.LastAccessedAt = time.Now()
	b.RequestCount++
	return b.CredID, true
}

// Bind records sessionID -> (pt, credID), creating the entry if absent. If
// the table is at capacity this evicts the oldest 10% (minimum 1) of entries
// before inserting.
func (t *StickyTable) Bind(pt ProviderType, sessionID, credID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.cache.Get(sessionID); !exists && t.cache.Len() >= t.maxSessions {
		evict := t.maxSessions / 10
		if evict < 1 {
			evict = 1
		}
		for i := 0; i < evict; i++ {
			if _, _, ok := t.cache.RemoveOldest(); !ok {
				break
			}
		}
	}

	now := time.Now()
	t.cache.Add(sessionID, &stickyBinding{
		ProviderType:   pt,
		CredID:         credID,
		CreatedAt:      now,
		LastAccessedAt: now,
		RequestCount:   1,
	})
}

// Drop removes a binding outright, used when the bound credential goes
// unhealthy or disabled and must not keep pinning new traffic to it.
func (t *StickyTable) Drop(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Remove(sessionID)
}

func (t *StickyTable) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sweepExpired()
		case <-t.cleanupStop:
			return
		}
	}
}

func (t *StickyTable) sweepExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range t.cache.Keys() {
		b, ok := t.cache.Peek(key)
		if !ok {
			continue
		}
		if time.Since(b.LastAccessedAt) > t.ttl {
			t.cache.Remove(key)
		}
	}
}

// Stop ends the background TTL-sweep timer; safe to call more than once.
func (t *StickyTable) Stop() {
	t.cleanupOnce.Do(func() { close(t.cleanupStop) })
}
