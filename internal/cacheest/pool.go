package cacheest

import (
	"sync"
	"time"
)

// PoolOptions configures a Pool.
type PoolOptions struct {
	MaxAccounts      int // default 100
	TTL              time.Duration // default 1h
	EstimatorOptions []Option
	Now              func() time.Time
}

// Pool LRU's one Estimator per account id, so prefix history for an
// inactive account is eventually reclaimed instead of growing forever.
type Pool struct {
	mu            sync.Mutex
	accounts      *ttlCache[string, *Estimator]
	estimatorOpts []Option
	now           func() time.Time
}

// NewPool builds a Pool, defaulting unset options.
func NewPool(opts PoolOptions) *Pool {
	maxAccounts := opts.MaxAccounts
	if maxAccounts <= 0 {
		maxAccounts = 100
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pool{
		accounts:      newTTLCache[string, *Estimator](maxAccounts, ttl, now),
		estimatorOpts: opts.EstimatorOptions,
		now:           now,
	}
}

// ForAccount returns the Estimator for accountID, lazily creating one on
// first use.
func (p *Pool) ForAccount(accountID string) *Estimator {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.accounts.Get(accountID); ok {
		return e
	}
	opts := append([]Option{WithNow(p.now)}, p.estimatorOpts...)
	e := NewEstimator(opts...)
	p.accounts.Put(accountID, e)
	return e
}
