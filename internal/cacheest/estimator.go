// Package cacheest estimates how much of a Kiro chat request's input tokens
// the upstream will serve from its prompt cache, given only a pre-computed
// total token count and the request shape itself (Kiro never reports the
// real split back to the caller).
package cacheest

import (
	"time"

	"aigateway/internal/tokenizer"
)

type cachedMessage struct {
	Index       int
	Role        string
	ContentHash string
	Tokens      int
}

type prefixEntry struct {
	StaticPrefixTokens   int
	PrefixMessagesTokens int
	CachedMessages       []cachedMessage
	AllMessagesTokens    []int
	HitCount             int
}

// Option customizes an Estimator.
type Option func(*Estimator)

// WithNow injects a clock, for deterministic TTL tests.
func WithNow(now func() time.Time) Option {
	return func(e *Estimator) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCounter overrides the token counter (defaults to tokenizer.NewCounter()).
func WithCounter(counter *tokenizer.Counter) Option {
	return func(e *Estimator) {
		if counter != nil {
			e.counter = counter
		}
	}
}

// WithToolResultStrategy sets how tool_result blocks contribute to the
// per-message content hash (defaults to ToolResultStrict).
func WithToolResultStrategy(strategy ToolResultStrategy) Option {
	return func(e *Estimator) {
		if strategy != "" {
			e.toolResultStrategy = strategy
		}
	}
}

// WithOptimisticMatching selects optimistic vs. strict prefix matching
// (defaults to true/optimistic, overridable via KIRO_OPTIMISTIC_CACHE by the
// caller that constructs the Estimator).
func WithOptimisticMatching(optimistic bool) Option {
	return func(e *Estimator) {
		e.optimistic = optimistic
	}
}

// Estimator holds one account's prompt-cache prefix history. It is not
// safe to share across accounts; use a Pool to key one Estimator per
// account id.
type Estimator struct {
	prefixes           *ttlCache[string, *prefixEntry]
	counter            *tokenizer.Counter
	toolResultStrategy ToolResultStrategy
	optimistic         bool
	now                func() time.Time
}

// NewEstimator builds an Estimator with a 500-entry, 5-minute-TTL prefix
// history, matching the upstream cache's own TTL.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		toolResultStrategy: ToolResultStrict,
		optimistic:         true,
		now:                time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.counter == nil {
		e.counter = tokenizer.NewCounter()
	}
	e.prefixes = newTTLCache[string, *prefixEntry](500, 5*time.Minute, e.now)
	return e
}

// Estimate produces the (cache_read, cache_creation, uncached) split for a
// request whose total input token count is already known.
func (e *Estimator) Estimate(req *Request, totalTokens int) Estimate {
	if !hasCacheControl(req) {
		return Estimate{Uncached: totalTokens}
	}
	k, found := lastCacheBreakpoint(req)
	if !found {
		return Estimate{Uncached: totalTokens}
	}

	model := req.Model
	tokensPerMessage := make([]int, len(req.Messages))
	for i, m := range req.Messages {
		tokensPerMessage[i] = e.counter.CountTokens(model, messageText(m))
	}
	prefixMessagesTokens := sumInts(tokensPerMessage[:k+1])

	systemHasCC := systemHasCacheControl(req.System)
	toolsHasCC := lastToolHasCacheControl(req.Tools)

	staticPrefixTokens := 0
	if systemHasCC || toolsHasCC {
		staticPrefixTokens = e.counter.CountTokens(model, staticText(req))
	}
	totalCacheable := staticPrefixTokens + prefixMessagesTokens
	if totalCacheable < minCacheableTokens(model) {
		return Estimate{Uncached: totalTokens}
	}

	cachedMessages := make([]cachedMessage, k+1)
	for i := 0; i <= k; i++ {
		cachedMessages[i] = cachedMessage{
			Index:       i,
			Role:        req.Messages[i].Role,
			ContentHash: messageContentHash(req.Messages[i], e.toolResultStrategy),
			Tokens:      tokensPerMessage[i],
		}
	}

	prefixHash := staticPrefixHash(req)
	prior, hit := e.prefixes.Get(prefixHash)

	var cacheRead, cacheCreation int
	hitCount := 0
	if !hit {
		cacheCreation = totalCacheable
	} else {
		hitCount = prior.HitCount
		cacheRead, cacheCreation = matchAgainstHistory(prior, cachedMessages, staticPrefixTokens, e.optimistic)
	}

	e.prefixes.Put(prefixHash, &prefixEntry{
		StaticPrefixTokens:   staticPrefixTokens,
		PrefixMessagesTokens: prefixMessagesTokens,
		CachedMessages:       cachedMessages,
		AllMessagesTokens:    tokensPerMessage,
		HitCount:             hitCount + 1,
	})

	uncached := totalTokens - totalCacheable
	if uncached < 0 {
		uncached = 0
	}
	return Estimate{CacheRead: cacheRead, CacheCreation: cacheCreation, Uncached: uncached}
}

// matchAgainstHistory compares the current cacheable message range against
// the previously stored one, under strict or optimistic matching.
func matchAgainstHistory(prior *prefixEntry, current []cachedMessage, staticCacheable int, optimistic bool) (cacheRead, cacheCreation int) {
	priorByIndex := make(map[int]cachedMessage, len(prior.CachedMessages))
	for _, m := range prior.CachedMessages {
		priorByIndex[m.Index] = m
	}

	broke := false
	for _, m := range current {
		matched := false
		if p, ok := priorByIndex[m.Index]; ok && p.ContentHash == m.ContentHash {
			matched = true
		}
		if optimistic {
			if matched {
				cacheRead += m.Tokens
			} else {
				cacheCreation += m.Tokens
			}
			continue
		}
		// Strict: one mismatch breaks the prefix for every message after it.
		if !broke && matched {
			cacheRead += m.Tokens
			continue
		}
		broke = true
		cacheCreation += m.Tokens
	}

	// A prefixHash hit already means system/tools/thinking matched exactly,
	// so the static portion always lands in cache_read on a hit.
	cacheRead += staticCacheable
	return cacheRead, cacheCreation
}

func hasCacheControl(req *Request) bool {
	if systemHasCacheControl(req.System) || lastToolHasCacheControl(req.Tools) {
		return true
	}
	for _, m := range req.Messages {
		if messageHasCacheControl(m) {
			return true
		}
	}
	return false
}

func lastCacheBreakpoint(req *Request) (int, bool) {
	last := -1
	for i, m := range req.Messages {
		if messageHasCacheControl(m) {
			last = i
		}
	}
	if last < 0 {
		return 0, false
	}
	return last, true
}

func messageHasCacheControl(m Message) bool {
	if m.CacheControl != nil {
		return true
	}
	for _, block := range m.Content {
		if block.CacheControl != nil {
			return true
		}
	}
	return false
}

func systemHasCacheControl(system []SystemBlock) bool {
	for _, s := range system {
		if s.CacheControl != nil {
			return true
		}
	}
	return false
}

func lastToolHasCacheControl(tools []Tool) bool {
	if len(tools) == 0 {
		return false
	}
	return tools[len(tools)-1].CacheControl != nil
}

// messageText concatenates the text-bearing parts of a message for token
// counting purposes; tool_use input and tool_result content are included as
// their raw JSON so their size still contributes to the estimate.
func messageText(m Message) string {
	var out []byte
	for _, block := range m.Content {
		switch block.Type {
		case "text", "thinking":
			out = append(out, block.Text...)
		case "tool_use":
			out = append(out, block.Name...)
			out = append(out, block.Input...)
		case "tool_result":
			out = append(out, block.Content...)
		}
		out = append(out, '\n')
	}
	return string(out)
}

func staticText(req *Request) string {
	var out []byte
	for _, s := range req.System {
		out = append(out, s.Text...)
		out = append(out, '\n')
	}
	for _, t := range req.Tools {
		out = append(out, t.Name...)
		out = append(out, t.Description...)
		out = append(out, t.InputSchema...)
		out = append(out, '\n')
	}
	return string(out)
}

func sumInts(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}
