package search

import (
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Default governor parameters.
const (
	DefaultMinRequestInterval = 30 * time.Second
	DefaultCacheDuration      = time.Hour
)

// Governor owns the global search pacing state: the time of the last
// provider request and a short-lived cache of query results. The orchestrator
// creates one Governor and shares it across all search calls, so two
// concurrent callers inside the interval both observe the rate limit
// immediately (no queueing).
//
// Governor is safe for concurrent use. The clock is injectable so tests can
// drive both rate limiting and cache expiry deterministically.
type Governor struct {
	minInterval   time.Duration
	cacheDuration time.Duration
	now           func() time.Time

	mu       sync.Mutex
	lastReq  time.Time
	haveLast bool
	cache    map[string]cacheEntry

	// flight coalesces concurrent identical queries so only one reaches the
	// provider.
	flight singleflight.Group
}

type cacheEntry struct {
	results    []Result
	insertedAt time.Time
}

// GovernorOption configures a Governor.
type GovernorOption func(*Governor)

// WithMinInterval overrides the minimum interval between provider requests.
func WithMinInterval(d time.Duration) GovernorOption {
	return func(g *Governor) { g.minInterval = d }
}

// WithCacheDuration overrides how long query results stay cached.
func WithCacheDuration(d time.Duration) GovernorOption {
	return func(g *Governor) { g.cacheDuration = d }
}

// WithGovernorClock replaces the clock source.
func WithGovernorClock(now func() time.Time) GovernorOption {
	return func(g *Governor) { g.now = now }
}

// NewGovernor creates a Governor with the default interval and cache duration.
func NewGovernor(opts ...GovernorOption) *Governor {
	g := &Governor{
		minInterval:   DefaultMinRequestInterval,
		cacheDuration: DefaultCacheDuration,
		now:           time.Now,
		cache:         map[string]cacheEntry{},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// SetLimits adjusts the minimum request interval and cache duration at
// runtime. Values <= 0 leave the corresponding setting untouched. Existing
// cache entries are re-evaluated against the new duration on lookup.
func (g *Governor) SetLimits(minInterval, cacheDuration time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if minInterval > 0 {
		g.minInterval = minInterval
	}
	if cacheDuration > 0 {
		g.cacheDuration = cacheDuration
	}
}

// Allow reports whether a provider request may be issued now. When it may
// not, the second return value is the remaining wait.
func (g *Governor) Allow() (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.haveLast {
		return true, 0
	}
	elapsed := g.now().Sub(g.lastReq)
	if elapsed >= g.minInterval {
		return true, 0
	}
	return false, g.minInterval - elapsed
}

// MarkRequest records that a provider request was just issued.
func (g *Governor) MarkRequest() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastReq = g.now()
	g.haveLast = true
}

// Cached returns the cached results for the normalised query, if present and
// fresh. Stale entries are dropped on inspection.
func (g *Governor) Cached(query string) ([]Result, bool) {
	key := cacheKey(query)

	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.cache[key]
	if !ok {
		return nil, false
	}
	if g.now().Sub(entry.insertedAt) >= g.cacheDuration {
		delete(g.cache, key)
		return nil, false
	}
	return entry.results, true
}

// StoreCache caches results for the normalised query.
func (g *Governor) StoreCache(query string, results []Result) {
	key := cacheKey(query)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache[key] = cacheEntry{results: results, insertedAt: g.now()}
}

// Coalesce runs fn once for all concurrent calls sharing the same normalised
// query and hands every caller the same outcome.
func (g *Governor) Coalesce(query string, fn func() (Outcome, error)) Outcome {
	v, _, _ := g.flight.Do(cacheKey(query), func() (any, error) {
		out, _ := fn()
		return out, nil
	})
	return v.(Outcome)
}

// cacheKey hashes the normalised query into a compact map key.
func cacheKey(query string) string {
	h := fnv.New64a()
	h.Write([]byte(query))
	return strconv.FormatUint(h.Sum64(), 16)
}
