package rules

import (
	"sync"
	"sync/atomic"
	"time"
)

// RulesCache caches the enabled rule list of one owner
type RulesCache interface {
	// Get returns the cached rules, or nil on a miss or after expiry
	Get() []*Rule

	// Set stores rules in cache
	Set(rules []*Rule)

	// Generation returns a counter that every Invalidate advances
	Generation() uint64

	// SetIfGeneration stores rules only while the generation is still gen.
	// It reports whether the rules were stored.
	SetIfGeneration(gen uint64, rules []*Rule) bool

	// Invalidate clears the cache, forcing a reload on next Get
	Invalidate()
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Zero means entries only expire on invalidation.
	TTL time.Duration
}

// DefaultCacheConfig returns the config used when none is given
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}

// InMemoryRulesCache is a RulesCache guarded by a RWMutex
type InMemoryRulesCache struct {
	rules    []*Rule
	cachedAt time.Time
	valid    bool
	gen      uint64
	config   CacheConfig
	mu       sync.RWMutex
}

// NewInMemoryRulesCache creates an empty cache
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{config: config}
}

func (c *InMemoryRulesCache) Get() []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid {
		return nil
	}
	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil
	}

	out := make([]*Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = cloneRule(r)
	}
	return out
}

func (c *InMemoryRulesCache) Set(rules []*Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store(rules)
}

func (c *InMemoryRulesCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.gen
}

func (c *InMemoryRulesCache) SetIfGeneration(gen uint64, rules []*Rule) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return false
	}
	c.store(rules)
	return true
}

// store must be called with c.mu held
func (c *InMemoryRulesCache) store(rules []*Rule) {
	c.rules = make([]*Rule, len(rules))
	for i, r := range rules {
		c.rules[i] = cloneRule(r)
	}
	c.cachedAt = time.Now()
	c.valid = true
}

func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.rules = nil
	c.gen++
}

// CachedRuleStore serves ListEnabled from a RulesCache and invalidates it
// whenever a rule is added, changed or removed
type CachedRuleStore struct {
	RuleStore
	cache  RulesCache
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedRuleStore wraps store with cache
func NewCachedRuleStore(store RuleStore, cache RulesCache) *CachedRuleStore {
	return &CachedRuleStore{RuleStore: store, cache: cache}
}

// ListEnabled returns the cached enabled rules, loading them on a miss.
// A load that overlaps a write is returned but not cached.
func (s *CachedRuleStore) ListEnabled() ([]*Rule, error) {
	if rules := s.cache.Get(); rules != nil {
		s.hits.Add(1)
		return rules, nil
	}
	s.misses.Add(1)

	gen := s.cache.Generation()
	rules, err := s.RuleStore.ListEnabled()
	if err != nil {
		return nil, err
	}
	if rules == nil {
		rules = []*Rule{}
	}
	s.cache.SetIfGeneration(gen, rules)
	return rules, nil
}

// ListEnabledByIDs filters the cached enabled rules
func (s *CachedRuleStore) ListEnabledByIDs(ids []int64) ([]*Rule, error) {
	all, err := s.ListEnabled()
	if err != nil {
		return nil, err
	}
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []*Rule
	for _, r := range all {
		if _, ok := want[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *CachedRuleStore) Add(rule *Rule) error {
	defer s.cache.Invalidate()
	return s.RuleStore.Add(rule)
}

func (s *CachedRuleStore) Update(rule *Rule) error {
	defer s.cache.Invalidate()
	return s.RuleStore.Update(rule)
}

func (s *CachedRuleStore) Delete(id int64) error {
	defer s.cache.Invalidate()
	return s.RuleStore.Delete(id)
}

// Stats returns cache hit and miss counts
func (s *CachedRuleStore) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}
