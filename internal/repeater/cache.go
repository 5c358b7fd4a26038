package repeater

import (
	"sync"

	"keyrepeatd/internal/event"
)

// maxCacheEntries bounds the decision cache. The reachable key space is
// small (mapped keys x 16 modifier combinations x recent titles), so the
// bound exists to cap memory under pathological title churn, not to evict
// a hot working set.
const maxCacheEntries = 4096

// CacheKey identifies one repeat decision structurally. Embedding the
// title and pattern hashes makes entries self-invalidating: a focus change
// or pattern change produces new keys, and entries for the old window
// simply stop being looked up.
type CacheKey struct {
	KeyHash      uint64
	ModifierBits uint8
	TitleHash    uint64
	PatternsHash uint64
}

// DecisionCache memoizes Matcher decisions keyed by key, modifiers, and
// the current window context.
type DecisionCache struct {
	matcher *Matcher
	window  *WindowContext

	mu      sync.RWMutex
	entries map[CacheKey]bool
}

// NewDecisionCache builds a cache over the given matcher and window
// context.
func NewDecisionCache(matcher *Matcher, window *WindowContext) *DecisionCache {
	return &DecisionCache{
		matcher: matcher,
		window:  window,
		entries: make(map[CacheKey]bool),
	}
}

// GetOrCompute returns the repeat decision for the key and modifiers under
// the current window, computing and storing it on a miss. The second
// return reports whether the decision came from the cache.
func (c *DecisionCache) GetOrCompute(key string, mods event.Modifiers) (bool, bool) {
	ck := CacheKey{
		KeyHash:      hashString(key),
		ModifierBits: mods.Bits(),
		TitleHash:    c.window.TitleHash(),
		PatternsHash: c.window.PatternsHash(),
	}

	c.mu.RLock()
	decision, ok := c.entries[ck]
	c.mu.RUnlock()
	if ok {
		return decision, true
	}

	decision = c.matcher.Decide(key, mods, c.window.TitleLower())

	c.mu.Lock()
	if len(c.entries) >= maxCacheEntries {
		c.purgeLocked(ck)
	}
	c.entries[ck] = decision
	c.mu.Unlock()

	return decision, false
}

// purgeLocked drops entries that no longer match the current window
// context. If everything is current (the bound was hit by combination
// churn alone) the whole map is reset; recomputing decisions is cheap.
func (c *DecisionCache) purgeLocked(current CacheKey) {
	for k := range c.entries {
		if k.TitleHash != current.TitleHash || k.PatternsHash != current.PatternsHash {
			delete(c.entries, k)
		}
	}
	if len(c.entries) >= maxCacheEntries {
		c.entries = make(map[CacheKey]bool)
	}
}

// Len returns the number of cached decisions.
func (c *DecisionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
