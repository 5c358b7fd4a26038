package repeater

import (
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
)

// WindowContext holds the focused window's case-folded title and stable
// content hashes of the title and the configured pattern set. It is
// written only by the window detector; the scheduler and cache read it on
// every keystroke, so reads are cheap and allocation-light.
//
// Hash reads and the cached title are not updated under one lock; a reader
// racing an update may pair the new hash with the old title for one
// decision. The decision cache keys on the hash, so the worst case is a
// single recomputed decision, never a stale cached one.
type WindowContext struct {
	titleHash    atomic.Uint64
	patternsHash atomic.Uint64

	mu         sync.RWMutex
	titleLower string
}

// NewWindowContext returns an empty context.
func NewWindowContext() *WindowContext {
	return &WindowContext{}
}

// UpdateTitle recomputes the title hash and, when it changed, replaces the
// cached lower-cased title. Returns whether the title changed.
func (c *WindowContext) UpdateTitle(title string) bool {
	newHash := hashString(title)
	if c.titleHash.Swap(newHash) == newHash {
		return false
	}

	c.mu.Lock()
	c.titleLower = strings.ToLower(title)
	c.mu.Unlock()
	return true
}

// UpdatePatterns recomputes the pattern-set hash. Called on configuration
// load; pattern changes mid-run are supported but not expected.
func (c *WindowContext) UpdatePatterns(patterns []string) {
	h := fnv.New64a()
	for _, p := range patterns {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	c.patternsHash.Store(h.Sum64())
}

// TitleLower returns the cached lower-cased title.
func (c *WindowContext) TitleLower() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.titleLower
}

// TitleHash returns the current title hash.
func (c *WindowContext) TitleHash() uint64 {
	return c.titleHash.Load()
}

// PatternsHash returns the current pattern-set hash.
func (c *WindowContext) PatternsHash() uint64 {
	return c.patternsHash.Load()
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
