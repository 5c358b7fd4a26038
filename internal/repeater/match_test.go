package repeater

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyrepeatd/internal/config"
	"keyrepeatd/internal/event"
)

func TestMatcherModifierRules(t *testing.T) {
	m := NewMatcher([]config.KeyMapping{
		{Key: "j", Modifiers: []string{"ctrl", "shift"}},
		{Key: "k"},
	}, nil)

	cases := []struct {
		name string
		key  string
		mods event.Modifiers
		want bool
	}{
		{"bare mapped key", "j", 0, true},
		{"allowed modifier", "j", event.ModCtrl, true},
		{"both allowed modifiers", "j", event.ModCtrl | event.ModShift, true},
		{"disallowed modifier", "j", event.ModAlt, false},
		{"allowed plus disallowed", "j", event.ModCtrl | event.ModAlt, false},
		{"bare key with empty allowed set", "k", 0, true},
		{"modifier with empty allowed set", "k", event.ModShift, false},
		{"unmapped key", "x", 0, false},
		{"unmapped key with modifiers", "x", event.ModCtrl, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.Decide(tc.key, tc.mods, "any window"))
		})
	}
}

func TestMatcherMultipleMappingsSameKey(t *testing.T) {
	m := NewMatcher([]config.KeyMapping{
		{Key: "j", Modifiers: []string{"ctrl"}},
		{Key: "j", Modifiers: []string{"alt"}},
	}, nil)

	assert.True(t, m.Decide("j", event.ModCtrl, ""))
	assert.True(t, m.Decide("j", event.ModAlt, ""))
	assert.False(t, m.Decide("j", event.ModCtrl|event.ModAlt, ""))
}

func TestMatcherWindowPatterns(t *testing.T) {
	m := NewMatcher([]config.KeyMapping{{Key: "j"}},
		[]string{"NVIM", "emacs"})

	assert.True(t, m.Decide("j", 0, "main.go - nvim"))
	assert.True(t, m.Decide("j", 0, "Main.go - NeoVim NVIM"))
	assert.True(t, m.Decide("j", 0, "doom Emacs"))
	assert.False(t, m.Decide("j", 0, "Firefox"))
	assert.False(t, m.Decide("j", 0, ""))
}

func TestMatcherFoldsNonASCIITitles(t *testing.T) {
	m := NewMatcher([]config.KeyMapping{{Key: "j"}}, []string{"émacs"})

	assert.True(t, m.Decide("j", 0, "ÉMACS session"))
	assert.True(t, m.Decide("j", 0, "émacs session"))
	assert.False(t, m.Decide("j", 0, "vim"))
}

func TestMatcherEmptyPatternsMatchEverything(t *testing.T) {
	m := NewMatcher([]config.KeyMapping{{Key: "j"}}, nil)

	assert.True(t, m.Decide("j", 0, "Firefox"))
	assert.True(t, m.Decide("j", 0, ""))
}

func TestWindowContextUpdateTitle(t *testing.T) {
	ctx := NewWindowContext()

	require.True(t, ctx.UpdateTitle("Main.go - NVIM"))
	assert.Equal(t, "main.go - nvim", ctx.TitleLower())
	first := ctx.TitleHash()

	assert.False(t, ctx.UpdateTitle("Main.go - NVIM"))
	assert.Equal(t, first, ctx.TitleHash())

	require.True(t, ctx.UpdateTitle("Firefox"))
	assert.NotEqual(t, first, ctx.TitleHash())
	assert.Equal(t, "firefox", ctx.TitleLower())
}

func TestWindowContextPatternsHash(t *testing.T) {
	ctx := NewWindowContext()
	ctx.UpdatePatterns([]string{"nvim"})
	first := ctx.PatternsHash()

	ctx.UpdatePatterns([]string{"nvim", "emacs"})
	assert.NotEqual(t, first, ctx.PatternsHash())
}

func TestDecisionCacheHitAndMiss(t *testing.T) {
	window := NewWindowContext()
	m := NewMatcher([]config.KeyMapping{{Key: "j"}}, nil)
	cache := NewDecisionCache(m, window)

	decision, cached := cache.GetOrCompute("j", 0)
	assert.True(t, decision)
	assert.False(t, cached)

	decision, cached = cache.GetOrCompute("j", 0)
	assert.True(t, decision)
	assert.True(t, cached)

	// Different modifiers are a different cache key.
	_, cached = cache.GetOrCompute("j", event.ModCtrl)
	assert.False(t, cached)
}

func TestDecisionCacheInvalidatedByTitleChange(t *testing.T) {
	window := NewWindowContext()
	window.UpdatePatterns([]string{"nvim"})
	m := NewMatcher([]config.KeyMapping{{Key: "j"}}, []string{"nvim"})
	cache := NewDecisionCache(m, window)

	window.UpdateTitle("main.go - nvim")
	decision, _ := cache.GetOrCompute("j", 0)
	assert.True(t, decision)

	window.UpdateTitle("Firefox")
	decision, cached := cache.GetOrCompute("j", 0)
	assert.False(t, decision)
	assert.False(t, cached, "title change must produce a fresh cache key")

	// Returning to the first window reuses its still-valid entries.
	window.UpdateTitle("main.go - nvim")
	decision, cached = cache.GetOrCompute("j", 0)
	assert.True(t, decision)
	assert.True(t, cached)
}

func TestDecisionCacheBounded(t *testing.T) {
	window := NewWindowContext()
	m := NewMatcher([]config.KeyMapping{{Key: "j"}}, []string{"nvim"})
	cache := NewDecisionCache(m, window)

	for i := 0; i < maxCacheEntries+100; i++ {
		window.UpdateTitle(fmt.Sprintf("window %d", i))
		cache.GetOrCompute("j", 0)
	}

	assert.LessOrEqual(t, cache.Len(), maxCacheEntries)
}
