// Package repeater implements the repeat decision engine and the per-key
// repeat scheduler.
package repeater

import (
	"strings"
	"unicode"

	"keyrepeatd/internal/config"
	"keyrepeatd/internal/event"
)

// Matcher decides whether a key combination is eligible for synthetic
// repetition in the current window. It is built once from validated
// configuration and is immutable afterwards.
type Matcher struct {
	// keys gives O(1) rejection for unmapped keys.
	keys map[string]struct{}

	// allowed holds, per key, one allowed-modifier mask per mapping.
	allowed map[string][]event.Modifiers

	// patterns are the window title patterns, pre-lowercased.
	patterns []string
}

// NewMatcher builds a matcher from mappings and window title patterns.
func NewMatcher(mappings []config.KeyMapping, patterns []string) *Matcher {
	m := &Matcher{
		keys:    make(map[string]struct{}, len(mappings)),
		allowed: make(map[string][]event.Modifiers, len(mappings)),
	}
	for _, mapping := range mappings {
		m.keys[mapping.Key] = struct{}{}
		m.allowed[mapping.Key] = append(m.allowed[mapping.Key],
			event.ModifiersFromNames(mapping.Modifiers))
	}
	for _, p := range patterns {
		m.patterns = append(m.patterns, strings.ToLower(p))
	}
	return m
}

// Decide reports whether the key should repeat given the held modifiers and
// the focused window's title. Pure: no side effects, no failure mode.
//
// Modifier rule: a mapping matches with no modifiers held, or when every
// held modifier is in the mapping's allowed set. A mapping with an empty
// allowed set therefore matches the bare key only. Holding any modifier
// outside the allowed set blocks the match, even combined with allowed
// ones. Note the bare key matches even when its mapping declares allowed
// modifiers; existing configs rely on this.
func (m *Matcher) Decide(key string, mods event.Modifiers, windowTitle string) bool {
	if _, ok := m.keys[key]; !ok {
		return false
	}

	for _, allowed := range m.allowed[key] {
		// pressed == 0, or pressed ⊆ allowed. With an empty allowed
		// set both clauses collapse to pressed == 0.
		if mods.IsEmpty() || mods&^allowed == 0 {
			return m.windowMatches(windowTitle)
		}
	}
	return false
}

// windowMatches applies the title-pattern rule: an empty pattern set
// matches every window; otherwise the case-folded title must contain at
// least one pattern.
func (m *Matcher) windowMatches(title string) bool {
	if len(m.patterns) == 0 {
		return true
	}

	titleLower := title
	if hasUpper(title) {
		titleLower = strings.ToLower(title)
	}
	for _, p := range m.patterns {
		if strings.Contains(titleLower, p) {
			return true
		}
	}
	return false
}

// hasUpper avoids a ToLower allocation for titles that are already folded,
// which is the common case since WindowContext caches the folded form.
func hasUpper(s string) bool {
	return strings.ContainsFunc(s, unicode.IsUpper)
}
