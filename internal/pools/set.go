package pools

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Set is an unordered set of strings. A nil Set is empty and safe to read.
type Set map[string]struct{}

// NewSet returns a set holding items.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	s.Add(items...)
	return s
}

func (s Set) Add(items ...string) {
	for _, it := range items {
		s[it] = struct{}{}
	}
}

func (s Set) Has(item string) bool {
	_, ok := s[item]
	return ok
}

func (s Set) Remove(item string) {
	delete(s, item)
}

func (s Set) Len() int { return len(s) }

// Items returns the members in ascending order.
func (s Set) Items() []string {
	out := make([]string, 0, len(s))
	for it := range s {
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for it := range s {
		out[it] = struct{}{}
	}
	return out
}

// Filter returns, in ascending order, the members for which keep is true.
func (s Set) Filter(keep func(string) bool) []string {
	var out []string
	for it := range s {
		if keep(it) {
			out = append(out, it)
		}
	}
	sort.Strings(out)
	return out
}

// Minus returns, in ascending order, the members of s not in o.
func (s Set) Minus(o Set) []string {
	return s.Filter(func(it string) bool { return !o.Has(it) })
}

// Categorized maps a category to a set of strings.
type Categorized map[string]Set

// Get returns the set for cat, or nil when the category is unknown.
func (c Categorized) Get(cat string) Set {
	return c[cat]
}

// Add inserts items under cat, creating the category if needed.
func (c Categorized) Add(cat string, items ...string) {
	s, ok := c[cat]
	if !ok {
		s = make(Set, len(items))
		c[cat] = s
	}
	s.Add(items...)
}

func (c Categorized) Remove(cat, item string) {
	if s, ok := c[cat]; ok {
		s.Remove(item)
	}
}

// Total counts members across all categories.
func (c Categorized) Total() int {
	n := 0
	for _, s := range c {
		n += len(s)
	}
	return n
}

func (c Categorized) Clone() Categorized {
	out := make(Categorized, len(c))
	for cat, s := range c {
		out[cat] = s.Clone()
	}
	return out
}

// NormalizeWord trims and lower-cases a vocabulary word.
func NormalizeWord(w string) string {
	return cases.Lower(language.English).String(strings.TrimSpace(w))
}
