package analysis

import (
	"sort"
	"strings"
)

// StringSet is an unordered set of identifiers. Membership is what matters;
// Sorted exists only to make output deterministic.
type StringSet map[string]struct{}

func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add inserts item after trimming whitespace. Blank items are ignored.
func (s StringSet) Add(item string) {
	item = strings.TrimSpace(item)
	if item == "" {
		return
	}
	s[item] = struct{}{}
}

func (s StringSet) Has(item string) bool {
	_, ok := s[item]
	return ok
}

func (s StringSet) Len() int {
	return len(s)
}

// Difference returns the members of s that are not in other.
func (s StringSet) Difference(other StringSet) StringSet {
	out := make(StringSet)
	for item := range s {
		if !other.Has(item) {
			out[item] = struct{}{}
		}
	}
	return out
}

func (s StringSet) Union(other StringSet) StringSet {
	out := make(StringSet, len(s)+len(other))
	for item := range s {
		out[item] = struct{}{}
	}
	for item := range other {
		out[item] = struct{}{}
	}
	return out
}

func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for item := range s {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
