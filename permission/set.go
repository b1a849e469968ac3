package permission

import "sort"

// Set is an unordered collection of permission tags.
type Set map[Tag]struct{}

// NewSet builds a Set from the given tags.
func NewSet(tags ...Tag) Set {
	s := make(Set, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// FromStrings builds a Set from raw tag names, as decoded from a token's
// permissions claim.
func FromStrings(names []string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[Tag(n)] = struct{}{}
	}
	return s
}

// Has reports whether the set contains the tag.
func (s Set) Has(tag Tag) bool {
	_, ok := s[tag]
	return ok
}

// HasAll reports whether every given tag is present.
func (s Set) HasAll(tags ...Tag) bool {
	for _, t := range tags {
		if !s.Has(t) {
			return false
		}
	}
	return true
}

// Intersects reports whether the set shares at least one tag with other.
func (s Set) Intersects(other Set) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for t := range small {
		if _, ok := large[t]; ok {
			return true
		}
	}
	return false
}

// Strings returns the tag names in sorted order, suitable for embedding in
// a token claim set.
func (s Set) Strings() []string {
	names := make([]string, 0, len(s))
	for t := range s {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}

// AnyOf is an or-group: a principal satisfies it by holding at least one of
// its tags. Guards take a conjunction of single tags plus zero or more
// AnyOf groups.
type AnyOf Set

// Any builds an or-group from the given tags.
func Any(tags ...Tag) AnyOf {
	return AnyOf(NewSet(tags...))
}
