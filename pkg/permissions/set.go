package permissions

import (
	"encoding/json"
	"sort"
)

// Set is an unordered collection of permission keys.
//
// Operations that combine sets return new values and never modify their
// operands. A nil Set is empty and encodes to JSON as [].
type Set map[Key]struct{}

// NewSet builds a set from keys
func NewSet(keys ...Key) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// SetOf builds a set from raw strings without validating them. Stored
// overrides go through here so that keys retired from the catalog still
// load; the calculator ignores them.
func SetOf(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[Key(v)] = struct{}{}
	}
	return s
}

// Has reports whether k is in the set
func (s Set) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// Len returns the number of keys
func (s Set) Len() int {
	return len(s)
}

// Clone returns an independent copy
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// With returns a copy of s including k
func (s Set) With(k Key) Set {
	out := s.Clone()
	out[k] = struct{}{}
	return out
}

// Without returns a copy of s excluding k
func (s Set) Without(k Key) Set {
	out := s.Clone()
	delete(out, k)
	return out
}

// Union returns s ∪ other
func (s Set) Union(other Set) Set {
	out := s.Clone()
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// Difference returns s \ other
func (s Set) Difference(other Set) Set {
	out := make(Set, len(s))
	for k := range s {
		if !other.Has(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// Intersect returns s ∩ other
func (s Set) Intersect(other Set) Set {
	out := make(Set)
	for k := range s {
		if other.Has(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// Filter returns the keys for which keep returns true
func (s Set) Filter(keep func(Key) bool) Set {
	out := make(Set, len(s))
	for k := range s {
		if keep(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// Equal reports set equality
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if !other.Has(k) {
			return false
		}
	}
	return true
}

// Sorted returns the keys in lexical order
func (s Set) Sorted() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Strings returns the keys as sorted strings
func (s Set) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, k := range sorted {
		out[i] = string(k)
	}
	return out
}

// MarshalJSON encodes the set as a sorted array
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes an array of keys. null decodes to an empty set.
func (s *Set) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = SetOf(values...)
	return nil
}
