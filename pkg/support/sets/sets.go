// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sets implement a set type as a `map[T]struct{}` but with better ergonomics.
package sets

import (
	"cmp"
	"maps"
	"slices"
)

// Set implements a Set for the key type T.
type Set[T comparable] map[T]struct{}

// Make returns an empty Set of the given type. Size is optional, and if given
// will reserve the expected size.
func Make[T comparable](size ...int) Set[T] {
	if len(size) == 0 {
		return make(Set[T])
	}
	return make(Set[T], size[0])
}

// MakeWith creates a Set[T] with the given elements inserted.
func MakeWith[T comparable](elements ...T) Set[T] {
	s := Make[T](len(elements))
	s.Insert(elements...)
	return s
}

// Has returns true if Set s has the given key.
// It works on a nil Set, which is always empty.
func (s Set[T]) Has(key T) bool {
	_, found := s[key]
	return found
}

// Insert keys into set.
func (s Set[T]) Insert(keys ...T) {
	for _, key := range keys {
		s[key] = struct{}{}
	}
}

// Union returns a new set with the elements of s and s2.
func (s Set[T]) Union(s2 Set[T]) Set[T] {
	u := Make[T](len(s) + len(s2))
	for k := range s {
		u.Insert(k)
	}
	for k := range s2 {
		u.Insert(k)
	}
	return u
}

// Sub returns `s - s2`, that is, all elements in `s` that are not in `s2`.
func (s Set[T]) Sub(s2 Set[T]) Set[T] {
	sub := Make[T]()
	for k := range s {
		if !s2.Has(k) {
			sub.Insert(k)
		}
	}
	return sub
}

// IsSubsetOf returns whether every element of s is also in s2.
// The empty set is a subset of any set.
func (s Set[T]) IsSubsetOf(s2 Set[T]) bool {
	for k := range s {
		if !s2.Has(k) {
			return false
		}
	}
	return true
}

// Equal returns whether s and s2 have the exact same elements.
func (s Set[T]) Equal(s2 Set[T]) bool {
	return len(s) == len(s2) && s.IsSubsetOf(s2)
}

// Clone returns a copy of the set. Cloning a nil set returns an empty (non-nil) set.
func (s Set[T]) Clone() Set[T] {
	c := Make[T](len(s))
	maps.Copy(c, s)
	return c
}

// Sorted returns the elements of s in ascending order.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	return slices.Sorted(maps.Keys(s))
}
