// Package selection tracks which page indices the user has picked.
package selection

import (
	"sort"
	"sync"
)

// Set is a concurrency-safe set of zero-based page indices.
// The zero value is an empty set ready for use.
type Set struct {
	mu    sync.RWMutex
	pages map[int]struct{}
}

// New returns an empty set.
func New() *Set {
	return &Set{pages: map[int]struct{}{}}
}

// Toggle flips membership of index and reports whether it is now selected.
func (s *Set) Toggle(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pages == nil {
		s.pages = map[int]struct{}{}
	}
	if _, ok := s.pages[index]; ok {
		delete(s.pages, index)
		return false
	}
	s.pages[index] = struct{}{}
	return true
}

// Clear empties the set.
func (s *Set) Clear() {
	s.mu.Lock()
	s.pages = map[int]struct{}{}
	s.mu.Unlock()
}

// Replace sets the selection to exactly indices. Duplicates collapse.
func (s *Set) Replace(indices []int) {
	next := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		next[i] = struct{}{}
	}
	s.mu.Lock()
	s.pages = next
	s.mu.Unlock()
}

// All selects every page of an n-page document.
func (s *Set) All(n int) {
	next := make(map[int]struct{}, n)
	for i := 0; i < n; i++ {
		next[i] = struct{}{}
	}
	s.mu.Lock()
	s.pages = next
	s.mu.Unlock()
}

// Contains reports whether index is selected.
func (s *Set) Contains(index int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pages[index]
	return ok
}

// Len returns the number of selected pages.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// Ordered returns the selection in ascending page order. The order in which
// pages were toggled is irrelevant.
func (s *Set) Ordered() []int {
	s.mu.RLock()
	out := make([]int, 0, len(s.pages))
	for i := range s.pages {
		out = append(out, i)
	}
	s.mu.RUnlock()
	sort.Ints(out)
	return out
}
