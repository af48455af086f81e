// Package sortedset provides a slice-backed collection kept ordered by a
// compare function. It backs both the scheduler's global invocation queue
// and each job's pending set.
package sortedset

// Set keeps elements in ascending compare order. Elements with equal keys
// keep insertion order. Identity (==) distinguishes elements with equal keys.
//
// Set is not safe for concurrent use.
type Set[T comparable] struct {
	items []T
	cmp   func(a, b T) int
}

// New returns an empty Set ordered by cmp.
func New[T comparable](cmp func(a, b T) int, items ...T) *Set[T] {
	s := &Set[T]{cmp: cmp}
	for _, it := range items {
		s.Insert(it)
	}
	return s
}

// Insert scans from the tail and places v after the last element that does
// not sort after it.
func (s *Set[T]) Insert(v T) {
	i := len(s.items) - 1
	for i >= 0 && s.cmp(v, s.items[i]) < 0 {
		i--
	}
	i++
	var zero T
	s.items = append(s.items, zero)
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = v
}

// Search returns the index of v, or -1.
func (s *Set[T]) Search(v T) int {
	n := len(s.items)
	if n == 0 {
		return -1
	}
	if s.items[0] == v {
		return 0
	}
	if s.items[n-1] == v {
		return n - 1
	}

	lo, hi := 0, n
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch c := s.cmp(v, s.items[mid]); {
		case c < 0:
			hi = mid
		case c > 0:
			lo = mid + 1
		default:
			return s.scanEqual(v, mid)
		}
	}
	return -1
}

// scanEqual looks for v among the run of elements comparing equal to items[mid].
func (s *Set[T]) scanEqual(v T, mid int) int {
	for i := mid; i >= 0 && s.cmp(v, s.items[i]) == 0; i-- {
		if s.items[i] == v {
			return i
		}
	}
	for i := mid + 1; i < len(s.items) && s.cmp(v, s.items[i]) == 0; i++ {
		if s.items[i] == v {
			return i
		}
	}
	return -1
}

// Remove deletes v and reports whether it was present.
func (s *Set[T]) Remove(v T) bool {
	i := s.Search(v)
	if i < 0 {
		return false
	}
	s.removeAt(i)
	return true
}

func (s *Set[T]) removeAt(i int) {
	copy(s.items[i:], s.items[i+1:])
	var zero T
	s.items[len(s.items)-1] = zero
	s.items = s.items[:len(s.items)-1]
}

// First returns the smallest element.
func (s *Set[T]) First() (T, bool) {
	if len(s.items) == 0 {
		var zero T
		return zero, false
	}
	return s.items[0], true
}

// Shift removes and returns the smallest element.
func (s *Set[T]) Shift() (T, bool) {
	v, ok := s.First()
	if ok {
		s.removeAt(0)
	}
	return v, ok
}

// At returns the i-th element in order.
func (s *Set[T]) At(i int) T { return s.items[i] }

// Len returns the number of elements.
func (s *Set[T]) Len() int { return len(s.items) }

// Items returns a copy of the elements in order.
func (s *Set[T]) Items() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Clear removes every element.
func (s *Set[T]) Clear() { s.items = nil }
