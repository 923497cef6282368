// Package registry binds generated correlation ids to subscription and order descriptors.
package registry

import "sync/atomic"

// Sequence issues monotonically increasing ids from an externally supplied seed.
// It is never reset; Advance only moves it forward.
type Sequence struct {
	next atomic.Int64
}

// NewSequence creates a sequence whose first issued id is seed.
func NewSequence(seed int64) *Sequence {
	s := new(Sequence)
	s.next.Store(seed)
	return s
}

// Next returns the next id and advances the sequence.
func (s *Sequence) Next() int64 {
	return s.next.Add(1) - 1
}

// Peek returns the id the next call to Next will issue.
func (s *Sequence) Peek() int64 {
	return s.next.Load()
}

// Advance moves the sequence so the next issued id is at least min.
// It reports whether the sequence moved.
func (s *Sequence) Advance(min int64) bool {
	for {
		cur := s.next.Load()
		if min <= cur {
			return false
		}
		if s.next.CompareAndSwap(cur, min) {
			return true
		}
	}
}
