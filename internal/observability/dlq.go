package observability

import (
	"sync"
	"time"
)

// DroppedCallback describes a gateway callback discarded at the dispatch boundary.
type DroppedCallback struct {
	At       time.Time `json:"at"`
	Callback string    `json:"callback"`
	Ref      int64     `json:"ref"`
	Reason   string    `json:"reason"`
	Detail   string    `json:"detail,omitempty"`
}

// DeadLetterQueue keeps the most recent dropped callbacks for inspection.
type DeadLetterQueue struct {
	mu       sync.Mutex
	capacity int
	entries  []DroppedCallback
	total    int
}

// NewDeadLetterQueue creates a queue holding at most capacity entries. Capacity <=0 implies unbounded.
func NewDeadLetterQueue(capacity int) *DeadLetterQueue {
	return &DeadLetterQueue{capacity: capacity, entries: make([]DroppedCallback, 0)}
}

// Offer records a dropped callback, evicting the oldest entry when full.
func (q *DeadLetterQueue) Offer(entry DroppedCallback) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.total++
	if q.capacity > 0 && len(q.entries) >= q.capacity {
		copy(q.entries[0:], q.entries[1:])
		q.entries[len(q.entries)-1] = entry
		return
	}
	q.entries = append(q.entries, entry)
}

// Drain retrieves and clears all queued entries.
func (q *DeadLetterQueue) Drain() []DroppedCallback {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := make([]DroppedCallback, len(q.entries))
	copy(drained, q.entries)
	q.entries = q.entries[:0]
	return drained
}

// Len returns the number of queued entries.
func (q *DeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Total returns how many entries were ever offered, including evicted ones.
func (q *DeadLetterQueue) Total() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total
}
