// Package buffer provides a bounded ring buffer used to queue broadcast
// messages for slow subscribers.
package buffer

import (
	"sync"
)

// Ring is a thread-safe circular queue holding at most Cap items. When the
// queue is full, Push discards the oldest item to make room for the new one.
type Ring[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.Mutex
}

// NewRing creates a Ring with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends v. It reports whether the oldest item was discarded.
func (r *Ring[T]) Push(v T) (dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := (r.head + r.size) % r.capacity
	r.items[tail] = v
	if r.size < r.capacity {
		r.size++
		return false
	}
	// Full: the slot we just wrote was the oldest item.
	r.head = (r.head + 1) % r.capacity
	return true
}

// Pop removes and returns the oldest item.
func (r *Ring[T]) Pop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	v := r.items[r.head]
	r.items[r.head] = zero
	r.head = (r.head + 1) % r.capacity
	r.size--
	return v, true
}

// Clear removes all items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}

// Len returns the current number of queued items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.size
}

// Cap returns the capacity of the ring.
func (r *Ring[T]) Cap() int {
	return r.capacity
}
