package node

import "sync"

// ring stores staged items in a fixed-size FIFO. It is safe for concurrent
// producers and a single consumer.
type ring[T any] struct {
	mu    sync.Mutex
	data  []T
	head  int
	tail  int
	count int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{data: make([]T, capacity)}
}

func (r *ring[T]) Capacity() int {
	return len(r.data)
}

// Push stages v, returning false if the ring is full.
func (r *ring[T]) Push(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == len(r.data) {
		return false
	}
	r.data[r.tail] = v
	r.tail = (r.tail + 1) % len(r.data)
	r.count++
	return true
}

// Drain returns all staged items in FIFO order and empties the ring.
func (r *ring[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return nil
	}
	out := make([]T, r.count)
	var zero T
	for i := 0; i < r.count; i++ {
		idx := (r.head + i) % len(r.data)
		out[i] = r.data[idx]
		r.data[idx] = zero
	}
	r.head = 0
	r.tail = 0
	r.count = 0
	return out
}

func (r *ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
