// Package queue provides a bounded, mutex-protected FIFO ring used for the
// inbound command queue and the outbound result queue. Any number of
// goroutines may push and pop concurrently.
package queue

import (
	"sync"
	"sync/atomic"
)

// Queue is a bounded FIFO. Capacity is rounded up to a power of two.
type Queue[T any] struct {
	mu   sync.Mutex
	buf  []T
	mask uint64
	head uint64 // next write
	tail uint64 // next read

	overflow atomic.Uint64
}

// New creates a queue. capacity is rounded up to the next power of two,
// minimum 2.
func New[T any](capacity int) *Queue[T] {
	n := nextPow2(capacity)
	if n < 2 {
		n = 2
	}
	return &Queue[T]{
		buf:  make([]T, n),
		mask: uint64(n - 1),
	}
}

// Push appends v. Returns false (and counts an overflow) if the queue is full.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head-q.tail >= uint64(len(q.buf)) {
		q.overflow.Add(1)
		return false
	}
	q.buf[q.head&q.mask] = v
	q.head++
	return true
}

// Pop removes the oldest item. Returns false if the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.tail >= q.head {
		return zero, false
	}
	i := q.tail & q.mask
	v := q.buf[i]
	q.buf[i] = zero
	q.tail++
	return v, true
}

// Drain removes and returns every queued item, oldest first.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tail >= q.head {
		return nil
	}
	var zero T
	out := make([]T, 0, q.head-q.tail)
	for ; q.tail < q.head; q.tail++ {
		i := q.tail & q.mask
		out = append(out, q.buf[i])
		q.buf[i] = zero
	}
	return out
}

// Len returns the current number of items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.head - q.tail)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Overflow returns the number of rejected pushes.
func (q *Queue[T]) Overflow() uint64 {
	return q.overflow.Load()
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
