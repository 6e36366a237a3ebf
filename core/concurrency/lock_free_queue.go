// File: core/concurrency/lock_free_queue.go
// Package concurrency provides the lock-free MPMC primitive shared by the
// buffer pool and the buffer FIFO.
//
// Bounded multi-producer/multi-consumer ring buffer addressed by a pair of
// monotonic sequence counters, following Dmitry Vyukov's MPMC queue design.
// Capacity is rounded up to a power of two so slot addressing is a mask
// instead of a modulo.

package concurrency

import "sync/atomic"

const cacheLinePad = 64

// Queue is a bounded, lock-free MPMC ring buffer of T. It is the sole
// transport primitive shared by pool.BufferPool (bounded recycling store)
// and fifo.BufferFifo (the buffer transport queue itself).
type Queue[T any] struct {
	head  uint64
	_     [cacheLinePad - 8]byte
	tail  uint64
	_     [cacheLinePad - 8]byte
	mask  uint64
	cells []cell[T]
}

type cell[T any] struct {
	sequence atomic.Uint64
	data     T
}

// NewQueue allocates a Queue with capacity rounded up to the next power of
// two (minimum 2).
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 2 {
		capacity = 2
	}
	size := 1
	for size < capacity {
		size <<= 1
	}

	q := &Queue[T]{
		mask:  uint64(size - 1),
		cells: make([]cell[T], size),
	}
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q
}

// Cap returns the physical slot count (a power of two, may exceed the
// capacity requested at construction).
func (q *Queue[T]) Cap() int {
	return len(q.cells)
}

// Len estimates the number of occupied slots. Racy under concurrent
// Enqueue/Dequeue; intended for observability only.
func (q *Queue[T]) Len() int {
	head := atomic.LoadUint64(&q.head)
	tail := atomic.LoadUint64(&q.tail)
	if tail < head {
		return 0
	}
	return int(tail - head)
}

// Enqueue appends val. Returns false if the queue is full.
func (q *Queue[T]) Enqueue(val T) bool {
	for {
		tail := atomic.LoadUint64(&q.tail)
		idx := tail & q.mask
		c := &q.cells[idx]
		seq := c.sequence.Load()
		dif := int64(seq) - int64(tail)

		switch {
		case dif == 0:
			if atomic.CompareAndSwapUint64(&q.tail, tail, tail+1) {
				c.data = val
				c.sequence.Store(tail + 1)
				return true
			}
		case dif < 0:
			return false // full
		default:
			// another producer moved tail first; retry
		}
	}
}

// Dequeue removes and returns the oldest item. ok is false if the queue is
// empty.
func (q *Queue[T]) Dequeue() (item T, ok bool) {
	for {
		head := atomic.LoadUint64(&q.head)
		idx := head & q.mask
		c := &q.cells[idx]
		seq := c.sequence.Load()
		dif := int64(seq) - int64(head+1)

		switch {
		case dif == 0:
			if atomic.CompareAndSwapUint64(&q.head, head, head+1) {
				item = c.data
				var zero T
				c.data = zero
				c.sequence.Store(head + q.mask + 1)
				return item, true
			}
		case dif < 0:
			var zero T
			return zero, false // empty
		default:
			// another consumer moved head first; retry
		}
	}
}
