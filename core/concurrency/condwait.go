// File: core/concurrency/condwait.go
// Package concurrency: timed condition-variable rendezvous used as a wake-up
// hint around the lock-free Queue. The queue itself is always the source of
// truth; CondWait never participates in the data path.

package concurrency

import (
	"sync"
	"time"
)

// CondWait pairs a sync.Cond with the mutex it is built on, offering a
// microsecond/duration-bounded Wait that a spurious wakeup cannot turn into
// unbounded blocking. Two of these (one per direction) guard the rendezvous
// between a pool/fifo's producers and consumers, mirroring the push/pop
// condition-variable pair described by the original implementation.
type CondWait struct {
	mu   sync.Mutex
	cond *sync.Cond
}

// NewCondWait constructs a ready-to-use CondWait.
func NewCondWait() *CondWait {
	c := &CondWait{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Wait blocks for up to d waiting for a Signal/Broadcast. It returns early
// (possibly spuriously) on notification; callers must always re-test the
// lock-free condition they were waiting on rather than trust Wait's return.
// d <= 0 returns immediately without blocking.
func (c *CondWait) Wait(d time.Duration) {
	if d <= 0 {
		return
	}
	done := make(chan struct{})
	timer := time.AfterFunc(d, func() {
		c.mu.Lock()
		close(done)
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer timer.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-done:
		return
	default:
	}
	c.cond.Wait()
}

// Signal wakes one waiter, if any.
func (c *CondWait) Signal() {
	c.mu.Lock()
	c.cond.Signal()
	c.mu.Unlock()
}

// Broadcast wakes every waiter.
func (c *CondWait) Broadcast() {
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}
