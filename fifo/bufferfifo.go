// File: fifo/bufferfifo.go
// Package fifo implements BufferFifo: the bounded MPMC transport queue that
// carries filled buffers from MarkedSink producers to MarkedSource
// consumers. It owns one pool.BufferPool, tracks reader/writer census, and
// applies the adaptive cubic backpressure wait described by the
// specification.
//
// Directly grounded on the original BufferFifo class (original_source's
// Buffer.hpp) and on this codebase's core/concurrency.Queue for the
// lock-free ring, with core/concurrency.CondWait standing in for the
// boost::condition_variable pair.
package fifo

import (
	"sync/atomic"
	"time"

	"github.com/robegan21/ParallelStreams/core/buffer"
	"github.com/robegan21/ParallelStreams/core/concurrency"
	"github.com/robegan21/ParallelStreams/internal/xlog"
	"github.com/robegan21/ParallelStreams/pool"
	"go.uber.org/zap"
)

// State is the observability snapshot returned by GetState, matching the
// external-interface contract field-for-field.
type State struct {
	Pushed, Popped                 int64
	PushedAttempts, PoppedAttempts int64
	QueueDelayUs                   int64
	Allocated, Deallocated         int64
	BufferDelayUs                  int64
	IsEOF                          bool
}

// BufferFifo is a bounded MPMC queue of filled *buffer.Buffer plus the
// BufferPool it owns and the reader/writer census.
type BufferFifo struct {
	queue *concurrency.Queue[*buffer.Buffer]
	pool  *pool.BufferPool

	pushCond *concurrency.CondWait // signalled after a successful Push
	popCond  *concurrency.CondWait // signalled after a successful Pop

	pushed, popped                 atomic.Int64
	pushedAttempts, poppedAttempts atomic.Int64
	queueDelayUs                   atomic.Int64

	totalReaders, closedReaders atomic.Int64
	totalWriters, closedWriters atomic.Int64

	isEOF atomic.Bool

	initialPoolCapacity int64
	initialBufferSize   buffer.Size
	warningThreshold    atomic.Int64

	log *zap.SugaredLogger
}

// New constructs a BufferFifo with bufferSize rounded up to a multiple of 64
// and numBuffers pool slots.
func New(bufferSize buffer.Size, numBuffers int, opts ...Option) *BufferFifo {
	rounded := roundBufferSize(bufferSize)
	f := &BufferFifo{
		queue:               concurrency.NewQueue[*buffer.Buffer](numBuffers),
		pool:                pool.New(numBuffers, rounded),
		pushCond:            concurrency.NewCondWait(),
		popCond:             concurrency.NewCondWait(),
		initialPoolCapacity: int64(numBuffers),
		initialBufferSize:   rounded,
		log:                 xlog.L(),
	}
	f.warningThreshold.Store(4)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func roundBufferSize(n buffer.Size) buffer.Size {
	return (n + 63) &^ 63
}

// Pool returns the owned BufferPool.
func (f *BufferFifo) Pool() *pool.BufferPool { return f.pool }

// Shutdown drains the owned pool, freeing every buffer still resting in
// it. Call it once, from the coordinator, after SetEOF and after every
// source has observed IsEOF() and closed — mirrors the original
// BufferFifo/BufferPool destructor chain, which frees the resting stack
// on teardown.
func (f *BufferFifo) Shutdown() {
	f.pool.Drain()
}

// WaitForPush blocks up to d for the next successful Push, or returns early
// on EOF/spurious wakeup. Callers must re-test their own condition
// afterward — used by MarkedSource.IsReady(block=true) to poll for new
// data in bounded increments instead of busy-spinning.
func (f *BufferFifo) WaitForPush(d time.Duration) {
	f.pushCond.Wait(d)
}

// Empty reports queue empty AND pushed == popped.
func (f *BufferFifo) Empty() bool {
	return f.queue.Len() == 0 && f.pushed.Load() == f.popped.Load()
}

// IsEOF reports terminal state: EOF was set and the queue has fully
// drained. A source must keep draining until this returns true.
func (f *BufferFifo) IsEOF() bool {
	return f.isEOF.Load() && f.Empty()
}

// SetEOF marks the pipeline terminal. Idempotent (a second call only logs a
// warning); warns if writers are still active; broadcasts the push
// condition so every blocked Pop wakes and re-evaluates IsEOF/Empty.
func (f *BufferFifo) SetEOF() {
	if f.isEOF.Swap(true) {
		f.log.Warn("fifo: SetEOF called more than once; call it exactly once from the coordinator")
	}
	if active := f.ActiveWriters(); active != 0 {
		f.log.Warnw("fifo: SetEOF called with writers still active", "activeWriters", active)
	}
	f.pushCond.Broadcast()
}

// Push transfers ownership of *bufPtr into the queue, retrying across
// transient lock-free failures and, when wait > 0, interposing timed waits
// on the pop condition. On success the caller's pointer is nulled.
func (f *BufferFifo) Push(bufPtr **buffer.Buffer, wait time.Duration) {
	f.pushed.Add(1)
	attempts := int64(1)
	start := time.Now()
	deadline := start.Add(wait)

	for !f.queue.Enqueue(*bufPtr) {
		attempts++
		if wait > 0 {
			remaining := time.Until(deadline)
			waitStart := time.Now()
			f.popCond.Wait(remaining)
			f.queueDelayUs.Add(time.Since(waitStart).Microseconds())
		}
	}
	f.pushCond.Signal()
	f.pushedAttempts.Add(attempts)
	*bufPtr = nil
}

// TryPush attempts exactly one lock-free Enqueue and returns ErrWouldBlock
// immediately on failure, never waiting. It exists for callers that must
// never block, a non-blocking fast path the original implementation has no
// equivalent of (its push() always retries forever).
func (f *BufferFifo) TryPush(bufPtr **buffer.Buffer) error {
	f.pushed.Add(1)
	f.pushedAttempts.Add(1)
	if !f.queue.Enqueue(*bufPtr) {
		f.pushed.Add(-1) // the attempt never actually entered the queue
		return ErrWouldBlock
	}
	f.pushCond.Signal()
	*bufPtr = nil
	return nil
}

// Pop removes the oldest buffer. For wait > 0 it attempts a dequeue only
// while pushes are known to be outstanding (pushed > popped), waiting on the
// push condition between attempts, and returns (nil, false) once wait has
// elapsed since the call. It returns (nil, false) immediately once IsEOF() is
// true, and also after a single failed non-blocking attempt when wait <= 0.
func (f *BufferFifo) Pop(wait time.Duration) (*buffer.Buffer, bool) {
	attempts := int64(0)
	start := time.Now()
	deadline := start.Add(wait)

	var result *buffer.Buffer
	ok := false
	for !ok && !f.IsEOF() {
		if wait <= 0 || f.pushed.Load() > f.popped.Load() {
			result, ok = f.queue.Dequeue()
			attempts++
		}
		if ok {
			break
		}
		if wait > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			waitStart := time.Now()
			f.pushCond.Wait(remaining)
			f.queueDelayUs.Add(time.Since(waitStart).Microseconds())
		} else {
			break
		}
	}
	if ok {
		f.popped.Add(1)
		f.popCond.Signal()
	}
	f.poppedAttempts.Add(attempts)
	return result, ok
}

// waitForBuffer computes the adaptive backpressure wait: a duration scaling
// cubically with outstanding buffers once outstanding exceeds the initial
// pool capacity, doubling the warning threshold (and logging once) each
// time outstanding blows past it.
func (f *BufferFifo) waitForBuffer() time.Duration {
	if f.isEOF.Load() {
		return 0
	}
	outstanding := f.pool.Outstanding()
	capacity := f.initialPoolCapacity
	if outstanding <= capacity {
		return 0
	}
	threshold := f.warningThreshold.Load()
	if outstanding > threshold*capacity {
		f.warningThreshold.CompareAndSwap(threshold, threshold*2)
		f.log.Warnw("fifo: outstanding buffers eclipsing initial pool capacity; consider a larger pool",
			"outstanding", outstanding, "initialPoolCapacity", capacity)
	}
	o := float64(outstanding)
	c := float64(capacity)
	us := 10 * o * o * o / (c * c * c)
	return time.Duration(us) * time.Microsecond
}

// BackpressureWait exposes the adaptive wait duration waitForBuffer would
// apply right now, for monitoring and tests.
func (f *BufferFifo) BackpressureWait() time.Duration {
	return f.waitForBuffer()
}

// AcquireBuffer pulls a buffer from the owned pool under the adaptive wait.
func (f *BufferFifo) AcquireBuffer() (*buffer.Buffer, error) {
	return f.pool.Acquire(f.waitForBuffer(), true)
}

// ReturnBuffer returns buf to the owned pool under the adaptive wait,
// allowing the pool to grow if it still can't place the buffer.
func (f *BufferFifo) ReturnBuffer(buf *buffer.Buffer) bool {
	return f.pool.Release(buf, f.waitForBuffer(), true)
}

// BufferSize returns the pool's current target buffer size.
func (f *BufferFifo) BufferSize() buffer.Size { return f.pool.BufferSize() }

// SetBufferSize rounds newSize up to a multiple of 64 and raises the pool's
// target size (never lowers it). Warns if the rounded size exceeds 128x the
// FIFO's initial buffer size.
func (f *BufferFifo) SetBufferSize(newSize buffer.Size) {
	rounded := roundBufferSize(newSize)
	if int64(rounded) > 128*int64(f.initialBufferSize) {
		f.log.Warnw("fifo: requested buffer size is far beyond the initial size; check for runaway Mark() intervals",
			"requested", rounded, "initialBufferSize", f.initialBufferSize)
	}
	f.pool.SetBufferSize(rounded)
}

// RegisterReader/DeregisterReader and RegisterWriter/DeregisterWriter are
// monotonic census counters used by MarkedSource/MarkedSink respectively.
func (f *BufferFifo) RegisterReader()   { f.totalReaders.Add(1) }
func (f *BufferFifo) DeregisterReader() { f.closedReaders.Add(1) }
func (f *BufferFifo) RegisterWriter()   { f.totalWriters.Add(1) }
func (f *BufferFifo) DeregisterWriter() { f.closedWriters.Add(1) }

func (f *BufferFifo) TotalReaders() int64  { return f.totalReaders.Load() }
func (f *BufferFifo) ActiveReaders() int64 { return f.totalReaders.Load() - f.closedReaders.Load() }
func (f *BufferFifo) TotalWriters() int64  { return f.totalWriters.Load() }
func (f *BufferFifo) ActiveWriters() int64 { return f.totalWriters.Load() - f.closedWriters.Load() }

// GetState snapshots the FIFO's observability counters.
func (f *BufferFifo) GetState() State {
	return State{
		Pushed:         f.pushed.Load(),
		Popped:         f.popped.Load(),
		PushedAttempts: f.pushedAttempts.Load(),
		PoppedAttempts: f.poppedAttempts.Load(),
		QueueDelayUs:   f.queueDelayUs.Load(),
		Allocated:      f.pool.AllocCount(),
		Deallocated:    f.pool.DeallocCount(),
		BufferDelayUs:  f.pool.StackDelay(),
		IsEOF:          f.IsEOF(),
	}
}
