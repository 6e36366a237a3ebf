// File: core/buffer/buffer.go
// Package buffer implements the fixed-capacity, mark-aware byte region that
// underlies the whole pipeline: every buffer handed out by pool.BufferPool
// and transported by fifo.BufferFifo is one of these.
//
// A Buffer is single-owner at any instant: while held by a MarkedSink it has
// exactly one writer, while held by a MarkedSource it has exactly one
// reader, and while parked in the pool or the FIFO it has none. Nothing in
// this package is safe for concurrent use by two goroutines at once — the
// safety property comes entirely from ownership transfer, not locking.

package buffer

import "fmt"

// Size mirrors the original implementation's signed-size convention; kept as
// plain int because Go slices are already int-indexed and there is no
// int32-vs-size_t boundary to preserve.
type Size = int

// DefaultCapacity is a conventional buffer size. New always takes an explicit
// capacity; nothing in this package applies DefaultCapacity on its own.
const DefaultCapacity Size = 8192

// Buffer is a fixed-capacity byte region with three cursors:
//
//	[0, get)    consumed
//	[get, put)  readable
//	[put, cap)  writable
//	[mark, put) uncommitted tail (written since the last SetMark)
type Buffer struct {
	data    []byte // data[0:cap(data)] is the backing region; len(data) == cap at all times
	mmapped bool   // true if data was obtained from the platform raw-memory allocator, not the Go heap
	get     Size
	put     Size
	mark    Size
}

// New allocates a Buffer with the given capacity using the platform backing
// allocator (see alloc_linux.go / alloc_windows.go / alloc_other.go).
func New(capacity Size) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	data, mmapped := allocBacking(capacity)
	return &Buffer{data: data, mmapped: mmapped}
}

// invariantViolation is panicked by validate when a Buffer's cursors are
// corrupt. It is a distinct type (not a plain string) so tests can recover
// and assert on it without string-matching a panic message.
type invariantViolation struct {
	op  string
	msg string
}

func (e *invariantViolation) Error() string {
	return fmt.Sprintf("buffer: invariant violation in %s: %s", e.op, e.msg)
}

func (b *Buffer) fail(op, msg string) {
	panic(&invariantViolation{op: op, msg: msg})
}

// validate checks 0 <= get <= put <= capacity and 0 <= mark <= put. Write,
// Read, SetMark, Clear and Resize call it on entry and after mutating, and
// MarkRemainder on entry; the other accessors, Swap and Release do not call it.
func (b *Buffer) validate(op string) {
	capacity := len(b.data)
	if b.get < 0 || b.get > b.put {
		b.fail(op, "get out of range")
	}
	if b.put < b.get || b.put > capacity {
		b.fail(op, "put out of range")
	}
	if b.mark < 0 || b.mark > b.put {
		b.fail(op, "mark out of range")
	}
}

// Capacity returns the fixed backing size.
func (b *Buffer) Capacity() Size { return len(b.data) }

// Size returns the number of bytes written so far (the put cursor).
func (b *Buffer) Size() Size { return b.put }

// Mark returns the last committed mark position.
func (b *Buffer) Mark() Size { return b.mark }

// GRemainder returns bytes available to read: put - get.
func (b *Buffer) GRemainder() Size { return b.put - b.get }

// PRemainder returns bytes of free writable space: capacity - put.
func (b *Buffer) PRemainder() Size { return len(b.data) - b.put }

// MarkRemainder returns bytes written since the last mark: put - mark, the
// uncommitted tail.
func (b *Buffer) MarkRemainder() Size {
	b.validate("MarkRemainder")
	return b.put - b.mark
}

// Empty reports whether the Buffer is in its freshly-cleared state.
func (b *Buffer) Empty() bool {
	return b.get == 0 && b.put == 0 && b.mark == 0
}

// Write copies min(len(src), PRemainder()) bytes into the writable region
// and advances put. It never overflows the backing array and never blocks;
// callers (MarkedSink) are responsible for triggering an overflow handoff
// when there isn't enough room.
func (b *Buffer) Write(src []byte) int {
	b.validate("Write")
	n := len(src)
	if room := b.PRemainder(); n > room {
		n = room
	}
	if n > 0 {
		copy(b.data[b.put:b.put+n], src[:n])
		b.put += n
	}
	b.validate("Write")
	return n
}

// Read copies min(len(dst), GRemainder()) bytes out of the readable region
// and advances get.
func (b *Buffer) Read(dst []byte) int {
	b.validate("Read")
	n := len(dst)
	if avail := b.GRemainder(); n > avail {
		n = avail
	}
	if n > 0 {
		copy(dst[:n], b.data[b.get:b.get+n])
		b.get += n
	}
	b.validate("Read")
	return n
}

// SetMark commits everything written so far as one logical region boundary
// and returns the number of bytes committed since the previous mark.
func (b *Buffer) SetMark() Size {
	b.validate("SetMark")
	old := b.mark
	b.mark = b.put
	delta := b.mark - old
	b.validate("SetMark")
	return delta
}

// BeginMark returns the start offset of the uncommitted tail ([mark, put)).
func (b *Buffer) BeginMark() Size { return b.mark }

// Bytes returns the readable region [get, put) as a slice aliasing the
// backing array. The slice is only valid until the next mutating call.
func (b *Buffer) Bytes() []byte { return b.data[b.get:b.put] }

// TailBytes returns the uncommitted tail [mark, put) aliasing the backing
// array.
func (b *Buffer) TailBytes() []byte { return b.data[b.mark:b.put] }

// Clear rewinds get to 0 and put/mark to newMark, keeping the backing memory
// allocated. newMark must not exceed the current put.
func (b *Buffer) Clear(newMark Size) {
	b.validate("Clear")
	if newMark > b.put {
		b.fail("Clear", "newMark exceeds put")
	}
	b.get = 0
	b.put = newMark
	b.mark = newMark
	b.validate("Clear")
}

// Resize changes the backing capacity, preserving bytes in [0, put). It
// refuses to shrink below the number of bytes already written.
func (b *Buffer) Resize(newCap Size) error {
	b.validate("Resize")
	if newCap == len(b.data) {
		return nil
	}
	if newCap < b.put {
		return fmt.Errorf("buffer: cannot resize to %d below filled length %d", newCap, b.put)
	}
	grown, mmapped := allocBacking(newCap)
	copy(grown, b.data[:b.put])
	freeBacking(b.data, b.mmapped)
	b.data = grown
	b.mmapped = mmapped
	b.validate("Resize")
	return nil
}

// Swap exchanges internal state with other in constant time.
func (b *Buffer) Swap(other *Buffer) {
	b.data, other.data = other.data, b.data
	b.mmapped, other.mmapped = other.mmapped, b.mmapped
	b.get, other.get = other.get, b.get
	b.put, other.put = other.put, b.put
	b.mark, other.mark = other.mark, b.mark
}

// Release frees the backing memory. Only the owning pool calls this, when a
// buffer is discarded rather than recycled.
func (b *Buffer) Release() {
	freeBacking(b.data, b.mmapped)
	b.data = nil
	b.mmapped = false
	b.get, b.put, b.mark = 0, 0, 0
}

// State renders a human-readable snapshot of the cursors, for logs.
func (b *Buffer) State() string {
	return fmt.Sprintf("buffer(get=%d put=%d mark=%d cap=%d)", b.get, b.put, b.mark, len(b.data))
}
