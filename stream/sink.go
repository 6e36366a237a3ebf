// File: stream/sink.go
// MarkedSink is the producer-side stream endpoint: a single-goroutine,
// write-only adapter over one in-flight buffer.Buffer borrowed from a
// fifo.BufferFifo. It is the Go-native replacement for marked_fifo_streambuf
// (original_source/marked_iostream.hpp) used in its write-only role,
// generalized to report errors instead of silently truncating.
package stream

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/robegan21/ParallelStreams/core/buffer"
	"github.com/robegan21/ParallelStreams/fifo"
)

// MarkedSink is a single-producer stream bound to one BufferFifo.
type MarkedSink struct {
	ID uuid.UUID

	fifo  *fifo.BufferFifo
	buf   *buffer.Buffer
	state EndpointState

	prevBytes int64
	closed    bool
}

// NewSink acquires an initial buffer from f's pool and returns a fresh,
// as-yet-unused sink. The sink does not register as a writer with f until
// its first Write.
func NewSink(f *fifo.BufferFifo) *MarkedSink {
	buf, _ := f.AcquireBuffer() // AcquireBuffer always allows allocation; never fails
	return &MarkedSink{ID: uuid.New(), fifo: f, buf: buf}
}

func (s *MarkedSink) lockWriting() {
	switch s.state {
	case Unused:
		s.state = Writing
		s.fifo.RegisterWriter()
	case Writing:
	default:
		panic(ErrRoleLocked)
	}
}

// Write appends p to the in-flight buffer, performing an overflow
// (transferring the full buffer to the FIFO and adopting a fresh one) as
// many times as needed when a committed region (Mark() > 0) has freed room.
// If the write cannot fit even in a fresh buffer and nothing is committed
// yet to overflow past, it returns ErrOversizedMessage without touching the
// in-flight buffer's committed region.
func (s *MarkedSink) Write(p []byte) (int, error) {
	s.lockWriting()
	if s.closed {
		return 0, ErrClosed
	}

	total := 0
	for len(p) > 0 {
		room := s.buf.PRemainder()
		if len(p) <= room {
			n := s.buf.Write(p)
			total += n
			p = p[n:]
			continue
		}
		if s.buf.Mark() > 0 {
			s.overflow()
			continue
		}
		return total, ErrOversizedMessage
	}
	return total, nil
}

// Mark commits everything written since the previous Mark as one logical
// region. If flush is set, or the region just closed is at least as large
// as the buffer's remaining writable space, it immediately overflows to the
// FIFO so the committed region doesn't sit idle behind a slow producer.
func (s *MarkedSink) Mark(flush bool) int {
	s.lockWriting()
	n := s.buf.SetMark()
	if flush || (n > 0 && n >= s.buf.PRemainder()) {
		s.overflow()
	}
	return n
}

// Flush is equivalent to Mark(true).
func (s *MarkedSink) Flush() int {
	return s.Mark(true)
}

// FlushUnmarked forces an implicit final Mark over any bytes written since
// the last Mark, then overflows. Call this before Close to keep an
// in-progress, not-yet-marked tail instead of losing it — Close itself
// discards the uncommitted tail.
func (s *MarkedSink) FlushUnmarked() int {
	return s.Mark(true)
}

// overflow hands the in-flight buffer to the FIFO and adopts a fresh one,
// carrying forward any uncommitted tail so no logical region is split
// across two FIFO entries.
func (s *MarkedSink) overflow(trigger ...byte) {
	next, _ := s.fifo.AcquireBuffer()

	tail := s.buf.TailBytes()
	if len(tail) > 0 {
		if n := next.Write(tail); n < len(tail) {
			panic(fmt.Sprintf("stream: overflow tail of %d bytes does not fit a fresh buffer of capacity %d", len(tail), next.Capacity()))
		}
	}
	s.prevBytes += int64(s.buf.Mark())
	s.buf.Clear(s.buf.Mark())

	old := s.buf
	s.fifo.Push(&old, 0)
	s.buf = next

	if len(trigger) > 0 {
		s.buf.Write(trigger)
	}
}

// Position reports the total number of committed bytes this sink has
// produced: those in every buffer it has handed off plus those committed in
// the in-flight buffer.
func (s *MarkedSink) Position() int64 {
	return s.prevBytes + int64(s.buf.Mark())
}

// Close discards any uncommitted tail (bytes written since the last Mark —
// see FlushUnmarked for the opt-in alternative), hands off the in-flight
// buffer if it still holds committed content, otherwise returns it directly
// to the pool, and deregisters as a writer.
func (s *MarkedSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.state != Writing {
		if s.buf != nil {
			s.fifo.ReturnBuffer(s.buf)
			s.buf = nil
		}
		return nil
	}

	s.buf.Clear(s.buf.Mark())
	if s.buf.Size() > 0 {
		b := s.buf
		s.fifo.Push(&b, 0)
	} else {
		s.fifo.ReturnBuffer(s.buf)
	}
	s.buf = nil
	s.fifo.DeregisterWriter()
	return nil
}
