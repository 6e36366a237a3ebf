// File: stream/source.go
// MarkedSource is the consumer-side stream endpoint: a single-goroutine,
// read-only adapter over one in-flight buffer.Buffer popped from a
// fifo.BufferFifo. It is the read-only counterpart of marked_fifo_streambuf
// (original_source/marked_iostream.hpp).
package stream

import (
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/robegan21/ParallelStreams/core/buffer"
	"github.com/robegan21/ParallelStreams/fifo"
)

// pollInterval is how often a blocking IsReady retries underflow while
// waiting for the FIFO to either deliver a buffer or reach EOF.
const pollInterval = 50 * time.Millisecond

// MarkedSource is a single-consumer stream bound to one BufferFifo.
type MarkedSource struct {
	ID uuid.UUID

	fifo  *fifo.BufferFifo
	buf   *buffer.Buffer
	state EndpointState

	prevBytes int64
	closed    bool
}

// NewSource acquires an initial (empty) buffer from f's pool and returns a
// fresh, as-yet-unused source. The source does not register as a reader
// with f until its first Read.
func NewSource(f *fifo.BufferFifo) *MarkedSource {
	buf, _ := f.AcquireBuffer()
	return &MarkedSource{ID: uuid.New(), fifo: f, buf: buf}
}

func (s *MarkedSource) lockReading() {
	switch s.state {
	case Unused:
		s.state = Reading
		s.fifo.RegisterReader()
	case Reading:
	default:
		panic(ErrRoleLocked)
	}
}

// underflow attempts a single non-blocking pop from the FIFO. On success it
// returns the exhausted in-flight buffer to the pool and adopts the popped
// one. It reports whether a new buffer was adopted.
func (s *MarkedSource) underflow() bool {
	next, ok := s.fifo.Pop(0)
	if !ok {
		return false
	}
	s.prevBytes += int64(s.buf.Size())
	s.fifo.ReturnBuffer(s.buf)
	s.buf = next
	return true
}

// Read copies from the in-flight buffer into p, triggering one underflow
// first if the buffer is exhausted. It never crosses a second buffer
// boundary within a single call. It returns (0, nil) if the FIFO is
// momentarily empty but not yet at EOF — callers that want to block should
// use IsReady(true) first. It returns io.EOF once the FIFO has reached its
// terminal drained state.
func (s *MarkedSource) Read(p []byte) (int, error) {
	s.lockReading()
	if s.closed {
		return 0, ErrClosed
	}
	if s.buf.GRemainder() == 0 {
		if !s.underflow() {
			if s.fifo.IsEOF() {
				return 0, io.EOF
			}
			return 0, nil
		}
	}
	return s.buf.Read(p), nil
}

// Available reports bytes immediately readable from the in-flight buffer
// without triggering an underflow.
func (s *MarkedSource) Available() int {
	return s.buf.GRemainder()
}

// IsReady reports whether data is available, triggering an underflow
// attempt if the in-flight buffer is currently exhausted. If block is true
// and no data is available yet, it waits on the FIFO's push notifications
// in pollInterval increments, retrying underflow on each wakeup, until data
// arrives or EOF is observed.
func (s *MarkedSource) IsReady(block bool) bool {
	s.lockReading()
	if s.buf.GRemainder() > 0 {
		return true
	}
	if s.underflow() {
		return s.buf.GRemainder() > 0
	}
	if !block {
		return false
	}
	for {
		if s.fifo.IsEOF() {
			return false
		}
		s.fifo.WaitForPush(pollInterval)
		if s.underflow() {
			return s.buf.GRemainder() > 0
		}
	}
}

// Sync forces an underflow attempt if the in-flight buffer is exhausted.
func (s *MarkedSource) Sync() {
	s.lockReading()
	if s.buf.GRemainder() == 0 {
		s.underflow()
	}
}

// Position reports the total number of bytes this source has consumed
// across every buffer it has adopted, including the current one.
func (s *MarkedSource) Position() int64 {
	return s.prevBytes + int64(s.buf.Size()-s.buf.GRemainder())
}

// Close returns the in-flight buffer to the pool and deregisters as a
// reader.
func (s *MarkedSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.buf != nil {
		s.fifo.ReturnBuffer(s.buf)
		s.buf = nil
	}
	if s.state == Reading {
		s.fifo.DeregisterReader()
	}
	return nil
}
