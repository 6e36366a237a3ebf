package stream

import (
	"encoding/binary"
	"io"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robegan21/ParallelStreams/fifo"
)

// readExact blocks (via IsReady) until n bytes have been consumed from src,
// or returns io.EOF if the pipeline drains before that happens.
func readExact(src *MarkedSource, n int) ([]byte, error) {
	out := make([]byte, n)
	total := 0
	for total < n {
		if !src.IsReady(true) {
			return nil, io.EOF
		}
		read, err := src.Read(out[total:])
		if err != nil && err != io.EOF {
			return nil, err
		}
		total += read
		if read == 0 && err == io.EOF {
			return nil, io.EOF
		}
	}
	return out, nil
}

// Scenario 1: single sink, single source, 1000 x 500-byte messages.
func TestPipeline_SingleSinkSingleSource(t *testing.T) {
	f := fifo.New(8192, 4)
	sink := NewSink(f)
	src := NewSource(f)

	msg := make([]byte, 500)
	for i := range msg {
		msg[i] = byte('A' + i%26)
	}

	go func() {
		for i := 0; i < 1000; i++ {
			sink.Write(msg)
			sink.Mark(false)
		}
		sink.Close()
		f.SetEOF()
	}()

	count := 0
	for {
		got, err := readExact(src, 500)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, msg, got)
		count++
	}
	require.NoError(t, src.Close())

	assert.Equal(t, 1000, count)
	state := f.GetState()
	assert.GreaterOrEqual(t, state.Pushed, int64(math.Ceil(1000*500/8192.0)))
	assert.Equal(t, state.Pushed, state.Popped)
}

// Scenario 2: 2 sinks round-robin over 127 logical channels, 1 source.
func TestPipeline_MultiSinkRoundRobin(t *testing.T) {
	const channels = 127
	const cycles = 1000
	f := fifo.New(4096, 8)

	var inMessages int64
	var wg sync.WaitGroup
	for s := 0; s < 2; s++ {
		wg.Add(1)
		go func(sinkIdx int) {
			defer wg.Done()
			sink := NewSink(f)
			rng := rand.New(rand.NewSource(int64(sinkIdx) + 1))
			for c := 0; c < cycles; c++ {
				channel := uint16((c*2 + sinkIdx) % channels)
				size := rng.Intn(64) + 1 // avg ~32, truncated positive
				msg := make([]byte, 4+size)
				binary.BigEndian.PutUint16(msg[0:2], channel)
				binary.BigEndian.PutUint16(msg[2:4], uint16(size))
				for i := 4; i < len(msg); i++ {
					msg[i] = byte(channel)
				}
				sink.Write(msg)
				sink.Mark(false)
				atomic.AddInt64(&inMessages, 1)
			}
			sink.Close()
		}(s)
	}

	go func() {
		wg.Wait()
		f.SetEOF()
	}()

	src := NewSource(f)
	var outMessages int64
	for {
		hdr, err := readExact(src, 4)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		channel := binary.BigEndian.Uint16(hdr[0:2])
		size := binary.BigEndian.Uint16(hdr[2:4])

		payload, err := readExact(src, int(size))
		require.NoError(t, err)
		for _, b := range payload {
			assert.Equal(t, byte(channel), b)
		}
		outMessages++
	}
	require.NoError(t, src.Close())
	f.Shutdown()

	assert.Equal(t, inMessages, outMessages)
	assert.EqualValues(t, 0, f.Pool().Outstanding())
}

// Scenario 3: oversize message with no intervening mark.
func TestPipeline_OversizeMessageRejected(t *testing.T) {
	f := fifo.New(1024, 4)
	sink := NewSink(f)

	_, err := sink.Write(make([]byte, 2048))
	assert.ErrorIs(t, err, ErrOversizedMessage)
	assert.EqualValues(t, 0, f.GetState().Pushed)
}

// Scenario 4: backpressure under a pool smaller than the number of
// concurrent producers.
func TestPipeline_Backpressure(t *testing.T) {
	f := fifo.New(8192, 4)

	// Directly hold buffers outstanding to drive the pool past capacity,
	// and confirm the adaptive wait increases monotonically with it.
	var waits []time.Duration
	for i := 0; i < 12; i++ {
		_, err := f.AcquireBuffer()
		require.NoError(t, err)
		if i+1 > 4 {
			waits = append(waits, f.BackpressureWait())
		}
	}
	for i := 1; i < len(waits); i++ {
		assert.GreaterOrEqual(t, waits[i], waits[i-1])
	}
	assert.NotEmpty(t, waits)

	// Now drive real contention: 8 producers racing a single slow consumer.
	f2 := fifo.New(8192, 4)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink := NewSink(f2)
			msg := make([]byte, 256)
			for {
				select {
				case <-stop:
					sink.Close()
					return
				default:
				}
				sink.Write(msg)
				sink.Mark(true)
			}
		}()
	}

	src := NewSource(f2)
	drained := int64(0)
	go func() {
		for {
			_, err := readExact(src, 256)
			if err == io.EOF {
				return
			}
			atomic.AddInt64(&drained, 1)
			time.Sleep(2 * time.Millisecond) // deliberately slow
		}
	}()

	time.Sleep(150 * time.Millisecond)
	close(stop)
	wg.Wait()
	f2.SetEOF()

	assert.Eventually(t, func() bool {
		return f2.Pool().StackDelay() > 0
	}, time.Second, 10*time.Millisecond)
}

// Scenario 5: EOF is observed only after the queue is fully drained.
func TestPipeline_EOFObservedOnlyAfterDrain(t *testing.T) {
	f := fifo.New(1024, 4)
	sink := NewSink(f)
	sink.Write([]byte("final region"))
	sink.Mark(true)
	require.NoError(t, sink.Close())

	f.SetEOF()
	assert.False(t, f.Empty())  // the final region is still sitting unread in the queue
	assert.False(t, f.IsEOF())  // EOF is set but the queue hasn't drained yet

	src := NewSource(f)
	got, err := readExact(src, len("final region"))
	require.NoError(t, err)
	assert.Equal(t, "final region", string(got))

	assert.False(t, src.IsReady(false))
	assert.True(t, f.IsEOF())
	require.NoError(t, src.Close())
}

// Scenario 6: concurrent SetBufferSize calls converge to the larger value.
func TestPipeline_ConcurrentSetBufferSizeConverges(t *testing.T) {
	f := fifo.New(64, 4)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); f.SetBufferSize(2048) }()
	go func() { defer wg.Done(); f.SetBufferSize(4096) }()
	wg.Wait()
	assert.Equal(t, 4096, f.BufferSize())
}
