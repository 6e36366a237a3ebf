package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robegan21/ParallelStreams/core/buffer"
)

func TestBufferPool_AcquireAllocatesWhenEmpty(t *testing.T) {
	p := New(4, 1024)
	b, err := p.Acquire(0, true)
	require.NoError(t, err)
	assert.Equal(t, 1024, b.Capacity())
	assert.EqualValues(t, 1, p.AllocCount())
}

func TestBufferPool_AcquireExhaustedReturnsError(t *testing.T) {
	p := New(4, 1024)
	_, err := p.Acquire(0, false)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestBufferPool_ReleaseThenAcquireRecycles(t *testing.T) {
	p := New(4, 1024)
	b, _ := p.Acquire(0, true)
	b.Write([]byte("hello"))
	ok := p.Release(b, 0, false)
	require.True(t, ok)
	assert.EqualValues(t, 1, p.AllocCount())

	b2, err := p.Acquire(0, true)
	require.NoError(t, err)
	assert.True(t, b2.Empty())
	assert.EqualValues(t, 1, p.AllocCount()) // recycled, no second fabrication

	require.True(t, p.Release(b2, 0, false))
	p.Drain()
	assert.EqualValues(t, 0, p.Outstanding())
}

func TestBufferPool_AcquireResizesStaleBuffer(t *testing.T) {
	p := New(4, 1024)
	b, _ := p.Acquire(0, true)
	p.Release(b, 0, false)

	p.SetBufferSize(4096)
	b2, err := p.Acquire(0, true)
	require.NoError(t, err)
	assert.Equal(t, 4096, b2.Capacity())
}

func TestBufferPool_SetBufferSizeMonotonic(t *testing.T) {
	p := New(4, 1024)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); p.SetBufferSize(2048) }()
	go func() { defer wg.Done(); p.SetBufferSize(4096) }()
	wg.Wait()
	assert.Equal(t, 4096, p.BufferSize())

	p.SetBufferSize(1024) // smaller, ignored
	assert.Equal(t, 4096, p.BufferSize())
}

func TestBufferPool_ReleaseGrowsWhenFull(t *testing.T) {
	p := New(2, 64)
	bufs := make([]*buffer.Buffer, 0, 3)
	for i := 0; i < 3; i++ {
		b, err := p.Acquire(0, true)
		require.NoError(t, err)
		bufs = append(bufs, b)
	}
	for _, b := range bufs {
		ok := p.Release(b, 0, true)
		require.True(t, ok)
	}
	p.Drain()
	assert.EqualValues(t, 0, p.Outstanding())
}

func TestBufferPool_ReleaseWithoutGrowthFreesOnFull(t *testing.T) {
	p := New(1, 64)
	b1, _ := p.Acquire(0, true)
	b2, _ := p.Acquire(0, true)

	require.True(t, p.Release(b1, 0, false))
	ok := p.Release(b2, 0, false)
	assert.False(t, ok)
	assert.EqualValues(t, 1, p.DeallocCount())
}

func TestBufferPool_AcquireWithWaitTimesOut(t *testing.T) {
	p := New(1, 64)
	start := time.Now()
	_, err := p.Acquire(20*time.Millisecond, false)
	elapsed := time.Since(start)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.GreaterOrEqual(t, elapsed, 15*time.Millisecond)
}
