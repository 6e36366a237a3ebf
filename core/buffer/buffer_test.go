package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_WriteReadRoundTrip(t *testing.T) {
	b := New(64)
	n := b.Write([]byte("hello"))
	require.Equal(t, 5, n)
	assert.Equal(t, 5, b.Size())

	dst := make([]byte, 5)
	n = b.Read(dst)
	require.Equal(t, 5, n)
	assert.Equal(t, "hello", string(dst))
	assert.Equal(t, 0, b.GRemainder())
}

func TestBuffer_WriteNeverOverflows(t *testing.T) {
	b := New(4)
	n := b.Write([]byte("hello world"))
	assert.Equal(t, 4, n)
	assert.Equal(t, 0, b.PRemainder())
}

func TestBuffer_WriteExactlyPRemainderSucceeds(t *testing.T) {
	b := New(8)
	n := b.Write([]byte("12345678"))
	require.Equal(t, 8, n)
	assert.Equal(t, 0, b.PRemainder())
}

func TestBuffer_SetMarkNoBytesReturnsZero(t *testing.T) {
	b := New(16)
	b.Write([]byte("abcd"))
	delta := b.SetMark()
	assert.Equal(t, 4, delta)

	delta = b.SetMark()
	assert.Equal(t, 0, delta)
}

func TestBuffer_MarkRemainderTracksUncommittedTail(t *testing.T) {
	b := New(32)
	b.Write([]byte("abc"))
	b.SetMark()
	b.Write([]byte("de"))
	assert.Equal(t, 2, b.MarkRemainder())
	assert.Equal(t, "de", string(b.TailBytes()))
}

func TestBuffer_Clear(t *testing.T) {
	b := New(16)
	b.Write([]byte("abcdef"))
	b.SetMark()
	b.Write([]byte("gh"))

	b.Clear(4)
	assert.Equal(t, 4, b.GRemainder())
	assert.Equal(t, 4, b.Size())
	assert.Equal(t, 4, b.Mark())
}

func TestBuffer_ClearDefaultRewindsToEmpty(t *testing.T) {
	b := New(16)
	b.Write([]byte("abcd"))
	b.SetMark()
	b.Clear(0)
	assert.True(t, b.Empty())
}

func TestBuffer_ResizeRefusesShrinkBelowFilled(t *testing.T) {
	b := New(16)
	b.Write([]byte("abcdefgh"))
	err := b.Resize(4)
	require.Error(t, err)
	assert.Equal(t, 16, b.Capacity())
}

func TestBuffer_ResizeGrowsPreservingContent(t *testing.T) {
	b := New(8)
	b.Write([]byte("abcdefgh"))
	err := b.Resize(32)
	require.NoError(t, err)
	assert.Equal(t, 32, b.Capacity())
	assert.Equal(t, "abcdefgh", string(b.Bytes()))
}

func TestBuffer_Swap(t *testing.T) {
	a := New(8)
	a.Write([]byte("aaaa"))
	b := New(16)
	b.Write([]byte("bbbbbb"))

	a.Swap(b)
	assert.Equal(t, 16, a.Capacity())
	assert.Equal(t, "bbbbbb", string(a.Bytes()))
	assert.Equal(t, 8, b.Capacity())
	assert.Equal(t, "aaaa", string(b.Bytes()))
}

func TestBuffer_ClearPastPutPanics(t *testing.T) {
	b := New(16)
	b.Write([]byte("ab"))
	assert.Panics(t, func() {
		b.Clear(10)
	})
}

func TestBuffer_RecycledBufferIsEmpty(t *testing.T) {
	b := New(16)
	b.Write([]byte("abcdef"))
	b.SetMark()
	b.Clear(0)
	assert.Equal(t, 0, b.Mark())
	assert.Equal(t, 0, b.Size())
	assert.Equal(t, 0, b.GRemainder())
}
