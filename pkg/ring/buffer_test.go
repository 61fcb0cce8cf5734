package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferCapacity(t *testing.T) {
	testCases := []struct {
		size int
		cap  int
	}{
		{0, 1},
		{1, 1},
		{3, 3},
		{4, 7},
		{7, 7},
		{32, 63},
	}
	for _, tc := range testCases {
		b := NewBuffer(tc.size)
		require.Equal(t, tc.cap, b.Cap(), "size %d", tc.size)
		require.True(t, b.Empty())
		require.Equal(t, tc.cap, b.Available())
	}
}

func TestBufferEnqueueDequeue(t *testing.T) {
	b := NewBuffer(3)
	require.True(t, b.Enqueue(1))
	require.True(t, b.Enqueue(2))
	require.True(t, b.Enqueue(3))
	require.True(t, b.Full())
	require.False(t, b.Enqueue(4))
	require.Equal(t, 3, b.Count())
	require.Equal(t, 0, b.Available())

	v, ok := b.Dequeue()
	require.True(t, ok)
	require.Equal(t, byte(1), v)
	require.True(t, b.Enqueue(4))

	out := make([]byte, 8)
	n := b.DequeueSlice(out)
	require.Equal(t, []byte{2, 3, 4}, out[:n])
	require.True(t, b.Empty())
	_, ok = b.Dequeue()
	require.False(t, ok)
}

func TestBufferEnqueueSliceAllOrNothing(t *testing.T) {
	b := NewBuffer(3)
	require.True(t, b.EnqueueSlice([]byte{1, 2}))
	require.False(t, b.EnqueueSlice([]byte{3, 4}))
	require.Equal(t, 2, b.Count())
	require.True(t, b.EnqueueSlice([]byte{3}))
	require.True(t, b.Full())
}

func TestBufferWrapAround(t *testing.T) {
	b := NewBuffer(7)
	for round := 0; round < 5; round++ {
		require.True(t, b.EnqueueSlice([]byte{1, 2, 3, 4, 5}))
		out := make([]byte, 5)
		require.Equal(t, 5, b.DequeueSlice(out))
		require.Equal(t, []byte{1, 2, 3, 4, 5}, out)
	}
	require.True(t, b.Empty())
}

func TestBufferPeekSearchRemove(t *testing.T) {
	b := NewBuffer(7)
	// Start past the middle so the contents wrap.
	b.EnqueueSlice([]byte{0, 0, 0, 0, 0})
	b.Remove(5)
	b.EnqueueSlice([]byte{9, 0x0d, 7, 0x3a, 0x0d})

	v, ok := b.Peek(1)
	require.True(t, ok)
	require.Equal(t, byte(0x0d), v)
	_, ok = b.Peek(5)
	require.False(t, ok)
	_, ok = b.Peek(-1)
	require.False(t, ok)

	require.Equal(t, 1, b.Search(0x0d))
	require.Equal(t, 4, b.SearchFrom(0x0d, 2))
	require.Equal(t, 3, b.Search(0x3a))
	require.Equal(t, NotFound, b.Search(0x3b))
	require.Equal(t, NotFound, b.SearchFrom(9, 1))

	require.False(t, b.Remove(6))
	require.Equal(t, 5, b.Count())
	require.True(t, b.Remove(3))
	v, _ = b.Peek(0)
	require.Equal(t, byte(0x3a), v)

	b.Clear()
	require.True(t, b.Empty())
	require.Equal(t, NotFound, b.Search(0x3a))
}
