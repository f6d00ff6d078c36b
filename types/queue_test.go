package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()

	for i := 0; i < 100; i++ {
		q.Add(i)
	}

	require.Equal(t, 100, q.Length())
	require.Equal(t, 99, q.Get(-1))

	for i := 0; i < 100; i++ {
		v, ok := q.Remove()
		require.True(t, ok)
		require.Equal(t, i, v)
	}

	_, ok := q.Remove()
	require.False(t, ok)
	require.Equal(t, 0, q.Length())
}

func TestQueuePushFront(t *testing.T) {
	q := NewQueue[string]()

	q.Add("b")
	q.Add("c")
	q.PushFront("a")

	v, ok := q.Peek()
	require.True(t, ok)
	require.Equal(t, "a", v)

	var res []string
	for q.Length() > 0 {
		v, _ = q.Remove()
		res = append(res, v)
	}

	require.Equal(t, []string{"a", "b", "c"}, res)
}

func TestQueueWrapAround(t *testing.T) {
	q := NewQueue[int]()

	// move head around the ring several times without growing
	for i := 0; i < 64; i++ {
		q.Add(i)
		v, ok := q.Remove()
		require.True(t, ok)
		require.Equal(t, i, v)
	}

	for i := 0; i < 40; i++ {
		q.PushFront(i)
	}

	for i := 39; i >= 0; i-- {
		v, _ := q.Remove()
		require.Equal(t, i, v)
	}

	q.Add(1)
	q.Clear()
	require.Equal(t, 0, q.Length())
}
