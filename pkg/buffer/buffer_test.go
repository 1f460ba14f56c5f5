package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/errors"
)

func TestRing_FIFO(t *testing.T) {
	r, err := New[int](4)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, r.Write(i))
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 4, r.Cap())

	v, ok := r.Read()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []int{2, 3}, r.ReadBatch(10))

	_, ok = r.Read()
	assert.False(t, ok)
	assert.Nil(t, r.ReadBatch(5))
}

func TestRing_InvalidCapacity(t *testing.T) {
	_, err := New[int](0)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestRing_DropOldest(t *testing.T) {
	var dropped []int
	r, err := New[int](2, WithDropCallback[int](func(v int) { dropped = append(dropped, v) }))
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		require.NoError(t, r.Write(i))
	}
	assert.Equal(t, []int{1, 2}, dropped)
	assert.Equal(t, []int{3, 4}, r.ReadBatch(10))

	stats := r.Stats()
	assert.Equal(t, uint64(4), stats.Writes)
	assert.Equal(t, uint64(2), stats.Reads)
	assert.Equal(t, uint64(2), stats.Drops)
	assert.Equal(t, 0, stats.Size)
}

func TestRing_DropNewest(t *testing.T) {
	var dropped []int
	r, err := New[int](2,
		WithOverflowPolicy[int](DropNewest),
		WithDropCallback[int](func(v int) { dropped = append(dropped, v) }))
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		require.NoError(t, r.Write(i))
	}
	assert.Equal(t, []int{3, 4}, dropped)
	assert.Equal(t, []int{1, 2}, r.ReadBatch(10))
}

func TestRing_ReadySignal(t *testing.T) {
	r, err := New[int](8)
	require.NoError(t, err)

	select {
	case <-r.Ready():
		t.Fatal("ready before any write")
	default:
	}

	require.NoError(t, r.Write(1))
	require.NoError(t, r.Write(2))
	<-r.Ready()
	assert.Equal(t, []int{1}, r.ReadBatch(1))

	// items left after a partial read re-arm the signal
	<-r.Ready()
	assert.Equal(t, []int{2}, r.ReadBatch(1))
}

func TestRing_Close(t *testing.T) {
	r, err := New[string](4)
	require.NoError(t, err)
	require.NoError(t, r.Write("a"))

	r.Close()
	r.Close()
	assert.True(t, r.Closed())
	assert.ErrorIs(t, r.Write("b"), errors.ErrShuttingDown)

	// a signal pending from the write is still delivered before the close
	assert.Equal(t, []string{"a"}, r.ReadBatch(4))
	open := true
	for open {
		_, open = <-r.Ready()
	}
	assert.False(t, open)
}

func TestRing_ConcurrentWriters(t *testing.T) {
	r, err := New[int](1000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := range 100 {
				_ = r.Write(base*100 + i)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 400, r.Len())
	assert.Len(t, r.ReadBatch(1000), 400)
}
