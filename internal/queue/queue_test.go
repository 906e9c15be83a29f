package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	q := New[int](8)
	for i := range 5 {
		q.Put(i)
	}
	for i := range 5 {
		v, ok := q.Get(context.Background())
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestDropOldest(t *testing.T) {
	q := New[int](3)
	for i := range 5 {
		q.Put(i)
	}
	assert.Equal(t, uint64(2), q.Dropped())
	assert.Equal(t, 3, q.Len())

	// The oldest two were shed; 2, 3, 4 remain.
	for want := 2; want <= 4; want++ {
		v, ok := q.Get(context.Background())
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
}

func TestGetBlocksUntilPut(t *testing.T) {
	q := New[string](1)
	done := make(chan string, 1)
	go func() {
		v, _ := q.Get(context.Background())
		done <- v
	}()
	time.Sleep(10 * time.Millisecond)
	q.Put("hello")
	select {
	case v := <-done:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("Get did not wake up")
	}
}

func TestGetHonorsContext(t *testing.T) {
	q := New[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := q.Get(ctx)
	assert.False(t, ok)
}

func TestCloseDrainsPending(t *testing.T) {
	q := New[int](4)
	q.Put(1)
	q.Put(2)
	q.Close()
	q.Put(3) // ignored after close

	v, ok := q.Get(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = q.Get(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = q.Get(context.Background())
	assert.False(t, ok)
}
