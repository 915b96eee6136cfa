package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidCapacity(t *testing.T) {
	_, err := New[int](0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestGetPut(t *testing.T) {
	c, err := New[string](2)
	require.NoError(t, err)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Put("a", "1")
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", got)

	c.Put("a", "2")
	got, _ = c.Get("a")
	assert.Equal(t, "2", got)
	assert.Equal(t, 1, c.Len())
}

func TestEviction_LeastRecentlyUsed(t *testing.T) {
	c, err := New[int](2)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)

	// Touch a so b becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestGetOrCompute(t *testing.T) {
	c, err := New[int](4)
	require.NoError(t, err)

	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, nil
	}

	got, err := c.GetOrCompute("k", compute)
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	got, err = c.GetOrCompute("k", compute)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
}

func TestGetOrCompute_ErrorsNotCached(t *testing.T) {
	c, err := New[int](4)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = c.GetOrCompute("k", func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	got, err := c.GetOrCompute("k", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestGetOrCompute_CoalescesConcurrentCallers(t *testing.T) {
	c, err := New[int](4)
	require.NoError(t, err)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make([]int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			got, err := c.GetOrCompute("k", compute)
			assert.NoError(t, err)
			results[n] = got
		}(i)
	}

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, got := range results {
		assert.Equal(t, 42, got)
	}
}

func TestInvalidateAndClear(t *testing.T) {
	c, err := New[int](4)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)

	assert.True(t, c.Invalidate("a"))
	assert.False(t, c.Invalidate("a"))
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("b")
	assert.False(t, ok)
}

func TestQueryKey(t *testing.T) {
	t.Run("filter order is irrelevant", func(t *testing.T) {
		assert.Equal(t,
			QueryKey("cats", 5, []int32{2, 1}),
			QueryKey("cats", 5, []int32{1, 2}))
	})

	t.Run("distinct requests get distinct keys", func(t *testing.T) {
		base := QueryKey("cats", 5, nil)
		assert.NotEqual(t, base, QueryKey("dogs", 5, nil))
		assert.NotEqual(t, base, QueryKey("cats", 10, nil))
		assert.NotEqual(t, base, QueryKey("cats", 5, []int32{1}))
	})
}
