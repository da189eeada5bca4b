package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPool(t *testing.T) {
	t.Run("Get and Put", func(t *testing.T) {
		pool := NewBufferPool(0)
		require.Equal(t, initialPoolSize, len(pool.items), "Pool should be pre-warmed")

		buf := pool.Get()
		require.NotNil(t, buf)
		require.Equal(t, initialPoolSize-1, len(pool.items))

		buf.WriteString("hello world")
		assert.Equal(t, "hello world", buf.String())

		pool.Put(buf)
		require.Equal(t, initialPoolSize, len(pool.items))

		buf2 := pool.Get()
		assert.Equal(t, 0, buf2.Len(), "Reused buffer should be reset")
	})

	t.Run("Get more than pool size", func(t *testing.T) {
		pool := NewBufferPool(0)
		for i := 0; i < initialPoolSize; i++ {
			pool.Get()
		}
		require.Empty(t, pool.items)

		newBuf := pool.Get()
		require.NotNil(t, newBuf)
		hits, misses, created, _ := pool.GetMetrics()
		assert.Equal(t, uint64(initialPoolSize), hits)
		assert.Equal(t, uint64(1), misses)
		assert.Equal(t, uint64(initialPoolSize+1), created)

		pool.Put(newBuf)
		require.Equal(t, 1, len(pool.items))
	})

	t.Run("With Initial Capacity", func(t *testing.T) {
		pool := NewBufferPool(128)
		buf := pool.Get()
		assert.Equal(t, 0, buf.Len())
		assert.GreaterOrEqual(t, buf.Cap(), 128)
	})

	t.Run("Oversized buffers are dropped", func(t *testing.T) {
		pool := NewBufferPool(0)
		pool.maxRetained = 16
		buf := pool.Get()
		buf.Write(make([]byte, 64))
		before := len(pool.items)
		pool.Put(buf)
		assert.Equal(t, before, len(pool.items))
		assert.Equal(t, uint64(1), pool.dropped.Load())
	})

	t.Run("Concurrent Access", func(t *testing.T) {
		pool := NewBufferPool(128)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					buf := pool.Get()
					buf.WriteString("x")
					pool.Put(buf)
				}
			}()
		}
		wg.Wait()
		_, _, _, size := pool.GetMetrics()
		assert.Equal(t, int64(len(pool.items)), size)
	})
}
