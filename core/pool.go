package core

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// bufferPool is a mutex-protected free list of buffers. Unlike sync.Pool its
// contents survive garbage collection, so repeated bundle exports and zstd
// compressions reuse the same buffers. Buffers that grew past maxRetained are
// dropped on Put so one huge bundle does not pin memory for the lifetime of
// the process.
type bufferPool struct {
	mu          sync.Mutex
	items       []*bytes.Buffer
	newFunc     func() *bytes.Buffer
	maxRetained int

	// Metrics
	hits        atomic.Uint64 // Number of times a buffer was successfully retrieved from the pool.
	misses      atomic.Uint64 // Number of times a buffer was requested but the pool was empty.
	created     atomic.Uint64 // Total number of new buffers created.
	dropped     atomic.Uint64 // Buffers discarded on Put because they were too large.
	currentSize atomic.Int64  // Current number of items in the pool.
}

const (
	// DefaultBufferSize is the initial capacity of pooled buffers.
	DefaultBufferSize = 32 * 1024
	// DefaultMaxRetainedBufferSize is the largest buffer Put keeps.
	DefaultMaxRetainedBufferSize = 8 * 1024 * 1024
	initialPoolSize              = 8
)

var BufferPool = NewBufferPool(DefaultBufferSize)

// NewBufferPool creates a new buffer pool.
// initialCapacity is the pre-allocated capacity for each new buffer.
func NewBufferPool(initialCapacity ...int) *bufferPool {
	capacity := 0
	if len(initialCapacity) > 0 && initialCapacity[0] > 0 {
		capacity = initialCapacity[0]
	}
	bp := &bufferPool{
		items:       make([]*bytes.Buffer, 0, initialPoolSize),
		maxRetained: DefaultMaxRetainedBufferSize,
	}
	bp.newFunc = func() *bytes.Buffer {
		bp.created.Add(1)
		return bytes.NewBuffer(make([]byte, 0, capacity))
	}

	for i := 0; i < initialPoolSize; i++ {
		bp.items = append(bp.items, bp.newFunc())
	}
	bp.currentSize.Store(int64(initialPoolSize))

	return bp
}

// Get retrieves a buffer from the pool. If the pool is empty, it creates a new one.
func (bp *bufferPool) Get() *bytes.Buffer {
	bp.mu.Lock()
	if len(bp.items) == 0 {
		bp.mu.Unlock()
		bp.misses.Add(1)
		return bp.newFunc()
	}
	bp.hits.Add(1)
	bp.currentSize.Add(-1)
	item := bp.items[len(bp.items)-1]
	bp.items = bp.items[:len(bp.items)-1]
	bp.mu.Unlock()
	return item
}

// GetMetrics returns the current metrics for the pool.
func (bp *bufferPool) GetMetrics() (hits, misses, created uint64, currentSize int64) {
	return bp.hits.Load(), bp.misses.Load(), bp.created.Load(), bp.currentSize.Load()
}

// Put returns a buffer to the pool.
func (bp *bufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if buf.Cap() > bp.maxRetained {
		bp.dropped.Add(1)
		return
	}
	buf.Reset()
	bp.mu.Lock()
	bp.items = append(bp.items, buf)
	bp.currentSize.Add(1)
	bp.mu.Unlock()
}
