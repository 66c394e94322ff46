// Package pool provides object pooling using sync.Pool.
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// maxPooledBufferCap caps the capacity of buffers kept for reuse so that a
// single huge statement does not pin its memory forever.
const maxPooledBufferCap = 64 * 1024

// Pool is a generic object pool.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(*T) bool

	// Metrics
	gets    atomic.Int64
	puts    atomic.Int64
	news    atomic.Int64
	dropped atomic.Int64
}

// NewPool creates a new object pool. resetFunc prepares an object for reuse
// and reports whether it should be kept; nil keeps everything as is.
func NewPool[T any](newFunc func() T, resetFunc func(*T) bool) *Pool[T] {
	p := &Pool[T]{
		reset: resetFunc,
	}
	p.pool.New = func() any {
		p.news.Add(1)
		return newFunc()
	}
	return p
}

// Get retrieves an object from the pool.
func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool.
func (p *Pool[T]) Put(obj T) {
	p.puts.Add(1)
	if p.reset != nil && !p.reset(&obj) {
		p.dropped.Add(1)
		return
	}
	p.pool.Put(obj)
}

// Stats returns pool statistics.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Gets:    p.gets.Load(),
		Puts:    p.puts.Load(),
		News:    p.news.Load(),
		Dropped: p.dropped.Load(),
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Gets    int64 `json:"gets"`
	Puts    int64 `json:"puts"`
	News    int64 `json:"news"`
	Dropped int64 `json:"dropped"`
}

// HitRate returns the reuse rate.
func (s PoolStats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}

// BufferPool provides pooled byte buffers for SQL rendering.
var BufferPool = NewPool(
	func() *bytes.Buffer {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
	func(b **bytes.Buffer) bool {
		if (*b).Cap() > maxPooledBufferCap {
			return false
		}
		(*b).Reset()
		return true
	},
)

// Render runs fn against a pooled buffer and returns a copy of its contents.
func Render(fn func(b *bytes.Buffer) error) (string, error) {
	b := BufferPool.Get()
	defer BufferPool.Put(b)
	if err := fn(b); err != nil {
		return "", err
	}
	return b.String(), nil
}
