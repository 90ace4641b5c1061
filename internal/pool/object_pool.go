// Package pool 提供基于 sync.Pool 的泛型对象池。
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// MaxPooledBufferSize 超过该容量的缓冲区不回收，避免个别大输出长期占用内存
const MaxPooledBufferSize = 1 << 20

// Pool 泛型对象池
type Pool[T any] struct {
	pool  sync.Pool
	reset func(*T)
	keep  func(T) bool

	gets    atomic.Int64
	puts    atomic.Int64
	news    atomic.Int64
	dropped atomic.Int64
}

// NewPool 创建对象池；resetFunc 在放回前调用，可为 nil
func NewPool[T any](newFunc func() T, resetFunc func(*T)) *Pool[T] {
	p := &Pool[T]{reset: resetFunc}
	p.pool.New = func() any {
		p.news.Add(1)
		return newFunc()
	}
	return p
}

// WithKeep 设置回收条件，返回 false 的对象直接丢弃
func (p *Pool[T]) WithKeep(keep func(T) bool) *Pool[T] {
	p.keep = keep
	return p
}

// Get 取出一个对象
func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	return p.pool.Get().(T)
}

// Put 重置并放回对象
func (p *Pool[T]) Put(obj T) {
	p.puts.Add(1)
	if p.keep != nil && !p.keep(obj) {
		p.dropped.Add(1)
		return
	}
	if p.reset != nil {
		p.reset(&obj)
	}
	p.pool.Put(obj)
}

// Stats 返回统计信息
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Gets:    p.gets.Load(),
		Puts:    p.puts.Load(),
		News:    p.news.Load(),
		Dropped: p.dropped.Load(),
	}
}

// PoolStats 对象池统计
type PoolStats struct {
	Gets    int64 `json:"gets"`
	Puts    int64 `json:"puts"`
	News    int64 `json:"news"`
	Dropped int64 `json:"dropped"`
}

// HitRate 复用率
func (s PoolStats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}

// ByteBufferPool 供外部进程输出捕获使用的字节缓冲池
var ByteBufferPool = NewPool(
	func() *bytes.Buffer {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
	func(b **bytes.Buffer) {
		(*b).Reset()
	},
).WithKeep(func(b *bytes.Buffer) bool {
	return b.Cap() <= MaxPooledBufferSize
})
