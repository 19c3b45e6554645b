// Package bytebuff 提供基于 valyala/bytebufferpool 的缓冲池，用于编码出站帧。
package bytebuff

import (
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// Pool 带统计的 ByteBuffer 池
type Pool struct {
	pool bytebufferpool.Pool

	gets atomic.Uint64
	puts atomic.Uint64
}

var defaultPool = &Pool{}

// Get 获取一个已清空的 ByteBuffer
func (p *Pool) Get() *bytebufferpool.ByteBuffer {
	p.gets.Add(1)
	return p.pool.Get()
}

// Put 归还 ByteBuffer，调用方之后不得再使用 buf.B
func (p *Pool) Put(buf *bytebufferpool.ByteBuffer) {
	if buf == nil {
		return
	}
	p.puts.Add(1)
	p.pool.Put(buf)
}

// Stats 返回 Get/Put 次数，两者之差即未归还的缓冲数
func (p *Pool) Stats() (gets, puts uint64) {
	return p.gets.Load(), p.puts.Load()
}

// Get 从默认池获取
func Get() *bytebufferpool.ByteBuffer {
	return defaultPool.Get()
}

// Put 归还到默认池
func Put(buf *bytebufferpool.ByteBuffer) {
	defaultPool.Put(buf)
}

// Stats 默认池统计
func Stats() (gets, puts uint64) {
	return defaultPool.Stats()
}
