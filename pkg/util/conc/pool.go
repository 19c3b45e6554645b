package conc

import (
	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
)

// Pool 基于 ants 的有界协程池，适合短任务
type Pool[T any] struct {
	inner *ants.Pool
}

// NewPool 创建协程池，size <= 0 时不限制容量
func NewPool[T any](size int, opts ...ants.Option) (*Pool[T], error) {
	p, err := ants.NewPool(size, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "conc: create ants pool")
	}
	return &Pool[T]{inner: p}, nil
}

// Submit 提交任务；池已关闭或已满 (非阻塞模式) 时 future 直接带错误完成
func (p *Pool[T]) Submit(fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	if err := p.inner.Submit(func() { f.run(fn) }); err != nil {
		f.err = errors.Wrap(err, "conc: submit")
		close(f.ch)
	}
	return f
}

// Running 正在运行的任务数
func (p *Pool[T]) Running() int {
	return p.inner.Running()
}

// Cap 池容量
func (p *Pool[T]) Cap() int {
	return p.inner.Cap()
}

// Release 关闭协程池
func (p *Pool[T]) Release() {
	p.inner.Release()
}
