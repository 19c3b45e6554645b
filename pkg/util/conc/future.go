package conc

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrPanicked 任务执行时发生 panic
var ErrPanicked = errors.New("conc: task panicked")

// Future 表示一个异步任务的结果
type Future[T any] struct {
	ch    chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{ch: make(chan struct{})}
}

// Inner 返回完成信号 channel，任务结束后关闭
func (f *Future[T]) Inner() <-chan struct{} {
	return f.ch
}

// Done 任务是否已结束
func (f *Future[T]) Done() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

// Await 阻塞直到任务结束
func (f *Future[T]) Await() (T, error) {
	<-f.ch
	return f.value, f.err
}

// Value 阻塞获取结果值
func (f *Future[T]) Value() T {
	<-f.ch
	return f.value
}

// Err 阻塞获取错误
func (f *Future[T]) Err() error {
	<-f.ch
	return f.err
}

func (f *Future[T]) run(fn func() (T, error)) {
	defer close(f.ch)
	defer func() {
		if r := recover(); r != nil {
			f.err = errors.Wrap(ErrPanicked, fmt.Sprint(r))
		}
	}()
	f.value, f.err = fn()
}

// Go 在新的 goroutine 中执行 fn，用于长生命周期的后台循环
func Go[T any](fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	go f.run(fn)
	return f
}

// AwaitAll 等待所有 future 结束，返回第一个错误
func AwaitAll[T any](futures ...*Future[T]) error {
	var first error
	for _, f := range futures {
		if err := f.Err(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
