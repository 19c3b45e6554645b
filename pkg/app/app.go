package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IntelLabs/networkgym/pkg/logger"
	"github.com/IntelLabs/networkgym/pkg/util/conc"
	"github.com/cockroachdb/errors"
)

var (
	ErrAppAlreadyRunning = errors.New("application is already running")
)

// Server 定义了服务接口（如监听端点、分发循环、HTTP 导出）
type Server interface {
	Start() error
	Stop() error
}

// Closer 定义了资源清理接口（如 Redis, DB, etcd）
type Closer interface {
	Close() error
}

// CloserFunc 函数式 Closer
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }

// BaseApp 管理服务的启动顺序、信号处理与资源回收
type BaseApp struct {
	opts    Options
	logger  logger.Logger
	servers []Server
	closers []Closer

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex

	started atomic.Bool
	closed  atomic.Bool
}

// NewBaseApp 创建一个新的 BaseApp 实例
func NewBaseApp(opts ...Option) *BaseApp {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	l := o.Logger
	if l == nil {
		l = logger.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &BaseApp{
		opts:   o,
		logger: l.Named(o.Name),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context 应用级 context，Shutdown 时取消
func (a *BaseApp) Context() context.Context {
	return a.ctx
}

// Logger 应用主日志对象
func (a *BaseApp) Logger() logger.Logger {
	return a.logger
}

// Run 按注册顺序启动服务并阻塞，直到收到信号或 Stop 被调用
func (a *BaseApp) Run() error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAppAlreadyRunning
	}

	info := GetInfo()
	fmt.Println(info.String())

	a.logger.Info("application starting",
		"name", a.opts.Name,
		"version", info.Version,
		"commit", info.GitCommit,
		"go_version", info.GoVersion,
		"id", a.opts.ID,
	)

	a.mu.Lock()
	servers := append([]Server(nil), a.servers...)
	a.mu.Unlock()

	for i, srv := range servers {
		if err := srv.Start(); err != nil {
			a.logger.Error("failed to start server", "index", i, "error", err)
			_ = a.Shutdown()
			return errors.Wrapf(err, "start server %d", i)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		a.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-a.ctx.Done():
		a.logger.Info("context cancelled, shutting down")
	}

	return a.Shutdown()
}

// Stop 请求 Run 退出
func (a *BaseApp) Stop() {
	a.cancel()
}

// Shutdown 并行停止所有服务，然后逆序关闭 Closer
func (a *BaseApp) Shutdown() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.cancel()
	a.logger.Info("application shutting down")

	futures := make([]*conc.Future[struct{}], 0, len(a.servers))
	for _, srv := range a.servers {
		s := srv
		futures = append(futures, conc.Go(func() (struct{}, error) {
			if err := s.Stop(); err != nil {
				a.logger.Error("failed to stop server", "error", err)
				return struct{}{}, err
			}
			return struct{}{}, nil
		}))
	}

	waitFuture := conc.Go(func() (struct{}, error) {
		return struct{}{}, conc.AwaitAll(futures...)
	})

	var stopErr error
	select {
	case <-waitFuture.Inner():
		stopErr = waitFuture.Err()
		a.logger.Info("all servers stopped")
	case <-time.After(a.opts.StopTimeout):
		a.logger.Warn("shutdown timeout, forcing exit", "timeout", a.opts.StopTimeout)
	}

	// LIFO
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Error("failed to close component", "error", err)
		}
	}

	a.logger.Info("application exited")
	_ = a.logger.Sync()
	return stopErr
}

// AppendServer 添加服务器
func (a *BaseApp) AppendServer(srv ...Server) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.servers = append(a.servers, srv...)
}

// AppendCloser 添加资源清理组件
func (a *BaseApp) AppendCloser(closer ...Closer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, closer...)
}
