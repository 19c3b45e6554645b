// Package dispatcher 实现 broker 的单线程分发循环。
//
// 空闲 worker 表与会话表只在 Run 所在的 goroutine 中修改，其他 goroutine 通过 Snapshot 读取。
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/IntelLabs/networkgym/app/broker/internal/envname"
	"github.com/IntelLabs/networkgym/app/broker/internal/identity"
	"github.com/IntelLabs/networkgym/app/broker/internal/protocol"
	"github.com/IntelLabs/networkgym/app/broker/internal/registry"
	"github.com/IntelLabs/networkgym/app/broker/internal/session"
	"github.com/IntelLabs/networkgym/pkg/logger"
	"github.com/IntelLabs/networkgym/pkg/network/router"
	"github.com/IntelLabs/networkgym/pkg/util/conc"
	"github.com/cockroachdb/errors"
)

// Socket 按身份收发消息的端点
type Socket interface {
	Recv() <-chan router.Message
	Send(identity string, parts ...[]byte) error
}

// Authorizer 客户端配额检查
type Authorizer interface {
	Authorize(peer identity.Peer) error
}

// Snapshot 某一时刻的空闲 worker 与会话
type Snapshot struct {
	Taken    time.Time
	Idle     []registry.Worker
	Sessions []session.Session
	Timeout  time.Duration
}

// Dispatcher 分发循环
type Dispatcher struct {
	config   *Config
	clients  Socket
	workers  Socket
	gate     Authorizer
	resolver *envname.Resolver
	registry *registry.Registry
	sessions *session.Router
	recorder Recorder
	logger   logger.Logger
	now      func() time.Time

	snapshots chan chan Snapshot

	mu     sync.Mutex
	cancel context.CancelFunc
	loop   *conc.Future[struct{}]
}

// Option Dispatcher 选项
type Option func(*Dispatcher)

// WithRecorder 设置统计
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New 创建 Dispatcher
func New(cfg *Config, clients, workers Socket, gate Authorizer, opts ...Option) *Dispatcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	sessions := session.NewRouter()
	d := &Dispatcher{
		config:    cfg,
		clients:   clients,
		workers:   workers,
		gate:      gate,
		resolver:  envname.New(cfg.OfficialAccount, cfg.CustomEnv),
		registry:  registry.New(cfg.WorkerTimeout, sessions),
		sessions:  sessions,
		recorder:  nopRecorder{},
		logger:    logger.NewNoop(),
		now:       time.Now,
		snapshots: make(chan chan Snapshot),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("dispatcher")
	return d
}

// Start 在后台启动 Run
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loop != nil {
		return errors.New("dispatcher: already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.loop = conc.Go(func() (struct{}, error) {
		return struct{}{}, d.Run(ctx)
	})
	return nil
}

// Stop 停止后台循环并等待退出
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	cancel, loop := d.cancel, d.loop
	d.cancel, d.loop = nil, nil
	d.mu.Unlock()
	if loop == nil {
		return nil
	}
	cancel()
	return loop.Err()
}

// Run 阻塞运行分发循环，直到 ctx 结束
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.config.EvictInterval)
	defer ticker.Stop()

	d.logger.Info("dispatcher running",
		"worker_timeout", d.config.WorkerTimeout,
		"evict_interval", d.config.EvictInterval,
		"official_account", d.config.OfficialAccount,
	)

	clients, workers := d.clients.Recv(), d.workers.Recv()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped", "idle", d.registry.Len(), "sessions", d.sessions.Len())
			return nil
		case m := <-clients:
			d.evict()
			d.handleClient(m)
		case m := <-workers:
			d.evict()
			d.handleWorker(m)
		case <-ticker.C:
			d.evict()
		case reply := <-d.snapshots:
			d.evict()
			reply <- d.snapshot()
		}
		d.recorder.State(d.registry.Len(), d.sessions.Len())
	}
}

// Snapshot 获取当前状态副本
func (d *Dispatcher) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case d.snapshots <- reply:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (d *Dispatcher) snapshot() Snapshot {
	return Snapshot{
		Taken:    d.now(),
		Idle:     d.registry.Idle(),
		Sessions: d.sessions.All(),
		Timeout:  d.registry.Timeout(),
	}
}

// evict 清理超时 worker；空闲 worker 不应处于会话中，这里仍按超时结束残留会话
func (d *Dispatcher) evict() {
	evicted := d.registry.EvictStale(d.now())
	if len(evicted) == 0 {
		return
	}
	d.recorder.Evicted(len(evicted))
	for _, w := range evicted {
		d.logger.Info("evicted stale worker",
			"worker", w.Address.String(),
			"last_heartbeat", w.LastHeartbeat,
			"envs", w.Capabilities,
		)
		if s, ok := d.sessions.UnbindByWorker(w.Address); ok {
			cause := errors.Wrapf(ErrStaleWorker, "worker %s", w.Address)
			d.endSession(s, ResultStale, cause)
			d.replyError(s.Client, workerTimeoutMessage)
		}
	}
}

func (d *Dispatcher) endSession(s *session.Session, result string, cause error) {
	d.recorder.Session(result)
	kv := []interface{}{
		"session", s.ID,
		"client", s.Client.String(),
		"worker", s.Worker.String(),
		"env", s.EnvName,
		"result", result,
		"duration", d.now().Sub(s.CreatedAt),
	}
	if cause != nil {
		d.logger.Warn("session ended", append(kv, "error", cause)...)
		return
	}
	d.logger.Info("session ended", kv...)
}

// sendClient 发送给客户端，客户端不可达时只记录日志
func (d *Dispatcher) sendClient(client identity.Peer, payload []byte) bool {
	if err := d.clients.Send(client.String(), payload); err != nil {
		d.logger.Warn("failed to send to client", "client", client.String(), "error", err)
		return false
	}
	return true
}

func (d *Dispatcher) sendWorker(worker, client identity.Peer, payload []byte) bool {
	if err := d.workers.Send(worker.String(), []byte(client.String()), payload); err != nil {
		d.logger.Warn("failed to send to worker", "worker", worker.String(), "client", client.String(), "error", err)
		return false
	}
	return true
}

func (d *Dispatcher) replyError(client identity.Peer, msg string) {
	d.sendClient(client, protocol.ErrorPayload(msg))
}

// relayToWorker 转发给会话的 worker；worker 不可达时结束会话并通知客户端
func (d *Dispatcher) relayToWorker(s *session.Session, payload []byte) {
	if d.sendWorker(s.Worker, s.Client, payload) {
		d.recorder.Relayed(DirectionToWorker)
		return
	}
	if cur, ok := d.sessions.UnbindByClient(s.Client); ok {
		d.endSession(cur, ResultPeerFailure, errors.Wrapf(ErrPeerFailure, "worker %s unreachable", s.Worker))
		d.replyError(s.Client, workerLostMessage)
	}
}
