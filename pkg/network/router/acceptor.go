// Package router 实现按身份寻址的多分片消息端点。
//
// 连接建立后第一条消息必须是 PLAIN 握手，之后每条入站消息都带上发送方身份投递到收件箱，
// 出站消息通过 Send(identity, parts...) 路由到对应连接。同一身份重复连接时新连接接管。
package router

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IntelLabs/networkgym/pkg/logger"
	"github.com/IntelLabs/networkgym/pkg/pool/bytebuff"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/panjf2000/gnet/v2"
	"golang.org/x/time/rate"
)

// Message 入站消息
type Message struct {
	Identity string
	Parts    [][]byte
}

// Observer 连接事件回调，用于指标统计
type Observer interface {
	OnHandshake(endpoint string, ok bool)
	OnDrop(endpoint, reason string)
}

type nopObserver struct{}

func (nopObserver) OnHandshake(string, bool) {}
func (nopObserver) OnDrop(string, string)    {}

// conn 连接上下文
type conn struct {
	id       string
	gc       gnet.Conn
	identity string
	limiter  *rate.Limiter
	rejected bool
}

// Acceptor 基于 gnet 的身份路由端点
type Acceptor struct {
	gnet.BuiltinEventEngine

	name     string
	config   *ServerConfig
	auth     Authenticator
	validate IdentityValidator
	observer Observer
	logger   logger.Logger
	buffers  *bytebuff.Pool

	inbox chan Message
	done  chan struct{}

	mu    sync.RWMutex
	peers map[string]*conn

	engine  gnet.Engine
	booted  chan struct{}
	started atomic.Bool
	closed  atomic.Bool
}

// Option Acceptor 选项
type Option func(*Acceptor)

// WithIdentityValidator 设置身份格式校验
func WithIdentityValidator(v IdentityValidator) Option {
	return func(a *Acceptor) { a.validate = v }
}

// WithObserver 设置事件观察者
func WithObserver(o Observer) Option {
	return func(a *Acceptor) {
		if o != nil {
			a.observer = o
		}
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(a *Acceptor) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAcceptor 创建端点，name 用于日志和指标（如 "client"、"worker"）
func NewAcceptor(name string, cfg *ServerConfig, auth Authenticator, opts ...Option) (*Acceptor, error) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "authenticator is required")
	}

	a := &Acceptor{
		name:     name,
		config:   cfg,
		auth:     auth,
		observer: nopObserver{},
		logger:   logger.NewNoop(),
		buffers:  &bytebuff.Pool{},
		inbox:    make(chan Message, cfg.InboxSize),
		done:     make(chan struct{}),
		peers:    make(map[string]*conn),
		booted:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("router." + name)
	return a, nil
}

// Name 端点名称
func (a *Acceptor) Name() string {
	return a.name
}

// Recv 入站消息 channel
func (a *Acceptor) Recv() <-chan Message {
	return a.inbox
}

// Start 启动事件循环，等待引擎就绪后返回
func (a *Acceptor) Start() error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrServerAlreadyStarted
	}

	opts := []gnet.Option{
		gnet.WithMulticore(a.config.Multicore),
		gnet.WithReusePort(a.config.ReusePort),
		gnet.WithReuseAddr(a.config.ReuseAddr),
	}
	if a.config.TCPKeepAlive > 0 {
		opts = append(opts, gnet.WithTCPKeepAlive(a.config.TCPKeepAlive))
	}
	if a.config.TCPNoDelay {
		opts = append(opts, gnet.WithTCPNoDelay(gnet.TCPNoDelay))
	}
	if a.config.NumEventLoop > 0 {
		opts = append(opts, gnet.WithNumEventLoop(a.config.NumEventLoop))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- gnet.Run(a, a.config.protoAddr(), opts...)
	}()

	select {
	case err := <-errCh:
		a.started.Store(false)
		return errors.Wrapf(err, "router %s: listen %s", a.name, a.config.Addr)
	case <-a.booted:
	case <-time.After(a.config.StartTimeout):
		return errors.Newf("router %s: engine did not boot within %s", a.name, a.config.StartTimeout)
	}

	a.logger.Info("endpoint listening", "addr", a.config.Addr)
	return nil
}

// Stop 停止事件循环
func (a *Acceptor) Stop() error {
	if !a.started.Load() {
		return ErrServerNotStarted
	}
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(a.done)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.engine.Stop(ctx); err != nil {
		return errors.Wrapf(err, "router %s: stop engine", a.name)
	}
	a.logger.Info("endpoint stopped")
	return nil
}

// Send 向指定身份发送一条多分片消息
func (a *Acceptor) Send(identity string, parts ...[]byte) error {
	if a.closed.Load() {
		return ErrServerClosed
	}

	a.mu.RLock()
	c, ok := a.peers[identity]
	a.mu.RUnlock()
	if !ok {
		return errors.Wrap(ErrPeerNotFound, identity)
	}

	buf := a.buffers.Get()
	frame, err := AppendFrame(buf.B, parts...)
	if err != nil {
		a.buffers.Put(buf)
		return err
	}
	buf.B = frame

	err = c.gc.AsyncWrite(buf.B, func(gnet.Conn, error) error {
		a.buffers.Put(buf)
		return nil
	})
	if err != nil {
		a.buffers.Put(buf)
		return errors.Wrapf(err, "router %s: write to %s", a.name, identity)
	}
	return nil
}

// Connected 当前已认证的身份数
func (a *Acceptor) Connected() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.peers)
}

// OnBoot 引擎启动
func (a *Acceptor) OnBoot(eng gnet.Engine) gnet.Action {
	a.engine = eng
	close(a.booted)
	return gnet.None
}

// OnOpen 新连接
func (a *Acceptor) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	cc := &conn{id: uuid.NewString(), gc: c}
	if a.config.RateLimit > 0 {
		cc.limiter = rate.NewLimiter(rate.Limit(a.config.RateLimit), a.config.RateBurst)
	}
	c.SetContext(cc)
	a.logger.Debug("connection opened", "conn", cc.id, "remote", c.RemoteAddr().String())
	return nil, gnet.None
}

// OnClose 连接关闭，仅在映射仍指向本连接时移除
func (a *Acceptor) OnClose(c gnet.Conn, err error) gnet.Action {
	cc, ok := c.Context().(*conn)
	if !ok {
		return gnet.None
	}
	if cc.identity != "" {
		a.mu.Lock()
		if cur, ok := a.peers[cc.identity]; ok && cur == cc {
			delete(a.peers, cc.identity)
		}
		a.mu.Unlock()
	}
	a.logger.Debug("connection closed", "conn", cc.id, "identity", cc.identity, "error", err)
	return gnet.None
}

// OnTraffic 拆帧并处理
func (a *Acceptor) OnTraffic(c gnet.Conn) gnet.Action {
	cc, ok := c.Context().(*conn)
	if !ok {
		return gnet.Close
	}

	for c.InboundBuffered() > 0 {
		buf, _ := c.Peek(-1)
		parts, n, err := DecodeFrame(buf, a.config.MaxMessageSize)
		if errors.Is(err, ErrIncompleteFrame) {
			break
		}
		if err != nil {
			a.logger.Warn("invalid frame, closing connection", "conn", cc.id, "identity", cc.identity, "error", err)
			a.observer.OnDrop(a.name, "invalid_frame")
			return gnet.Close
		}
		_, _ = c.Discard(n)

		if cc.rejected {
			continue
		}
		if cc.identity == "" {
			a.handshake(cc, parts)
			continue
		}
		if cc.limiter != nil && !cc.limiter.Allow() {
			a.observer.OnDrop(a.name, "rate_limited")
			a.logger.Warn("message dropped by rate limit", "identity", cc.identity)
			continue
		}

		select {
		case a.inbox <- Message{Identity: cc.identity, Parts: parts}:
		case <-a.done:
			return gnet.Close
		}
	}
	return gnet.None
}

func (a *Acceptor) handshake(cc *conn, parts [][]byte) {
	identity, err := a.checkHandshake(parts)
	if err != nil {
		cc.rejected = true
		a.observer.OnHandshake(a.name, false)
		a.logger.Warn("handshake rejected", "conn", cc.id, "error", err)
		a.reply(cc, func(gnet.Conn, error) error { return cc.gc.Close() }, []byte(CmdError), []byte(err.Error()))
		return
	}

	cc.identity = identity
	a.mu.Lock()
	old, exists := a.peers[identity]
	a.peers[identity] = cc
	a.mu.Unlock()
	if exists && old != cc {
		a.logger.Info("identity reconnected, closing previous connection", "identity", identity)
		_ = old.gc.Close()
	}

	a.observer.OnHandshake(a.name, true)
	a.logger.Debug("handshake accepted", "conn", cc.id, "identity", identity)
	a.reply(cc, nil, []byte(CmdReady))
}

func (a *Acceptor) checkHandshake(parts [][]byte) (string, error) {
	if len(parts) != 4 || string(parts[0]) != CmdPlain {
		return "", errors.Wrap(ErrHandshakeFailed, "expected PLAIN username password identity")
	}
	username, secret, identity := string(parts[1]), string(parts[2]), string(parts[3])
	if err := a.auth.Authenticate(username, secret); err != nil {
		return "", errors.Wrap(ErrHandshakeFailed, err.Error())
	}
	if identityAccount(identity) != username {
		return "", errors.Wrapf(ErrIdentityMismatch, "%q for user %q", identity, username)
	}
	if a.validate != nil {
		if err := a.validate(identity); err != nil {
			return "", errors.Wrap(ErrHandshakeFailed, err.Error())
		}
	}
	return identity, nil
}

func (a *Acceptor) reply(cc *conn, then gnet.AsyncCallback, parts ...[]byte) {
	frame, err := AppendFrame(nil, parts...)
	if err != nil {
		return
	}
	if err := cc.gc.AsyncWrite(frame, then); err != nil {
		a.logger.Warn("failed to write handshake reply", "conn", cc.id, "error", err)
	}
}
