package router

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/IntelLabs/networkgym/pkg/pool/bytebuff"
	"github.com/cockroachdb/errors"
)

// DealerConfig 对端（客户端或工作进程）连接配置
type DealerConfig struct {
	Username string
	Password string
	Identity string

	DialTimeout    time.Duration
	MaxMessageSize int
	TCPNoDelay     bool
}

// Dealer 与 Acceptor 对接的阻塞式对端，用于示例程序和测试
type Dealer struct {
	conn   net.Conn
	reader *bufio.Reader
	config DealerConfig

	wmu sync.Mutex
}

// Dial 拨号并完成握手
func Dial(ctx context.Context, network, addr string, cfg DealerConfig) (*Dealer, error) {
	d := net.Dialer{Timeout: cfg.DialTimeout}
	c, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "router: dial %s", addr)
	}
	if tc, ok := c.(*net.TCPConn); ok && cfg.TCPNoDelay {
		_ = tc.SetNoDelay(true)
	}

	dealer, err := NewDealer(c, cfg)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return dealer, nil
}

// NewDealer 在已建立的连接上完成握手
func NewDealer(c net.Conn, cfg DealerConfig) (*Dealer, error) {
	d := &Dealer{conn: c, reader: bufio.NewReader(c), config: cfg}

	if err := d.Send(plainRequest(cfg.Username, cfg.Password, cfg.Identity)...); err != nil {
		return nil, errors.Wrap(err, "router: send handshake")
	}
	reply, err := d.Recv()
	if err != nil {
		return nil, errors.Wrap(err, "router: read handshake reply")
	}
	switch string(reply[0]) {
	case CmdReady:
		return d, nil
	case CmdError:
		reason := ""
		if len(reply) > 1 {
			reason = string(reply[1])
		}
		return nil, errors.Wrap(ErrHandshakeFailed, reason)
	default:
		return nil, errors.Wrapf(ErrHandshakeFailed, "unexpected reply %q", reply[0])
	}
}

// Identity 本端身份
func (d *Dealer) Identity() string {
	return d.config.Identity
}

// Send 发送一条多分片消息
func (d *Dealer) Send(parts ...[]byte) error {
	buf := bytebuff.Get()
	defer bytebuff.Put(buf)

	frame, err := AppendFrame(buf.B, parts...)
	if err != nil {
		return err
	}
	buf.B = frame

	d.wmu.Lock()
	defer d.wmu.Unlock()
	_, err = d.conn.Write(buf.B)
	return err
}

// Recv 阻塞读取一条消息
func (d *Dealer) Recv() ([][]byte, error) {
	return ReadFrame(d.reader, d.config.MaxMessageSize)
}

// SetReadDeadline 设置读超时
func (d *Dealer) SetReadDeadline(t time.Time) error {
	return d.conn.SetReadDeadline(t)
}

// Close 关闭连接
func (d *Dealer) Close() error {
	return d.conn.Close()
}
