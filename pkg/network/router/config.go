package router

import (
	"time"

	"github.com/cockroachdb/errors"
)

// ServerConfig 端点配置
type ServerConfig struct {
	// 监听地址，如 "0.0.0.0:8088"
	Addr string `mapstructure:"addr" json:"addr" yaml:"addr"`

	// 网络类型，tcp/tcp4/tcp6
	Network string `mapstructure:"network" json:"network" yaml:"network"`

	Multicore bool `mapstructure:"multicore" json:"multicore" yaml:"multicore"`

	// 事件循环数量，0 表示使用 CPU 核心数
	NumEventLoop int `mapstructure:"num_event_loop" json:"num_event_loop" yaml:"num_event_loop"`

	ReusePort bool `mapstructure:"reuse_port" json:"reuse_port" yaml:"reuse_port"`
	ReuseAddr bool `mapstructure:"reuse_addr" json:"reuse_addr" yaml:"reuse_addr"`

	// 单帧最大字节数（不含 4 字节长度头）
	MaxMessageSize int `mapstructure:"max_message_size" json:"max_message_size" yaml:"max_message_size"`

	// 收件箱容量，分发循环消费不及时时事件循环会阻塞
	InboxSize int `mapstructure:"inbox_size" json:"inbox_size" yaml:"inbox_size"`

	// 每连接每秒允许的消息数，0 表示不限
	RateLimit float64 `mapstructure:"rate_limit" json:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" json:"rate_burst" yaml:"rate_burst"`

	// 等待 gnet 引擎启动的最长时间
	StartTimeout time.Duration `mapstructure:"start_timeout" json:"start_timeout" yaml:"start_timeout"`

	TCPKeepAlive time.Duration `mapstructure:"tcp_keep_alive" json:"tcp_keep_alive" yaml:"tcp_keep_alive"`
	TCPNoDelay   bool          `mapstructure:"tcp_no_delay" json:"tcp_no_delay" yaml:"tcp_no_delay"`
}

// DefaultServerConfig 返回默认端点配置
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:           "0.0.0.0:8088",
		Network:        "tcp",
		Multicore:      true,
		ReuseAddr:      true,
		MaxMessageSize: 16 * 1024 * 1024, // 测量数据可能较大
		InboxSize:      1024,
		RateLimit:      0,
		RateBurst:      0,
		StartTimeout:   3 * time.Second,
		TCPKeepAlive:   30 * time.Second,
		TCPNoDelay:     true,
	}
}

// Validate 验证端点配置
func (c *ServerConfig) Validate() error {
	if c == nil {
		return ErrInvalidConfig
	}
	if c.Addr == "" {
		return errors.Wrap(ErrInvalidConfig, "addr is required")
	}
	switch c.Network {
	case "tcp", "tcp4", "tcp6":
	default:
		return errors.Wrapf(ErrInvalidConfig, "unsupported network %q", c.Network)
	}
	if c.MaxMessageSize <= 0 {
		return errors.Wrap(ErrInvalidConfig, "max_message_size must be positive")
	}
	if c.InboxSize <= 0 {
		return errors.Wrap(ErrInvalidConfig, "inbox_size must be positive")
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return errors.Wrap(ErrInvalidConfig, "rate limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst == 0 {
		return errors.Wrap(ErrInvalidConfig, "rate_burst is required when rate_limit is set")
	}
	return nil
}

func (c *ServerConfig) protoAddr() string {
	return c.Network + "://" + c.Addr
}
