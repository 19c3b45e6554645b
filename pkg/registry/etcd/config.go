package etcd

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Config etcd 服务注册配置
type Config struct {
	// Endpoints etcd 集群地址
	Endpoints []string `mapstructure:"endpoints" json:"endpoints"`
	// DialTimeout 连接超时
	DialTimeout time.Duration `mapstructure:"dial_timeout" json:"dial_timeout"`
	// TTL 租约过期时间，至少 1 秒
	TTL time.Duration `mapstructure:"ttl" json:"ttl"`
	// Namespace 命名空间前缀（如 /networkgym）
	Namespace string `mapstructure:"namespace" json:"namespace"`

	Username string `mapstructure:"username" json:"username"`
	Password string `mapstructure:"password" json:"password"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
		TTL:         10 * time.Second,
		Namespace:   "/networkgym",
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.New("etcd: endpoints is required")
	}
	if c.DialTimeout <= 0 {
		return errors.New("etcd: dial_timeout must be positive")
	}
	if c.TTL < time.Second {
		return errors.Newf("etcd: ttl %s must be at least 1s", c.TTL)
	}
	if c.Namespace == "" {
		c.Namespace = "/networkgym"
	}
	return nil
}
