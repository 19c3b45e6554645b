package redis

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Config Redis 配置（Standalone/Cluster 必须且只能配置一种）
type Config struct {
	Standalone *NodeConfig    `mapstructure:"standalone" json:"standalone,omitempty" yaml:"standalone,omitempty"`
	Cluster    *ClusterConfig `mapstructure:"cluster" json:"cluster,omitempty" yaml:"cluster,omitempty"`

	// Pool 连接池配置（所有模式共享）
	Pool PoolConfig `mapstructure:"pool" json:"pool" yaml:"pool"`
}

// NodeConfig 单节点配置
type NodeConfig struct {
	Host     string `mapstructure:"host" json:"host" yaml:"host"`
	Port     int    `mapstructure:"port" json:"port" yaml:"port"`
	Password string `mapstructure:"password" json:"password" yaml:"password"`
	DB       int    `mapstructure:"db" json:"db" yaml:"db"` // 0-15
}

// Addr host:port
func (n *NodeConfig) Addr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

// ClusterConfig 集群配置
type ClusterConfig struct {
	Addrs    []string `mapstructure:"addrs" json:"addrs" yaml:"addrs"` // host:port
	Password string   `mapstructure:"password" json:"password" yaml:"password"`
}

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int           `mapstructure:"max_idle_conns" json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" json:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout" json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
}

// DefaultPoolConfig 默认连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:    2,
		MaxOpenConns:    8,
		ConnMaxIdleTime: 5 * time.Minute,
		DialTimeout:     3 * time.Second,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	switch {
	case c.Standalone != nil && c.Cluster != nil, c.Standalone == nil && c.Cluster == nil:
		return ErrInvalidConfig
	case c.Standalone != nil:
		if c.Standalone.Host == "" || c.Standalone.Port <= 0 {
			return errors.Wrap(ErrInvalidConfig, "standalone host and port are required")
		}
		if c.Standalone.DB < 0 || c.Standalone.DB > 15 {
			return errors.Wrapf(ErrInvalidConfig, "db %d out of range", c.Standalone.DB)
		}
	default:
		if len(c.Cluster.Addrs) == 0 {
			return errors.Wrap(ErrInvalidConfig, "cluster addrs are required")
		}
	}
	return nil
}

// IsCluster 是否为集群模式
func (c *Config) IsCluster() bool {
	return c.Cluster != nil
}
