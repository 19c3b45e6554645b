package postgres

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// DBConfig 数据库实例配置
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	SSLMode  string `mapstructure:"ssl_mode"` // disable, require, verify-ca, verify-full
}

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// Config PostgreSQL 配置
type Config struct {
	DB   DBConfig   `mapstructure:"db"`
	Pool PoolConfig `mapstructure:"pool"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		DB: DBConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "networkgym",
			SSLMode: "disable",
		},
		Pool: PoolConfig{
			MaxConns:          4,
			MinConns:          0,
			MaxConnLifetime:   time.Hour,
			MaxConnIdleTime:   30 * time.Minute,
			HealthCheckPeriod: time.Minute,
		},
		ConnectTimeout: 10 * time.Second,
		QueryTimeout:   30 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch {
	case c.DB.Host == "":
		return errors.Wrap(ErrInvalidConfig, "host is empty")
	case c.DB.Port <= 0 || c.DB.Port > 65535:
		return errors.Wrapf(ErrInvalidConfig, "invalid port %d", c.DB.Port)
	case c.DB.User == "":
		return errors.Wrap(ErrInvalidConfig, "user is empty")
	case c.DB.DBName == "":
		return errors.Wrap(ErrInvalidConfig, "db_name is empty")
	case c.Pool.MaxConns <= 0:
		return errors.Wrap(ErrInvalidConfig, "max_conns must be positive")
	case c.Pool.MinConns < 0 || c.Pool.MinConns > c.Pool.MaxConns:
		return errors.Wrap(ErrInvalidConfig, "min_conns out of range")
	}
	return nil
}

// ConnString 构建 libpq 风格的连接字符串
func (c *Config) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.DBName,
		c.DB.SSLMode,
		int(c.ConnectTimeout.Seconds()),
	)
}
