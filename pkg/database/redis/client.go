// Package redis 封装 go-redis，对外隐藏其类型。
package redis

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Client Redis 客户端
type Client struct {
	rdb redis.UniversalClient
	cfg *Config
}

// NewClient 创建客户端，不主动连接
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &redis.UniversalOptions{
		MaxIdleConns:    cfg.Pool.MaxIdleConns,
		MaxActiveConns:  cfg.Pool.MaxOpenConns,
		ConnMaxIdleTime: cfg.Pool.ConnMaxIdleTime,
		DialTimeout:     cfg.Pool.DialTimeout,
		ReadTimeout:     cfg.Pool.ReadTimeout,
		WriteTimeout:    cfg.Pool.WriteTimeout,
	}

	var rdb redis.UniversalClient
	if cfg.IsCluster() {
		opts.Addrs = cfg.Cluster.Addrs
		opts.Password = cfg.Cluster.Password
		rdb = redis.NewClusterClient(opts.Cluster())
	} else {
		opts.Addrs = []string{cfg.Standalone.Addr()}
		opts.Password = cfg.Standalone.Password
		opts.DB = cfg.Standalone.DB
		rdb = redis.NewClient(opts.Simple())
	}

	return &Client{rdb: rdb, cfg: cfg}, nil
}

// Ping 检查连接
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Set 写入带过期时间的值，ttl 为 0 表示不过期
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Get 读取值，不存在时返回 ErrNil
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNil
	}
	return b, err
}

// Del 删除键
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// TTL 剩余过期时间
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.rdb.TTL(ctx, key).Result()
}

// Publish 发布消息，返回收到消息的订阅者数
func (c *Client) Publish(ctx context.Context, channel string, message []byte) (int64, error) {
	return c.rdb.Publish(ctx, channel, message).Result()
}

// SetAndPublish 在一个 pipeline 中写入值并发布通知
func (c *Client) SetAndPublish(ctx context.Context, key string, value []byte, ttl time.Duration, channel string) error {
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, value, ttl)
		p.Publish(ctx, channel, value)
		return nil
	})
	return err
}

// Close 关闭客户端
func (c *Client) Close() error {
	return c.rdb.Close()
}
