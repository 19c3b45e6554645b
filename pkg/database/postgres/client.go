package postgres

import (
	"context"

	"github.com/IntelLabs/networkgym/pkg/config"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Client PostgreSQL 客户端
type Client struct {
	pool *pgxpool.Pool
	cfg  *Config
}

// New 创建客户端并验证连通性
func New(ctx context.Context, cfg *Config) (*Client, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: merge config")
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(merged.ConnString())
	if err != nil {
		return nil, errors.Wrap(err, "postgres: parse pool config")
	}
	poolConfig.MaxConns = merged.Pool.MaxConns
	poolConfig.MinConns = merged.Pool.MinConns
	poolConfig.MaxConnLifetime = merged.Pool.MaxConnLifetime
	poolConfig.MaxConnIdleTime = merged.Pool.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = merged.Pool.HealthCheckPeriod

	ctx, cancel := context.WithTimeout(ctx, merged.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrapf(err, "postgres: ping %s:%d", merged.DB.Host, merged.DB.Port)
	}

	return &Client{pool: pool, cfg: merged}, nil
}

// Close 关闭连接池
func (c *Client) Close() error {
	c.pool.Close()
	return nil
}

// Ping 检查数据库连接
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *Client) applyQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.QueryTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.QueryTimeout)
	}
	return ctx, func() {}
}

// QueryAll 查询多条记录，按 db tag 映射到 T 的字段
func QueryAll[T any](c *Client, ctx context.Context, sql string, args ...any) ([]T, error) {
	ctx, cancel := c.applyQueryTimeout(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: query")
	}

	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, errors.Wrap(err, "postgres: scan rows")
	}
	return out, nil
}

// Exec 执行写操作
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	ctx, cancel := c.applyQueryTimeout(ctx)
	defer cancel()

	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errors.Wrap(err, "postgres: exec")
	}
	return tag.RowsAffected(), nil
}
