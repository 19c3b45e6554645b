package account

import (
	"context"

	"github.com/IntelLabs/networkgym/pkg/database/postgres"
	"github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
)

// DefaultTable 账户表名
const DefaultTable = "accounts"

// PostgresSource 从 PostgreSQL 加载账户
type PostgresSource struct {
	Client *postgres.Client
	Table  string
}

// Query 构建查询语句
func (s *PostgresSource) Query() (string, []any, error) {
	table := s.Table
	if table == "" {
		table = DefaultTable
	}
	return squirrel.
		Select("account_name", "secret", "max_instances").
		From(table).
		OrderBy("account_name").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
}

// Load 实现 Source
func (s *PostgresSource) Load(ctx context.Context) ([]Account, error) {
	sql, args, err := s.Query()
	if err != nil {
		return nil, errors.Wrap(err, "build account query")
	}
	accounts, err := postgres.QueryAll[Account](s.Client, ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "load accounts")
	}
	return accounts, nil
}
