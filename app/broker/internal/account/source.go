package account

import (
	"context"

	"github.com/IntelLabs/networkgym/pkg/database/postgres"
	"github.com/cockroachdb/errors"
)

// Source 账户存储
type Source interface {
	Load(ctx context.Context) ([]Account, error)
}

const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
)

// Config 账户存储配置
type Config struct {
	Source   string           `mapstructure:"source" validate:"oneof=csv postgres"`
	CSVPath  string           `mapstructure:"csv_path"`
	Table    string           `mapstructure:"table"`
	Postgres *postgres.Config `mapstructure:"postgres"`
}

// DefaultConfig 默认从 network_gym_accounts.csv 加载
func DefaultConfig() *Config {
	return &Config{
		Source:  SourceCSV,
		CSVPath: "network_gym_accounts.csv",
		Table:   DefaultTable,
	}
}

// Load 从配置的来源加载账户表，启动阶段调用，失败即致命
func Load(ctx context.Context, cfg *Config) (*Table, error) {
	var (
		src    Source
		closer func() error
	)

	switch cfg.Source {
	case SourceCSV, "":
		src = &CSVSource{Path: cfg.CSVPath}
	case SourcePostgres:
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		closer = client.Close
		src = &PostgresSource{Client: client, Table: cfg.Table}
	default:
		return nil, errors.Wrapf(ErrUnknownSource, "source %q", cfg.Source)
	}

	if closer != nil {
		defer closer()
	}

	accounts, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, errors.Wrap(ErrMalformedStore, "no accounts")
	}
	return NewTable(accounts)
}
