package dispatcher

import (
	"time"

	"github.com/IntelLabs/networkgym/app/broker/internal/envname"
	"github.com/IntelLabs/networkgym/app/broker/internal/registry"
)

// Config 分发循环配置
type Config struct {
	// worker 心跳超时，超过后不再参与匹配
	WorkerTimeout time.Duration `mapstructure:"worker_timeout" validate:"gt=0"`
	// 定时清理间隔
	EvictInterval time.Duration `mapstructure:"evict_interval" validate:"gt=0"`
	// 可以使用目录环境名的官方账户
	OfficialAccount string `mapstructure:"official_account"`
	// 通用自定义环境名
	CustomEnv string `mapstructure:"custom_env" validate:"required"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		WorkerTimeout:   registry.DefaultTimeout,
		EvictInterval:   10 * time.Second,
		OfficialAccount: "",
		CustomEnv:       envname.DefaultCustomEnv,
	}
}
