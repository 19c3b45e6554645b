package logger

import (
	"sync"
)

var (
	defaultLogger   *BaseLogger
	defaultLoggerMu sync.RWMutex
)

// InitDefault 初始化默认 logger
func InitDefault(cfg *Config, opts ...Option) error {
	l, err := New(cfg, opts...)
	if err != nil {
		return err
	}

	SetDefault(l)
	return nil
}

// SetDefault 设置默认 logger
func SetDefault(l *BaseLogger) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = l
}

// Default 获取默认 logger，未初始化时使用默认配置 (仅控制台输出)
func Default() *BaseLogger {
	defaultLoggerMu.RLock()
	l := defaultLogger
	defaultLoggerMu.RUnlock()
	if l != nil {
		return l
	}

	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	if defaultLogger == nil {
		created, err := New(DefaultConfig())
		if err != nil {
			panic(err)
		}
		defaultLogger = created
	}
	return defaultLogger
}

// Named 基于默认 logger 创建具名 logger
func Named(name string) Logger {
	return Default().Named(name)
}

// Sync 同步默认 logger
func Sync() error {
	return Default().Sync()
}
