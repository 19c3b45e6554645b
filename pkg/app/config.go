package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/IntelLabs/networkgym/pkg/config"
	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，NETGYM_LOG_LEVEL 对应 log.level
const EnvPrefix = "NETGYM"

// ConfigFile 最终使用的配置文件路径
var ConfigFile string

// LoadConfig 从命令行参数加载配置
// 优先级：1. 命令行显式参数 > 2. 环境变量 > 3. 配置文件 > 4. 默认值
func LoadConfig(target any, opts ...config.Option) (config.Manager, error) {
	return LoadConfigFrom(pflag.CommandLine, os.Args[1:], target, opts...)
}

// LoadConfigFrom 使用指定的 FlagSet 与参数加载配置
func LoadConfigFrom(fs *pflag.FlagSet, args []string, target any, opts ...config.Option) (config.Manager, error) {
	execDir, err := GetExecDir()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get executable directory")
	}

	defaultConfig := filepath.Join(execDir, "config.yaml")

	if fs.Lookup("config") == nil {
		fs.StringP("config", "c", defaultConfig, "path to config file")
	}
	if fs.Lookup("log.level") == nil {
		fs.String("log.level", "", "override log level (debug/info/warn/error)")
	}
	if !fs.Parsed() {
		if err := fs.Parse(args); err != nil {
			return nil, errors.Wrap(err, "failed to parse flags")
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// Flag 显式指定 > 环境变量 NETGYM_CONFIG > 默认物理路径
	path, _ := fs.GetString("config")
	if !fs.Changed("config") {
		if envConfig := os.Getenv(EnvPrefix + "_CONFIG"); envConfig != "" {
			path = envConfig
		}
	}

	if fs.Changed("log.level") {
		level, _ := fs.GetString("log.level")
		v.Set("log.level", level)
	}

	mgr := config.NewManager(append(opts, config.WithViper(v))...)
	if err := mgr.LoadFile(path); err != nil {
		return nil, err
	}
	ConfigFile = path

	if err := mgr.Unmarshal(target); err != nil {
		return nil, err
	}

	return mgr, nil
}

// GetExecDir 获取可执行文件所在目录（处理符号链接）
func GetExecDir() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	realPath, err := filepath.EvalSymlinks(execPath)
	if err != nil {
		return filepath.Dir(execPath), nil
	}
	return filepath.Dir(realPath), nil
}
