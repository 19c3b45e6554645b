package main

import (
	"context"
	"fmt"
	"time"

	"github.com/IntelLabs/networkgym/app/broker/internal/account"
	"github.com/IntelLabs/networkgym/app/broker/internal/dispatcher"
	"github.com/IntelLabs/networkgym/app/broker/internal/identity"
	"github.com/IntelLabs/networkgym/app/broker/internal/metrics"
	"github.com/IntelLabs/networkgym/app/broker/internal/status"
	"github.com/IntelLabs/networkgym/pkg/app"
	"github.com/IntelLabs/networkgym/pkg/config"
	"github.com/IntelLabs/networkgym/pkg/database/redis"
	"github.com/IntelLabs/networkgym/pkg/logger"
	"github.com/IntelLabs/networkgym/pkg/metrics/system"
	"github.com/IntelLabs/networkgym/pkg/network/router"
	"github.com/IntelLabs/networkgym/pkg/prometheus"
	"github.com/IntelLabs/networkgym/pkg/registry"
	"github.com/IntelLabs/networkgym/pkg/registry/etcd"
	"github.com/fsnotify/fsnotify"
)

// Config Broker 服务配置
type Config struct {
	Log logger.Config `mapstructure:"log"`

	// 分发循环
	Broker dispatcher.Config `mapstructure:"broker"`

	// 账户表
	Accounts account.Config `mapstructure:"accounts"`

	// 客户端与 worker 两个监听端点
	ClientEndpoint router.ServerConfig `mapstructure:"client_endpoint"`
	WorkerEndpoint router.ServerConfig `mapstructure:"worker_endpoint"`

	Metrics    metrics.Config    `mapstructure:"metrics"`
	Prometheus prometheus.Config `mapstructure:"prometheus"`

	// 以下为可选组件，未配置时不启用
	Redis    *redis.Config `mapstructure:"redis"`
	Registry *etcd.Config  `mapstructure:"registry"`

	Status status.Config `mapstructure:"status"`

	// 进程资源采集间隔
	SystemInterval time.Duration `mapstructure:"system_interval"`
}

func defaultConfig() Config {
	worker := *router.DefaultServerConfig()
	worker.Addr = "0.0.0.0:8092"

	return Config{
		Log:            *logger.DefaultConfig(),
		Broker:         *dispatcher.DefaultConfig(),
		Accounts:       *account.DefaultConfig(),
		ClientEndpoint: *router.DefaultServerConfig(),
		WorkerEndpoint: worker,
		Metrics:        *metrics.DefaultConfig(),
		Prometheus:     *prometheus.DefaultConfig(),
		Status:         *status.DefaultConfig(),
		SystemInterval: 5 * time.Second,
	}
}

func main() {
	cfg := defaultConfig()

	// 1. 加载配置
	mgr, err := app.LoadConfig(&cfg)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return
	}

	// 2. 初始化日志
	l, err := logger.New(&cfg.Log)
	if err != nil {
		panic(err)
	}
	logger.SetDefault(l)

	// 只有日志级别支持热更新
	if err := mgr.Watch(func(e fsnotify.Event) {
		level := logger.Level(mgr.GetString("log.level"))
		if !level.Valid() || level == l.GetLevel() {
			return
		}
		if err := l.SetLevel(level); err != nil {
			l.Warn("failed to apply log level", "level", level, "error", err)
			return
		}
		l.Info("log level changed", "level", level, "file", e.Name)
	}); err != nil {
		l.Warn("config watch disabled", "error", err)
	}

	v := config.NewValidator()
	if err := v.Validate(&cfg.Broker); err != nil {
		l.Error("invalid broker config", "error", err)
		return
	}
	if err := v.Validate(&cfg.Accounts); err != nil {
		l.Error("invalid accounts config", "error", err)
		return
	}

	// 3. 加载账户表，失败即退出
	loadCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	accounts, err := account.Load(loadCtx, &cfg.Accounts)
	cancel()
	if err != nil {
		l.Error("failed to load accounts", "source", cfg.Accounts.Source, "error", err)
		return
	}
	l.Info("accounts loaded", "count", accounts.Len(), "accounts", accounts.Names())

	// 4. 指标
	promClient, err := prometheus.New(&cfg.Prometheus, l)
	if err != nil {
		l.Error("failed to create prometheus client", "error", err)
		return
	}
	bm, err := metrics.New(&cfg.Metrics)
	if err != nil {
		l.Error("failed to create broker metrics", "error", err)
		return
	}
	if err := bm.Register(promClient.Registerer()); err != nil {
		l.Error("failed to register broker metrics", "error", err)
		return
	}

	sys, err := system.New()
	if err != nil {
		l.Error("failed to create system collector", "error", err)
		return
	}

	// 5. 两个端点，握手使用同一张账户表
	clients, err := router.NewAcceptor(dispatcher.EndpointClient, &cfg.ClientEndpoint, accounts,
		router.WithIdentityValidator(func(s string) error {
			_, err := identity.ParseClient(s)
			return err
		}),
		router.WithObserver(bm),
		router.WithLogger(l),
	)
	if err != nil {
		l.Error("failed to create client endpoint", "error", err)
		return
	}
	workers, err := router.NewAcceptor(dispatcher.EndpointWorker, &cfg.WorkerEndpoint, accounts,
		router.WithIdentityValidator(func(s string) error {
			_, err := identity.ParseWorker(s)
			return err
		}),
		router.WithObserver(bm),
		router.WithLogger(l),
	)
	if err != nil {
		l.Error("failed to create worker endpoint", "error", err)
		return
	}

	// 6. 分发循环
	disp := dispatcher.New(&cfg.Broker, clients, workers, account.NewGate(accounts),
		dispatcher.WithRecorder(bm),
		dispatcher.WithLogger(l),
	)

	application := app.NewBaseApp(
		app.WithName("broker"),
		app.WithLogger(l),
	)

	// 7. 可选：Redis 状态镜像与 etcd 注册
	reporterOpts := []status.Option{
		status.WithStats(bm),
		status.WithSystem(sys),
	}

	if cfg.Redis != nil {
		rc, err := redis.NewClient(cfg.Redis)
		if err != nil {
			l.Error("failed to create redis client", "error", err)
			return
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rc.Ping(pingCtx)
		cancel()
		if err != nil {
			l.Error("failed to ping redis", "error", err)
			_ = rc.Close()
			return
		}
		reporterOpts = append(reporterOpts, status.WithStore(rc))
		application.AppendCloser(rc)
	}

	var reg *serviceRegistrar
	if cfg.Registry != nil {
		registrar, err := etcd.NewRegistrar(cfg.Registry, l)
		if err != nil {
			l.Error("failed to create registrar", "error", err)
			return
		}
		static := map[string]string{
			"client_endpoint": cfg.ClientEndpoint.Addr,
			"worker_endpoint": cfg.WorkerEndpoint.Addr,
		}
		reg = &serviceRegistrar{
			registrar: registrar,
			info: &registry.ServiceInfo{
				ServiceName: "broker",
				Address:     cfg.ClientEndpoint.Addr,
				Metadata:    static,
			},
		}
		reporterOpts = append(reporterOpts, status.WithMetadataSink(registrar, static))
		application.AppendCloser(registrar)
	}

	reporter, err := status.NewReporter(&cfg.Status, disp, l, reporterOpts...)
	if err != nil {
		l.Error("failed to create status reporter", "error", err)
		return
	}

	// 8. 启动顺序：指标 → 分发循环 → worker 端点 → 客户端端点 → 注册 → 上报
	application.AppendServer(
		promClient,
		&systemServer{collector: sys, interval: cfg.SystemInterval},
		disp,
		workers,
		clients,
	)
	if reg != nil {
		application.AppendServer(reg)
	}
	application.AppendServer(reporter)

	// 9. 运行
	if err := application.Run(); err != nil {
		l.Error("broker exited with error", "error", err)
	}
}
