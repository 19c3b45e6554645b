// Package prometheus 封装独立的指标注册表与 HTTP 导出。
package prometheus

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/IntelLabs/networkgym/pkg/logger"
	"github.com/IntelLabs/networkgym/pkg/util/conc"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Client Prometheus 客户端
type Client struct {
	config   *Config
	registry *prometheus.Registry
	logger   logger.Logger

	httpServer *http.Server
	serving    *conc.Future[struct{}]

	closed atomic.Bool
}

// New 创建客户端；HTTP 导出在 Start 时才监听
func New(cfg *Config, l logger.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.NewNoop()
	}

	c := &Client{
		config:   cfg,
		registry: prometheus.NewRegistry(),
		logger:   l.Named("prometheus"),
	}

	if cfg.EnableGoCollector {
		c.registry.MustRegister(collectors.NewGoCollector())
	}
	if cfg.EnableProcessCollector {
		c.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return c, nil
}

// Registerer 供业务指标注册
func (c *Client) Registerer() prometheus.Registerer {
	return c.registry
}

// Gatherer 供测试读取
func (c *Client) Gatherer() prometheus.Gatherer {
	return c.registry
}

// Namespace 指标命名空间
func (c *Client) Namespace() string {
	return c.config.Namespace
}

// Handler 返回 HTTP Handler
func (c *Client) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Start 启动 HTTP 导出，未启用时直接返回
func (c *Client) Start() error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !c.config.HTTPServer.Enabled {
		return nil
	}

	ln, err := net.Listen("tcp", c.config.HTTPServer.Addr)
	if err != nil {
		return errors.Wrapf(err, "prometheus: listen %s", c.config.HTTPServer.Addr)
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.HTTPServer.Path, c.Handler())
	c.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  c.config.HTTPServer.Timeout,
		WriteTimeout: c.config.HTTPServer.Timeout,
	}

	c.serving = conc.Go(func() (struct{}, error) {
		if err := c.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics http server exited", "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	})

	c.logger.Info("metrics exporter listening", "addr", ln.Addr().String(), "path", c.config.HTTPServer.Path)
	return nil
}

// Stop 关闭 HTTP 导出
func (c *Client) Stop() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}
	if c.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "prometheus: shutdown http server")
	}
	return c.serving.Err()
}
