// Package metrics broker 的 Prometheus 指标。
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/IntelLabs/networkgym/app/broker/internal/protocol"
	"github.com/IntelLabs/networkgym/pkg/config"
	"github.com/IntelLabs/networkgym/pkg/metrics/sliding"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Config 指标配置
type Config struct {
	Namespace string `mapstructure:"namespace" json:"namespace" yaml:"namespace"`
	// 匹配命中率统计窗口
	MatchWindow sliding.WindowConfig `mapstructure:"match_window" json:"match_window" yaml:"match_window"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Namespace:   "networkgym",
		MatchWindow: *sliding.DefaultWindowConfig(),
	}
}

// BrokerMetrics broker 指标，同时实现分发统计与端点事件回调
type BrokerMetrics struct {
	IdleWorkers    prometheus.Gauge
	ActiveSessions prometheus.Gauge

	MessagesTotal   *prometheus.CounterVec // endpoint, type
	RelayedTotal    *prometheus.CounterVec // direction
	RejectionsTotal *prometheus.CounterVec // reason
	SessionsTotal   *prometheus.CounterVec // result
	EvictionsTotal  prometheus.Counter
	HandshakesTotal *prometheus.CounterVec // endpoint, result
	DroppedTotal    *prometheus.CounterVec // endpoint, reason
	MatchSeconds    prometheus.Histogram

	// 用于状态上报
	idle     atomic.Int64
	sessions atomic.Int64
	relayed  atomic.Int64
	window   *sliding.Window
}

// New 创建指标
func New(cfg *Config) (*BrokerMetrics, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "merge metrics config")
	}
	window, err := sliding.NewWindow(&newCfg.MatchWindow)
	if err != nil {
		return nil, errors.Wrap(err, "create match window")
	}

	ns := newCfg.Namespace
	return &BrokerMetrics{
		IdleWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "idle_workers", Help: "空闲 worker 数",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "active_sessions", Help: "进行中的会话数",
		}),
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "messages_total", Help: "按端点与类型统计的入站消息",
		}, []string{"endpoint", "type"}),
		RelayedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "relayed_total", Help: "转发的消息数",
		}, []string{"direction"}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "rejections_total", Help: "被拒绝的客户端请求",
		}, []string{"reason"}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "sessions_total", Help: "会话开始与结束次数",
		}, []string{"result"}),
		EvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "evictions_total", Help: "因心跳超时移除的 worker 数",
		}),
		HandshakesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "handshakes_total", Help: "连接握手结果",
		}, []string{"endpoint", "result"}),
		DroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "dropped_total", Help: "端点丢弃的消息",
		}, []string{"endpoint", "reason"}),
		MatchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "match_duration_seconds",
			Help:      "空闲 worker 匹配耗时（秒）",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		window: window,
	}, nil
}

// Register 注册指标到 Prometheus Registry
func (m *BrokerMetrics) Register(registerer prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.IdleWorkers,
		m.ActiveSessions,
		m.MessagesTotal,
		m.RelayedTotal,
		m.RejectionsTotal,
		m.SessionsTotal,
		m.EvictionsTotal,
		m.HandshakesTotal,
		m.DroppedTotal,
		m.MatchSeconds,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return errors.Wrap(err, "register broker metrics")
		}
	}
	return nil
}

// Message 入站消息
func (m *BrokerMetrics) Message(endpoint string, t protocol.Type) {
	label := string(t)
	if !t.Known() {
		label = "other"
	}
	m.MessagesTotal.WithLabelValues(endpoint, label).Inc()
}

// Relayed 转发
func (m *BrokerMetrics) Relayed(direction string) {
	m.relayed.Add(1)
	m.RelayedTotal.WithLabelValues(direction).Inc()
}

// Rejected 拒绝
func (m *BrokerMetrics) Rejected(reason string) {
	m.RejectionsTotal.WithLabelValues(reason).Inc()
	if reason == "no_worker" {
		m.window.Record(0, false)
	}
}

// Session 会话事件，started 计入匹配命中
func (m *BrokerMetrics) Session(result string) {
	m.SessionsTotal.WithLabelValues(result).Inc()
	if result == "started" {
		m.window.Record(0, true)
	}
}

// Evicted 超时移除
func (m *BrokerMetrics) Evicted(n int) {
	m.EvictionsTotal.Add(float64(n))
}

// MatchDuration 匹配耗时
func (m *BrokerMetrics) MatchDuration(d time.Duration) {
	m.MatchSeconds.Observe(d.Seconds())
}

// State 当前空闲 worker 与会话数
func (m *BrokerMetrics) State(idle, sessions int) {
	m.idle.Store(int64(idle))
	m.sessions.Store(int64(sessions))
	m.IdleWorkers.Set(float64(idle))
	m.ActiveSessions.Set(float64(sessions))
}

// OnHandshake 端点握手结果
func (m *BrokerMetrics) OnHandshake(endpoint string, ok bool) {
	result := "accepted"
	if !ok {
		result = "rejected"
	}
	m.HandshakesTotal.WithLabelValues(endpoint, result).Inc()
}

// OnDrop 端点丢弃消息
func (m *BrokerMetrics) OnDrop(endpoint, reason string) {
	m.DroppedTotal.WithLabelValues(endpoint, reason).Inc()
}

// Stats 状态上报用的汇总数据
type Stats struct {
	IdleWorkers    int64   `json:"idle_workers"`
	ActiveSessions int64   `json:"active_sessions"`
	Relayed        int64   `json:"relayed"`
	StartRate      float64 `json:"start_rate"`     // 窗口内每秒 env-start 数
	MatchHitRate   float64 `json:"match_hit_rate"` // 0-100
}

// GetStats 获取汇总数据
func (m *BrokerMetrics) GetStats() Stats {
	w := m.window.GetStats()
	return Stats{
		IdleWorkers:    m.idle.Load(),
		ActiveSessions: m.sessions.Load(),
		Relayed:        m.relayed.Load(),
		StartRate:      w.QPS,
		MatchHitRate:   w.SuccessRate,
	}
}
