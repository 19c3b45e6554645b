package status

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/IntelLabs/networkgym/app/broker/internal/dispatcher"
	"github.com/IntelLabs/networkgym/app/broker/internal/metrics"
	"github.com/IntelLabs/networkgym/pkg/config"
	"github.com/IntelLabs/networkgym/pkg/logger"
	"github.com/IntelLabs/networkgym/pkg/metrics/system"
	"github.com/IntelLabs/networkgym/pkg/util/conc"
	"github.com/cockroachdb/errors"
)

// Config 上报配置
type Config struct {
	// 上报间隔
	Interval time.Duration `mapstructure:"interval" json:"interval" yaml:"interval"`
	// Redis 中状态文档的过期时间，broker 退出后文档自动消失
	TTL time.Duration `mapstructure:"ttl" json:"ttl" yaml:"ttl"`
	// Redis key 前缀，文档写入 {prefix}:status，通知发布到 {prefix}:events
	KeyPrefix string `mapstructure:"key_prefix" json:"key_prefix" yaml:"key_prefix"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Interval:  5 * time.Second,
		TTL:       30 * time.Second,
		KeyPrefix: "networkgym",
	}
}

// SnapshotSource 由 Dispatcher 实现
type SnapshotSource interface {
	Snapshot(ctx context.Context) (dispatcher.Snapshot, error)
}

// Store 状态文档存储，由 pkg/database/redis.Client 实现
type Store interface {
	SetAndPublish(ctx context.Context, key string, value []byte, ttl time.Duration, channel string) error
}

// MetadataSink 服务元数据，由 etcd Registrar 实现
type MetadataSink interface {
	UpdateMetadata(ctx context.Context, metadata map[string]string) error
}

// StatsSource 由 BrokerMetrics 实现
type StatsSource interface {
	GetStats() metrics.Stats
}

// SystemSource 由 system.Collector 实现
type SystemSource interface {
	GetStats() system.Stats
}

// Reporter 定期上报状态
type Reporter struct {
	config *Config
	source SnapshotSource
	logger logger.Logger

	store    Store
	sink     MetadataSink
	stats    StatsSource
	sys      SystemSource
	pool     *conc.Pool[struct{}]
	metadata map[string]string // 固定元数据，如 endpoint 地址

	mu     sync.Mutex
	cancel context.CancelFunc
	loop   *conc.Future[struct{}]
}

// Option Reporter 选项
type Option func(*Reporter)

// WithStore 写入 Redis
func WithStore(s Store) Option {
	return func(r *Reporter) { r.store = s }
}

// WithMetadataSink 上报 etcd 元数据，static 为固定字段
func WithMetadataSink(s MetadataSink, static map[string]string) Option {
	return func(r *Reporter) {
		r.sink = s
		r.metadata = static
	}
}

// WithStats 附带统计数据
func WithStats(s StatsSource) Option {
	return func(r *Reporter) { r.stats = s }
}

// WithSystem 附带进程资源数据
func WithSystem(s SystemSource) Option {
	return func(r *Reporter) { r.sys = s }
}

// NewReporter 创建上报器
func NewReporter(cfg *Config, source SnapshotSource, l logger.Logger, opts ...Option) (*Reporter, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "merge status config")
	}
	if newCfg.Interval <= 0 {
		return nil, errors.Newf("status: interval %s must be positive", newCfg.Interval)
	}
	if l == nil {
		l = logger.NewNoop()
	}

	pool, err := conc.NewPool[struct{}](2)
	if err != nil {
		return nil, err
	}

	r := &Reporter{
		config: newCfg,
		source: source,
		logger: l.Named("status"),
		pool:   pool,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// StatusKey 状态文档 key
func (r *Reporter) StatusKey() string {
	return r.config.KeyPrefix + ":status"
}

// EventsChannel 状态更新通知 channel
func (r *Reporter) EventsChannel() string {
	return r.config.KeyPrefix + ":events"
}

// Start 启动上报循环
func (r *Reporter) Start() error {
	if r.store == nil && r.sink == nil {
		r.logger.Info("status reporter disabled, no redis or etcd configured")
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loop != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.loop = conc.Go(func() (struct{}, error) {
		r.run(ctx)
		return struct{}{}, nil
	})

	r.logger.Info("status reporter started", "interval", r.config.Interval, "key", r.StatusKey())
	return nil
}

// Stop 停止上报
func (r *Reporter) Stop() error {
	r.mu.Lock()
	cancel, loop := r.cancel, r.loop
	r.cancel, r.loop = nil, nil
	r.mu.Unlock()

	if loop != nil {
		cancel()
		_ = loop.Err()
	}
	r.pool.Release()
	return nil
}

func (r *Reporter) run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Report(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("status report failed", "error", err)
			}
		}
	}
}

// Report 执行一次上报，Redis 与 etcd 并行写入
func (r *Reporter) Report(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.Interval)
	defer cancel()

	snap, err := r.source.Snapshot(ctx)
	if err != nil {
		return errors.Wrap(err, "take snapshot")
	}
	doc := Build(snap)

	var futures []*conc.Future[struct{}]
	if r.store != nil {
		futures = append(futures, r.pool.Submit(func() (struct{}, error) {
			return struct{}{}, r.writeDocument(ctx, doc)
		}))
	}
	if r.sink != nil {
		futures = append(futures, r.pool.Submit(func() (struct{}, error) {
			return struct{}{}, r.sink.UpdateMetadata(ctx, r.buildMetadata(doc))
		}))
	}
	if err := conc.AwaitAll(futures...); err != nil {
		return err
	}

	r.logger.Debug("status reported", "idle", doc.IdleWorkers, "sessions", doc.ActiveSessions)
	return nil
}

func (r *Reporter) writeDocument(ctx context.Context, doc Document) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "marshal status document")
	}
	if err := r.store.SetAndPublish(ctx, r.StatusKey(), b, r.config.TTL, r.EventsChannel()); err != nil {
		return errors.Wrap(err, "write status document")
	}
	return nil
}

func (r *Reporter) buildMetadata(doc Document) map[string]string {
	md := make(map[string]string, len(r.metadata)+10)
	for k, v := range r.metadata {
		md[k] = v
	}
	md["idle_workers"] = strconv.Itoa(doc.IdleWorkers)
	md["active_sessions"] = strconv.Itoa(doc.ActiveSessions)

	if r.stats != nil {
		s := r.stats.GetStats()
		md["relayed"] = strconv.FormatInt(s.Relayed, 10)
		md["start_rate"] = strconv.FormatFloat(s.StartRate, 'f', 2, 64)
		md["match_hit_rate"] = strconv.FormatFloat(s.MatchHitRate, 'f', 2, 64)
	}
	if r.sys != nil {
		s := r.sys.GetStats()
		md["cpu_percent"] = strconv.FormatFloat(s.CPUPercent, 'f', 2, 64)
		md["memory_percent"] = strconv.FormatFloat(s.MemoryPercent, 'f', 2, 64)
		md["memory_bytes"] = strconv.FormatUint(s.MemoryBytes, 10)
		md["goroutines"] = strconv.Itoa(s.Goroutines)
	}
	md["updated_at"] = doc.Taken.Format(time.RFC3339)
	return md
}
