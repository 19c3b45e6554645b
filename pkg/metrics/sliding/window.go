// Package sliding 按时间分桶的滑动窗口统计。
package sliding

import (
	"sync"
	"time"

	"github.com/IntelLabs/networkgym/pkg/config"
	"github.com/cockroachdb/errors"
)

// WindowConfig 滑动窗口配置
type WindowConfig struct {
	// 窗口大小
	WindowSize time.Duration `mapstructure:"window_size" json:"window_size" yaml:"window_size" validate:"gt=0"`
	// 桶数量
	BucketCount int `mapstructure:"bucket_count" json:"bucket_count" yaml:"bucket_count" validate:"gt=0"`
}

// DefaultWindowConfig 默认配置
func DefaultWindowConfig() *WindowConfig {
	return &WindowConfig{
		WindowSize:  60 * time.Second,
		BucketCount: 60,
	}
}

type bucket struct {
	epoch      int64 // 桶对应的时间片序号
	count      int64
	totalTime  float64
	minLatency float64
	maxLatency float64
	successCnt int64
}

// Window 滑动窗口，桶在读写时按时间惰性复用，无后台协程
type Window struct {
	width   time.Duration
	size    time.Duration
	now     func() time.Time
	mu      sync.Mutex
	buckets []bucket
}

// NewWindow 创建滑动窗口
func NewWindow(cfg *WindowConfig) (*Window, error) {
	newCfg, err := config.MergeConfig(DefaultWindowConfig(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "merge window config")
	}
	if newCfg.BucketCount <= 0 || newCfg.WindowSize < time.Duration(newCfg.BucketCount) {
		return nil, errors.Newf("sliding: invalid window %s / %d buckets", newCfg.WindowSize, newCfg.BucketCount)
	}

	return &Window{
		width:   newCfg.WindowSize / time.Duration(newCfg.BucketCount),
		size:    newCfg.WindowSize,
		now:     time.Now,
		buckets: make([]bucket, newCfg.BucketCount),
	}, nil
}

// WithClock 替换时钟，仅用于测试
func (w *Window) WithClock(now func() time.Time) *Window {
	w.now = now
	return w
}

func (w *Window) epoch(t time.Time) int64 {
	return t.UnixNano() / int64(w.width)
}

// Record 记录一次操作
func (w *Window) Record(latency float64, success bool) {
	e := w.epoch(w.now())

	w.mu.Lock()
	defer w.mu.Unlock()

	b := &w.buckets[e%int64(len(w.buckets))]
	if b.epoch != e {
		*b = bucket{epoch: e, minLatency: latency}
	}
	b.count++
	b.totalTime += latency
	if success {
		b.successCnt++
	}
	if latency < b.minLatency {
		b.minLatency = latency
	}
	if latency > b.maxLatency {
		b.maxLatency = latency
	}
}

// Stats 统计结果
type Stats struct {
	QPS          float64 `json:"qps"`
	AvgLatency   float64 `json:"avg_latency"`
	MinLatency   float64 `json:"min_latency"`
	MaxLatency   float64 `json:"max_latency"`
	SuccessRate  float64 `json:"success_rate"` // 0-100
	TotalCount   int64   `json:"total_count"`
	SuccessCount int64   `json:"success_count"`
}

// GetStats 汇总窗口内的桶
func (w *Window) GetStats() Stats {
	cur := w.epoch(w.now())
	oldest := cur - int64(len(w.buckets)) + 1

	w.mu.Lock()
	defer w.mu.Unlock()

	var (
		s       Stats
		total   float64
		minSeen = -1.0
	)
	for _, b := range w.buckets {
		if b.count == 0 || b.epoch < oldest || b.epoch > cur {
			continue
		}
		s.TotalCount += b.count
		s.SuccessCount += b.successCnt
		total += b.totalTime
		if minSeen < 0 || b.minLatency < minSeen {
			minSeen = b.minLatency
		}
		if b.maxLatency > s.MaxLatency {
			s.MaxLatency = b.maxLatency
		}
	}

	s.QPS = float64(s.TotalCount) / w.size.Seconds()
	if s.TotalCount > 0 {
		s.AvgLatency = total / float64(s.TotalCount)
		s.SuccessRate = float64(s.SuccessCount) / float64(s.TotalCount) * 100
		s.MinLatency = minSeen
	}
	return s
}
