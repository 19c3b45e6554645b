// Package system 采集本进程的 CPU、内存与 goroutine 数。
package system

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/IntelLabs/networkgym/pkg/util/conc"
	"github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Stats 系统统计数据
type Stats struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryBytes   uint64    `json:"memory_bytes"`
	Goroutines    int       `json:"goroutines"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Collector 定期采集进程指标
type Collector struct {
	proc *process.Process

	mu     sync.RWMutex
	stats  Stats
	stopCh chan struct{}
	loop   *conc.Future[struct{}]
}

// New 创建采集器
func New() (*Collector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, errors.Wrap(err, "system: open current process")
	}
	return &Collector{proc: proc}, nil
}

// Start 立即采集一次并按 interval 周期采集
func (c *Collector) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	c.mu.Lock()
	if c.loop != nil {
		c.mu.Unlock()
		return
	}
	c.stopCh = make(chan struct{})
	stop := c.stopCh
	c.mu.Unlock()

	c.Collect()

	loop := conc.Go(func() (struct{}, error) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-stop:
				return struct{}{}, nil
			}
		}
	})

	c.mu.Lock()
	c.loop = loop
	c.mu.Unlock()
}

// Stop 停止采集
func (c *Collector) Stop() {
	c.mu.Lock()
	loop, stop := c.loop, c.stopCh
	c.loop, c.stopCh = nil, nil
	c.mu.Unlock()

	if loop != nil {
		close(stop)
		_ = loop.Err()
	}
}

// Collect 执行一次采集，单项失败时保留零值
func (c *Collector) Collect() Stats {
	var s Stats
	if pct, err := c.proc.CPUPercent(); err == nil {
		s.CPUPercent = pct
	}
	if info, err := c.proc.MemoryInfo(); err == nil {
		s.MemoryBytes = info.RSS
		if vm, err := mem.VirtualMemory(); err == nil && vm.Total > 0 {
			s.MemoryPercent = float64(info.RSS) / float64(vm.Total) * 100
		}
	}
	s.Goroutines = runtime.NumGoroutine()
	s.UpdatedAt = time.Now()

	c.mu.Lock()
	c.stats = s
	c.mu.Unlock()
	return s
}

// GetStats 最近一次采集结果
func (c *Collector) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}
