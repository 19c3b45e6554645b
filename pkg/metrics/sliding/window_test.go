package sliding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowStats(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	w, err := NewWindow(&WindowConfig{WindowSize: 10 * time.Second, BucketCount: 10})
	require.NoError(t, err)
	w.WithClock(func() time.Time { return now })

	w.Record(0.002, true)
	w.Record(0.004, false)
	now = now.Add(3 * time.Second)
	w.Record(0.006, true)

	s := w.GetStats()
	assert.Equal(t, int64(3), s.TotalCount)
	assert.Equal(t, int64(2), s.SuccessCount)
	assert.InDelta(t, 0.3, s.QPS, 1e-9)
	assert.InDelta(t, 0.004, s.AvgLatency, 1e-9)
	assert.InDelta(t, 0.002, s.MinLatency, 1e-9)
	assert.InDelta(t, 0.006, s.MaxLatency, 1e-9)
	assert.InDelta(t, 66.666, s.SuccessRate, 0.01)
}

func TestWindowExpiresOldBuckets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	w, err := NewWindow(&WindowConfig{WindowSize: 10 * time.Second, BucketCount: 10})
	require.NoError(t, err)
	w.WithClock(func() time.Time { return now })

	w.Record(0.001, true)
	now = now.Add(15 * time.Second)
	assert.Equal(t, int64(0), w.GetStats().TotalCount)

	// 复用同一个桶位时旧数据被清空
	now = now.Add(5 * time.Second)
	w.Record(0.003, true)
	s := w.GetStats()
	assert.Equal(t, int64(1), s.TotalCount)
	assert.InDelta(t, 0.003, s.MinLatency, 1e-9)
}

func TestNewWindowDefaults(t *testing.T) {
	w, err := NewWindow(nil)
	require.NoError(t, err)
	assert.Equal(t, time.Second, w.width)
}
