package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	c.Start(10 * time.Millisecond)
	defer c.Stop()

	s := c.GetStats()
	assert.Positive(t, s.Goroutines)
	assert.False(t, s.UpdatedAt.IsZero())

	// 重复启动无副作用
	c.Start(time.Second)
	c.Stop()
	c.Stop()
}
