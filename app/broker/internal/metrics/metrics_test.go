package metrics

import (
	"testing"
	"time"

	"github.com/IntelLabs/networkgym/app/broker/internal/dispatcher"
	"github.com/IntelLabs/networkgym/app/broker/internal/protocol"
	"github.com/IntelLabs/networkgym/pkg/network/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ dispatcher.Recorder = (*BrokerMetrics)(nil)
	_ router.Observer     = (*BrokerMetrics)(nil)
)

func TestRegisterAndRecord(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg))

	m.Message(dispatcher.EndpointClient, protocol.TypeStart)
	m.Message(dispatcher.EndpointWorker, protocol.Type("env-custom"))
	m.Relayed(dispatcher.DirectionToWorker)
	m.Relayed(dispatcher.DirectionToClient)
	m.Rejected("quota")
	m.Session(dispatcher.ResultStarted)
	m.Evicted(2)
	m.MatchDuration(50 * time.Microsecond)
	m.State(3, 1)
	m.OnHandshake("worker", true)
	m.OnHandshake("worker", false)
	m.OnDrop("client", "rate_limited")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("client", "env-start")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("worker", "other")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("quota")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EvictionsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.IdleWorkers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandshakesTotal.WithLabelValues("worker", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedTotal.WithLabelValues("client", "rate_limited")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.MatchSeconds))
}

func TestStatsMatchHitRate(t *testing.T) {
	m, err := New(&Config{Namespace: "test"})
	require.NoError(t, err)

	m.Session(dispatcher.ResultStarted)
	m.Session(dispatcher.ResultStarted)
	m.Rejected("no_worker")
	m.Session(dispatcher.ResultCompleted)
	m.Relayed(dispatcher.DirectionToClient)
	m.State(4, 2)

	s := m.GetStats()
	assert.Equal(t, int64(4), s.IdleWorkers)
	assert.Equal(t, int64(2), s.ActiveSessions)
	assert.Equal(t, int64(1), s.Relayed)
	assert.InDelta(t, 66.67, s.MatchHitRate, 0.01)
	assert.InDelta(t, 3.0/60, s.StartRate, 1e-9)
}
