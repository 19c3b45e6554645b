package status

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/IntelLabs/networkgym/app/broker/internal/dispatcher"
	"github.com/IntelLabs/networkgym/app/broker/internal/identity"
	"github.com/IntelLabs/networkgym/app/broker/internal/metrics"
	"github.com/IntelLabs/networkgym/app/broker/internal/registry"
	"github.com/IntelLabs/networkgym/app/broker/internal/session"
	"github.com/IntelLabs/networkgym/pkg/metrics/system"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taken = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func peer(t *testing.T, kind identity.Kind, raw string) identity.Peer {
	t.Helper()
	p, err := identity.Parse(kind, raw)
	require.NoError(t, err)
	return p
}

func sampleSnapshot(t *testing.T) dispatcher.Snapshot {
	return dispatcher.Snapshot{
		Taken:   taken,
		Timeout: time.Minute,
		Idle: []registry.Worker{{
			Address:       peer(t, identity.KindWorker, "netgym-1-sim-b"),
			Capabilities:  []string{"nqos_split", "netgym-custom"},
			LastHeartbeat: taken.Add(-12 * time.Second),
		}},
		Sessions: []session.Session{{
			ID:           "s-1",
			Client:       peer(t, identity.KindClient, "acme-0"),
			Worker:       peer(t, identity.KindWorker, "acme-0-sim-a"),
			EnvName:      "acme-custom",
			LastActivity: taken.Add(-2 * time.Second),
		}},
	}
}

func TestBuild(t *testing.T) {
	doc := Build(sampleSnapshot(t))

	assert.Equal(t, 60.0, doc.WorkerTimeout)
	assert.Equal(t, 1, doc.IdleWorkers)
	assert.Equal(t, 1, doc.ActiveSessions)
	require.Len(t, doc.Rows, 2)

	assert.Equal(t, Row{
		Worker: "acme-0-sim-a", State: StateBusy, Client: "acme-0",
		Envs: []string{"acme-custom"}, Session: "s-1", LastSeen: 2,
	}, doc.Rows[0])
	assert.Equal(t, Row{
		Worker: "netgym-1-sim-b", State: StateIdle,
		Envs: []string{"nqos_split", "netgym-custom"}, LastSeen: 12,
	}, doc.Rows[1])
}

type fakeSource struct {
	snap dispatcher.Snapshot
	err  error
}

func (f *fakeSource) Snapshot(context.Context) (dispatcher.Snapshot, error) {
	return f.snap, f.err
}

type fakeStore struct {
	mu      sync.Mutex
	key     string
	value   []byte
	ttl     time.Duration
	channel string
	writes  int
}

func (f *fakeStore) SetAndPublish(_ context.Context, key string, value []byte, ttl time.Duration, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.key, f.value, f.ttl, f.channel = key, value, ttl, channel
	f.writes++
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

type fakeSink struct {
	mu  sync.Mutex
	md  map[string]string
	err error
}

func (f *fakeSink) UpdateMetadata(_ context.Context, md map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.md = md
	return f.err
}

type fakeStats struct{}

func (fakeStats) GetStats() metrics.Stats {
	return metrics.Stats{Relayed: 42, StartRate: 0.5, MatchHitRate: 75}
}

type fakeSystem struct{}

func (fakeSystem) GetStats() system.Stats {
	return system.Stats{CPUPercent: 12.5, MemoryBytes: 1024, Goroutines: 9}
}

func TestReportWritesStoreAndMetadata(t *testing.T) {
	store, sink := &fakeStore{}, &fakeSink{}
	r, err := NewReporter(&Config{KeyPrefix: "gym", TTL: 20 * time.Second}, &fakeSource{snap: sampleSnapshot(t)}, nil,
		WithStore(store),
		WithMetadataSink(sink, map[string]string{"client_endpoint": ":8088"}),
		WithStats(fakeStats{}),
		WithSystem(fakeSystem{}),
	)
	require.NoError(t, err)
	defer r.Stop()

	require.NoError(t, r.Report(context.Background()))

	assert.Equal(t, "gym:status", store.key)
	assert.Equal(t, "gym:events", store.channel)
	assert.Equal(t, 20*time.Second, store.ttl)
	var doc Document
	require.NoError(t, json.Unmarshal(store.value, &doc))
	assert.Len(t, doc.Rows, 2)

	assert.Equal(t, ":8088", sink.md["client_endpoint"])
	assert.Equal(t, "1", sink.md["idle_workers"])
	assert.Equal(t, "1", sink.md["active_sessions"])
	assert.Equal(t, "42", sink.md["relayed"])
	assert.Equal(t, "75.00", sink.md["match_hit_rate"])
	assert.Equal(t, "12.50", sink.md["cpu_percent"])
	assert.Equal(t, "9", sink.md["goroutines"])
	assert.Equal(t, taken.Format(time.RFC3339), sink.md["updated_at"])
}

func TestReportErrors(t *testing.T) {
	boom := errors.New("etcd down")
	r, err := NewReporter(nil, &fakeSource{snap: sampleSnapshot(t)}, nil, WithMetadataSink(&fakeSink{err: boom}, nil))
	require.NoError(t, err)
	defer r.Stop()
	assert.ErrorIs(t, r.Report(context.Background()), boom)

	r2, err := NewReporter(nil, &fakeSource{err: context.DeadlineExceeded}, nil, WithStore(&fakeStore{}))
	require.NoError(t, err)
	defer r2.Stop()
	assert.ErrorIs(t, r2.Report(context.Background()), context.DeadlineExceeded)
}

func TestReporterLoop(t *testing.T) {
	store := &fakeStore{}
	r, err := NewReporter(&Config{Interval: 10 * time.Millisecond}, &fakeSource{snap: sampleSnapshot(t)}, nil, WithStore(store))
	require.NoError(t, err)

	require.NoError(t, r.Start())
	require.Eventually(t, func() bool { return store.count() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, r.Stop())
}

func TestReporterDisabledWithoutSinks(t *testing.T) {
	r, err := NewReporter(nil, &fakeSource{}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Start())
	require.NoError(t, r.Stop())
}
