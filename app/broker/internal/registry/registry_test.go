package registry

import (
	"testing"
	"time"

	"github.com/IntelLabs/networkgym/app/broker/internal/identity"
	"github.com/IntelLabs/networkgym/app/broker/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func worker(t *testing.T, raw string) identity.Peer {
	t.Helper()
	p, err := identity.ParseWorker(raw)
	require.NoError(t, err)
	return p
}

func addresses(ws []Worker) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Address.String())
	}
	return out
}

func TestAnnounceKeepsRegistrationOrder(t *testing.T) {
	r := New(time.Minute, session.NewRouter())
	t0 := time.Unix(1000, 0)

	a, b := worker(t, "official-0-a"), worker(t, "official-1-b")
	_, err := r.Announce(a, []string{"nqos_split"}, t0)
	require.NoError(t, err)
	_, err = r.Announce(b, []string{"nqos_split"}, t0.Add(time.Second))
	require.NoError(t, err)

	// 刷新不改变顺序
	_, err = r.Announce(a, []string{"nqos_split", "qos_steer"}, t0.Add(2*time.Second))
	require.NoError(t, err)

	idle := r.Idle()
	assert.Equal(t, []string{"official-0-a", "official-1-b"}, addresses(idle))
	assert.Equal(t, []string{"nqos_split", "qos_steer"}, idle[0].Capabilities)
	assert.Equal(t, t0.Add(2*time.Second), idle[0].LastHeartbeat)
	assert.Equal(t, t0, idle[0].RegisteredAt)

	w, ok := r.TakeMatching("nqos_split", t0.Add(3*time.Second))
	require.True(t, ok)
	assert.Equal(t, a, w.Address)
	assert.False(t, r.Contains(a))
	assert.Equal(t, 1, r.Len())
}

func TestTakeMatchingMiss(t *testing.T) {
	r := New(time.Minute, nil)
	now := time.Unix(1000, 0)
	_, _ = r.Announce(worker(t, "acme-0-a"), []string{"acme-custom"}, now)

	_, ok := r.TakeMatching("beta-custom", now)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestStaleWorkerNeverMatches(t *testing.T) {
	r := New(60*time.Second, nil)
	t0 := time.Unix(1000, 0)
	stale, fresh := worker(t, "acme-0-old"), worker(t, "acme-1-new")

	_, _ = r.Announce(stale, []string{"acme-custom"}, t0)
	_, _ = r.Announce(fresh, []string{"acme-custom"}, t0.Add(30*time.Second))

	// 恰好到达超时阈值即视为超时
	now := t0.Add(60 * time.Second)
	w, ok := r.TakeMatching("acme-custom", now)
	require.True(t, ok)
	assert.Equal(t, fresh, w.Address)

	_, ok = r.TakeMatching("acme-custom", now)
	assert.False(t, ok)
	assert.True(t, r.Contains(stale))
}

func TestEvictStale(t *testing.T) {
	r := New(10*time.Second, nil)
	t0 := time.Unix(1000, 0)
	a, b, c := worker(t, "acme-0-a"), worker(t, "acme-1-b"), worker(t, "acme-2-c")

	_, _ = r.Announce(a, nil, t0)
	_, _ = r.Announce(b, nil, t0.Add(5*time.Second))
	_, _ = r.Announce(c, nil, t0.Add(9*time.Second))

	evicted := r.EvictStale(t0.Add(15 * time.Second))
	assert.Equal(t, []string{"acme-0-a", "acme-1-b"}, addresses(evicted))
	assert.Equal(t, []string{"acme-2-c"}, addresses(r.Idle()))
	assert.False(t, r.Contains(a))

	assert.Empty(t, r.EvictStale(t0.Add(15*time.Second)))
}

func TestAnnounceWhileBoundSupersedesSession(t *testing.T) {
	router := session.NewRouter()
	r := New(time.Minute, router)
	now := time.Unix(1000, 0)

	w := worker(t, "acme-0-a")
	c, err := identity.ParseClient("acme-0")
	require.NoError(t, err)

	_, _ = r.Announce(w, []string{"acme-custom"}, now)
	taken, ok := r.TakeMatching("acme-custom", now)
	require.True(t, ok)
	bound, err := router.Bind(c, taken.Address, "acme-custom", now)
	require.NoError(t, err)

	superseded, err := r.Announce(w, []string{"acme-custom"}, now.Add(time.Second))
	assert.ErrorIs(t, err, ErrAlreadyBusy)
	require.NotNil(t, superseded)
	assert.Equal(t, bound.ID, superseded.ID)

	// 不会同时处于空闲池和会话中
	_, stillBound := router.LookupByWorker(w)
	assert.False(t, stillBound)
	assert.True(t, r.Contains(w))
}

func TestRemove(t *testing.T) {
	r := New(0, nil)
	assert.Equal(t, DefaultTimeout, r.Timeout())

	a, b := worker(t, "acme-0-a"), worker(t, "acme-1-b")
	_, _ = r.Announce(a, nil, time.Now())
	_, _ = r.Announce(b, nil, time.Now())

	_, ok := r.Remove(a)
	assert.True(t, ok)
	_, ok = r.Remove(a)
	assert.False(t, ok)
	assert.Equal(t, []string{"acme-1-b"}, addresses(r.Idle()))
}

func TestRestoreKeepsRegistrationSlot(t *testing.T) {
	r := New(time.Minute, nil)
	t0 := time.Unix(1000, 0)

	a, b, c := worker(t, "acme-0-a"), worker(t, "acme-1-b"), worker(t, "acme-2-c")
	_, _ = r.Announce(a, []string{"x"}, t0)
	_, _ = r.Announce(b, []string{"y"}, t0)
	_, _ = r.Announce(c, []string{"x", "y"}, t0)

	taken, ok := r.TakeMatching("y", t0)
	require.True(t, ok)
	assert.Equal(t, "acme-1-b", taken.Address.String())
	assert.Equal(t, []string{"acme-0-a", "acme-2-c"}, addresses(r.Idle()))

	assert.True(t, r.Restore(taken))
	assert.Equal(t, []string{"acme-0-a", "acme-1-b", "acme-2-c"}, addresses(r.Idle()))

	again, ok := r.TakeMatching("y", t0)
	require.True(t, ok)
	assert.Equal(t, "acme-1-b", again.Address.String())

	// 已重新宣告的地址不会被覆盖
	_, _ = r.Announce(b, []string{"z"}, t0.Add(time.Second))
	assert.False(t, r.Restore(again))
	assert.Equal(t, []string{"acme-0-a", "acme-2-c", "acme-1-b"}, addresses(r.Idle()))
}
