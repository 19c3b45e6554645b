package router

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBadPassword = errors.New("bad password")

var testAuth = AuthenticatorFunc(func(username, secret string) error {
	if secret != username+"-secret" {
		return errBadPassword
	}
	return nil
})

func TestDealerHandshakeOverPipe(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		parts, err := ReadFrame(server, 0)
		if err != nil {
			return
		}
		reply := [][]byte{[]byte(CmdReady)}
		if string(parts[2]) != "pw" {
			reply = [][]byte{[]byte(CmdError), []byte("denied")}
		}
		frame, _ := AppendFrame(nil, reply...)
		_, _ = server.Write(frame)
	}()

	d, err := NewDealer(client, DealerConfig{Username: "alice", Password: "pw", Identity: "alice-0"})
	require.NoError(t, err)
	assert.Equal(t, "alice-0", d.Identity())
}

func TestDealerHandshakeRejected(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		if _, err := ReadFrame(server, 0); err != nil {
			return
		}
		frame, _ := AppendFrame(nil, []byte(CmdError), []byte("denied"))
		_, _ = server.Write(frame)
	}()

	_, err := NewDealer(client, DealerConfig{Username: "alice", Password: "nope", Identity: "alice-0"})
	require.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Contains(t, err.Error(), "denied")
}

func TestIdentityAccount(t *testing.T) {
	assert.Equal(t, "alice", identityAccount("alice-0"))
	assert.Equal(t, "alice", identityAccount("alice-0-host-a"))
	assert.Equal(t, "alice", identityAccount("alice"))
}

func TestServerConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultServerConfig().Validate())

	var nilCfg *ServerConfig
	assert.ErrorIs(t, nilCfg.Validate(), ErrInvalidConfig)

	tests := []struct {
		name   string
		mutate func(*ServerConfig)
	}{
		{"empty addr", func(c *ServerConfig) { c.Addr = "" }},
		{"udp", func(c *ServerConfig) { c.Network = "udp" }},
		{"zero max size", func(c *ServerConfig) { c.MaxMessageSize = 0 }},
		{"zero inbox", func(c *ServerConfig) { c.InboxSize = 0 }},
		{"rate without burst", func(c *ServerConfig) { c.RateLimit = 10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

type countingObserver struct {
	mu       sync.Mutex
	accepted int
	rejected int
	drops    map[string]int
}

func (o *countingObserver) OnHandshake(_ string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ok {
		o.accepted++
	} else {
		o.rejected++
	}
}

func (o *countingObserver) OnDrop(_, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.drops == nil {
		o.drops = map[string]int{}
	}
	o.drops[reason]++
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startAcceptor(t *testing.T, opts ...Option) (*Acceptor, string) {
	t.Helper()
	cfg := DefaultServerConfig()
	cfg.Addr = freeAddr(t)
	cfg.Multicore = false
	cfg.NumEventLoop = 1

	a, err := NewAcceptor("test", cfg, testAuth, opts...)
	require.NoError(t, err)
	require.NoError(t, a.Start())
	t.Cleanup(func() { _ = a.Stop() })
	return a, cfg.Addr
}

func dial(t *testing.T, addr, user, identity string) (*Dealer, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return Dial(ctx, "tcp", addr, DealerConfig{
		Username:    user,
		Password:    user + "-secret",
		Identity:    identity,
		DialTimeout: time.Second,
	})
}

func recvMessage(t *testing.T, a *Acceptor) Message {
	t.Helper()
	select {
	case m := <-a.Recv():
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestAcceptorRoutesByIdentity(t *testing.T) {
	obs := &countingObserver{}
	a, addr := startAcceptor(t, WithObserver(obs))

	d, err := dial(t, addr, "alice", "alice-0")
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Send([]byte(`{"type":"env-hello"}`)))
	m := recvMessage(t, a)
	assert.Equal(t, "alice-0", m.Identity)
	assert.Equal(t, [][]byte{[]byte(`{"type":"env-hello"}`)}, m.Parts)

	require.NoError(t, a.Send("alice-0", []byte("reply"), []byte("second")))
	require.NoError(t, d.SetReadDeadline(time.Now().Add(2*time.Second)))
	parts, err := d.Recv()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("reply"), []byte("second")}, parts)

	assert.Equal(t, 1, a.Connected())
	assert.ErrorIs(t, a.Send("bob-0", []byte("x")), ErrPeerNotFound)

	obs.mu.Lock()
	assert.Equal(t, 1, obs.accepted)
	obs.mu.Unlock()
}

func TestAcceptorRejectsBadHandshake(t *testing.T) {
	_, addr := startAcceptor(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Dial(ctx, "tcp", addr, DealerConfig{Username: "alice", Password: "wrong", Identity: "alice-0"})
	require.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Contains(t, err.Error(), "bad password")

	_, err = dial(t, addr, "alice", "bob-0")
	require.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Contains(t, err.Error(), "does not belong")
}

func TestAcceptorIdentityValidator(t *testing.T) {
	_, addr := startAcceptor(t, WithIdentityValidator(func(identity string) error {
		if identity == "alice" {
			return errors.New("missing instance")
		}
		return nil
	}))

	_, err := dial(t, addr, "alice", "alice")
	require.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Contains(t, err.Error(), "missing instance")
}

func TestAcceptorReconnectTakesOver(t *testing.T) {
	a, addr := startAcceptor(t)

	first, err := dial(t, addr, "alice", "alice-0")
	require.NoError(t, err)
	defer first.Close()

	second, err := dial(t, addr, "alice", "alice-0")
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = first.Recv()
	assert.Error(t, err)

	require.NoError(t, a.Send("alice-0", []byte("hello")))
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	parts, err := second.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(parts[0]))
	assert.Equal(t, 1, a.Connected())
}

func TestAcceptorStartTwice(t *testing.T) {
	a, _ := startAcceptor(t)
	assert.ErrorIs(t, a.Start(), ErrServerAlreadyStarted)
}

func TestAcceptorRateLimit(t *testing.T) {
	obs := &countingObserver{}
	cfg := DefaultServerConfig()
	cfg.Addr = freeAddr(t)
	cfg.Multicore = false
	cfg.NumEventLoop = 1
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1

	a, err := NewAcceptor("test", cfg, testAuth, WithObserver(obs))
	require.NoError(t, err)
	require.NoError(t, a.Start())
	defer a.Stop()

	d, err := dial(t, cfg.Addr, "alice", "alice-0")
	require.NoError(t, err)
	defer d.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Send([]byte("tick")))
	}
	assert.Equal(t, "tick", string(recvMessage(t, a).Parts[0]))

	require.Eventually(t, func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return obs.drops["rate_limited"] == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, a.Recv())
}
