package etcd

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/IntelLabs/networkgym/pkg/logger"
	"github.com/IntelLabs/networkgym/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "/networkgym/broker/10.0.0.1:8088", Key("/networkgym", "broker", "10.0.0.1:8088"))
	assert.Equal(t, "/ns/broker/a", Key("/ns/", "broker", "a"))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Namespace = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/networkgym", cfg.Namespace)

	cfg.TTL = 500 * time.Millisecond
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Endpoints = nil
	assert.Error(t, cfg.Validate())
}

// 需要本地 etcd，设置 NETGYM_TEST_ETCD=host:port 启用
func TestRegistrarLifecycle(t *testing.T) {
	endpoint := os.Getenv("NETGYM_TEST_ETCD")
	if endpoint == "" {
		t.Skip("NETGYM_TEST_ETCD not set")
	}

	cfg := &Config{Endpoints: strings.Split(endpoint, ","), Namespace: "/netgym-test", TTL: 2 * time.Second}
	r, err := NewRegistrar(cfg, logger.NewNoop())
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.ErrorIs(t, r.UpdateMetadata(ctx, nil), ErrNotRegistered)

	info := &registry.ServiceInfo{ServiceName: "broker", Address: "127.0.0.1:8088"}
	require.NoError(t, r.Register(ctx, info))
	require.NoError(t, r.UpdateMetadata(ctx, map[string]string{"idle_workers": "3"}))

	resp, err := r.client.Get(ctx, Key(cfg.Namespace, "broker", info.Address))
	require.NoError(t, err)
	require.Len(t, resp.Kvs, 1)
	assert.Contains(t, string(resp.Kvs[0].Value), `"idle_workers":"3"`)

	require.NoError(t, r.Deregister(ctx))
	resp, err = r.client.Get(ctx, Key(cfg.Namespace, "broker", info.Address), clientv3.WithCountOnly())
	require.NoError(t, err)
	assert.Zero(t, resp.Count)
}
