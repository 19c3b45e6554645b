// Package etcd 基于 etcd 租约的服务注册。
package etcd

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/IntelLabs/networkgym/pkg/config"
	"github.com/IntelLabs/networkgym/pkg/logger"
	"github.com/IntelLabs/networkgym/pkg/registry"
	"github.com/IntelLabs/networkgym/pkg/util/conc"
	"github.com/cockroachdb/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// ErrNotRegistered 尚未注册
var ErrNotRegistered = errors.New("etcd: service not registered")

// Registrar 基于 etcd 的服务注册器
type Registrar struct {
	client *clientv3.Client
	config *Config
	logger logger.Logger

	mu      sync.Mutex
	info    *registry.ServiceInfo
	leaseID clientv3.LeaseID
	cancel  context.CancelFunc
	loop    *conc.Future[struct{}]
}

var _ registry.Registrar = (*Registrar)(nil)

// NewRegistrar 创建 etcd 服务注册器
func NewRegistrar(cfg *Config, l logger.Logger) (*Registrar, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "merge etcd config")
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.Default()
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   newCfg.Endpoints,
		DialTimeout: newCfg.DialTimeout,
		Username:    newCfg.Username,
		Password:    newCfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create etcd client")
	}

	return &Registrar{
		client: client,
		config: newCfg,
		logger: l.Named("registry.etcd"),
	}, nil
}

// Key 服务注册 key：{namespace}/{service}/{address}
func Key(namespace, serviceName, address string) string {
	return strings.TrimRight(namespace, "/") + "/" + serviceName + "/" + address
}

// Register 注册服务并启动租约保活
func (r *Registrar) Register(ctx context.Context, info *registry.ServiceInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.info != nil {
		return errors.Newf("etcd: %s already registered", r.info.Address)
	}
	cp := *info
	r.info = &cp

	if err := r.putWithNewLease(ctx); err != nil {
		r.info = nil
		return err
	}

	r.logger.Info("service registered",
		"service", info.ServiceName,
		"address", info.Address,
		"lease_id", int64(r.leaseID),
	)
	r.startKeepAlive()
	return nil
}

// putWithNewLease 申请租约并写入，调用方持有锁
func (r *Registrar) putWithNewLease(ctx context.Context) error {
	lease, err := r.client.Grant(ctx, int64(r.config.TTL/time.Second))
	if err != nil {
		return errors.Wrap(err, "grant lease")
	}
	r.leaseID = lease.ID
	return r.put(ctx)
}

func (r *Registrar) put(ctx context.Context) error {
	value, err := json.Marshal(r.info)
	if err != nil {
		return errors.Wrap(err, "marshal service info")
	}
	key := Key(r.config.Namespace, r.info.ServiceName, r.info.Address)
	if _, err := r.client.Put(ctx, key, string(value), clientv3.WithLease(r.leaseID)); err != nil {
		return errors.Wrapf(err, "put %s", key)
	}
	return nil
}

// startKeepAlive 调用方持有锁
func (r *Registrar) startKeepAlive() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	leaseID := r.leaseID

	r.loop = conc.Go(func() (struct{}, error) {
		ch, err := r.client.KeepAlive(ctx, leaseID)
		if err != nil {
			r.logger.Error("failed to keep alive", "error", err)
			r.reRegister(ctx)
			return struct{}{}, nil
		}
		for {
			select {
			case <-ctx.Done():
				return struct{}{}, nil
			case _, ok := <-ch:
				if !ok {
					r.logger.Warn("keep alive channel closed, attempting to re-register")
					r.reRegister(ctx)
					return struct{}{}, nil
				}
			}
		}
	})
}

func (r *Registrar) reRegister(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.info == nil {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, r.config.DialTimeout)
	defer cancel()
	if err := r.putWithNewLease(opCtx); err != nil {
		r.logger.Error("failed to re-register service", "error", err)
		return
	}
	r.logger.Info("service re-registered", "address", r.info.Address, "lease_id", int64(r.leaseID))
	r.startKeepAlive()
}

// UpdateMetadata 替换元数据
func (r *Registrar) UpdateMetadata(ctx context.Context, metadata map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.info == nil {
		return ErrNotRegistered
	}
	r.info.Metadata = metadata
	if err := r.put(ctx); err != nil {
		return errors.Wrap(err, "update metadata")
	}
	r.logger.Debug("metadata updated", "address", r.info.Address, "metadata", metadata)
	return nil
}

// Deregister 停止保活，删除 key 并撤销租约
func (r *Registrar) Deregister(ctx context.Context) error {
	r.mu.Lock()
	info, cancel, loop, leaseID := r.info, r.cancel, r.loop, r.leaseID
	r.info, r.cancel, r.loop = nil, nil, nil
	r.mu.Unlock()

	if info == nil {
		return nil
	}
	if cancel != nil {
		cancel()
		_ = loop.Err()
	}

	key := Key(r.config.Namespace, info.ServiceName, info.Address)
	if _, err := r.client.Delete(ctx, key); err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	if _, err := r.client.Revoke(ctx, leaseID); err != nil {
		r.logger.Warn("failed to revoke lease", "error", err)
	}

	r.logger.Info("service deregistered", "service", info.ServiceName, "address", info.Address)
	return nil
}

// Close 关闭 etcd 客户端
func (r *Registrar) Close() error {
	return r.client.Close()
}
