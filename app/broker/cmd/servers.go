package main

import (
	"context"
	"time"

	"github.com/IntelLabs/networkgym/pkg/metrics/system"
	"github.com/IntelLabs/networkgym/pkg/registry"
)

// serviceRegistrar 将 etcd 注册接入 BaseApp 的启停
type serviceRegistrar struct {
	registrar registry.Registrar
	info      *registry.ServiceInfo
}

func (s *serviceRegistrar) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.registrar.Register(ctx, s.info)
}

func (s *serviceRegistrar) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.registrar.Deregister(ctx)
}

type systemServer struct {
	collector *system.Collector
	interval  time.Duration
}

func (s *systemServer) Start() error {
	s.collector.Start(s.interval)
	return nil
}

func (s *systemServer) Stop() error {
	s.collector.Stop()
	return nil
}
