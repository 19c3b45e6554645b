// Package registry 定义服务注册接口。
package registry

import "context"

// ServiceInfo 服务信息
type ServiceInfo struct {
	// ServiceName 服务名称
	ServiceName string `json:"service_name"`
	// Address 服务地址（如 192.168.1.10:8088）
	Address string `json:"address"`
	// Metadata 元数据（如 version、endpoint、idle_workers 等）
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Registrar 服务注册接口
type Registrar interface {
	Register(ctx context.Context, info *ServiceInfo) error
	Deregister(ctx context.Context) error
	UpdateMetadata(ctx context.Context, metadata map[string]string) error
}
