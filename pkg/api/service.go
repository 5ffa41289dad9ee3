package api

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"bidimapper/internal/logger"
	"bidimapper/internal/service"
	"bidimapper/pkg/domain"
)

// Service mapper 引擎对外接口
type Service interface {
	// Start 连接浏览器并附加现存页面
	Start(ctx context.Context) error

	// AttachTransport 接入北向传输
	AttachTransport(t domain.Transport)

	// HandleFrame 处理一帧北向输入
	HandleFrame(raw []byte)

	// Metrics prometheus 注册表
	Metrics() *prometheus.Registry

	// Stop 停机并释放资源
	Stop() error
}

// Logger 日志接口别名，便于嵌入方传入
type Logger = logger.Logger

// NewService 创建并返回服务接口实现
func NewService(opts domain.MapperOptions, tablePrefix string, l Logger) Service {
	return service.New(opts, tablePrefix, l)
}
