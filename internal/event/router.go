package event

import (
	"bidimapper/internal/logger"
	"bidimapper/internal/metrics"
	"bidimapper/internal/protocol"
	"bidimapper/internal/subscription"
	"bidimapper/pkg/domain"
)

// Router 出站事件路由：序列化一次，按订阅优先级逐通道投递。
// 事件投递永不阻塞命令处理。
type Router struct {
	subs      *subscription.Manager
	transport domain.Transport
	met       *metrics.Metrics
	log       logger.Logger
}

// NewRouter 创建路由器
func NewRouter(subs *subscription.Manager, transport domain.Transport, met *metrics.Metrics, l logger.Logger) *Router {
	if l == nil {
		l = logger.NewNop()
	}
	return &Router{subs: subs, transport: transport, met: met, log: l}
}

// SetTransport 替换北向传输（会话建立时）
func (r *Router) SetTransport(t domain.Transport) { r.transport = t }

// Emit 发出事件。subscriptionName 缺省等于 method，
// goog:cdp.* 事件用整组名做订阅查询。
func (r *Router) Emit(method string, ctx domain.ContextID, params any, subscriptionName ...string) {
	name := method
	if len(subscriptionName) > 0 {
		name = subscriptionName[0]
	}
	channels := r.subs.ChannelsFor(name, ctx)
	if len(channels) == 0 {
		return
	}
	frame, err := protocol.MarshalEvent(method, params)
	if err != nil {
		r.log.Error("事件序列化失败", "method", method, "error", err)
		return
	}
	if r.met != nil {
		r.met.EventsEmitted.WithLabelValues(method).Inc()
	}
	for _, ch := range channels {
		out, err := protocol.StampChannel(frame, ch)
		if err != nil {
			r.log.Error("注入通道失败", "method", method, "channel", string(ch), "error", err)
			continue
		}
		if r.transport == nil {
			continue
		}
		if err := r.transport.Send(out); err != nil {
			r.log.Warn("事件投递失败", "method", method, "channel", string(ch), "error", err)
		}
	}
}

// HasSubscribers 事件是否有订阅方（决定是否做昂贵的翻译）
func (r *Router) HasSubscribers(event string, ctx domain.ContextID) bool {
	return r.subs.HasSubscribers(event, ctx)
}
