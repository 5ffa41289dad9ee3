package domain

// Transport 北向传输抽象。具体的 WebSocket 服务由外部提供，
// mapper 只通过该接口写出已序列化的帧。
type Transport interface {
	// Send 写出一帧。实现须保证同一调用方的写出顺序。
	Send(frame []byte) error
	// Close 关闭传输
	Close() error
}

// TransportFunc 函数式 Transport 适配
type TransportFunc func(frame []byte) error

func (f TransportFunc) Send(frame []byte) error { return f(frame) }
func (f TransportFunc) Close() error            { return nil }
