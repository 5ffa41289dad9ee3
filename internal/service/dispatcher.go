package service

import (
	"context"
	"sync"
	"time"

	"bidimapper/internal/logger"
	"bidimapper/internal/metrics"
	"bidimapper/internal/module"
	"bidimapper/internal/protocol"
	"bidimapper/pkg/domain"
)

// inflight 一条在途命令的关联记录
type inflight struct {
	ID        uint64
	Channel   domain.Channel
	Method    string
	StartedAt time.Time
}

// Dispatcher 命令分发器。同一通道内按到达顺序串行处理并按序应答，
// 不同通道之间并发。
type Dispatcher struct {
	registry *module.Registry

	mu      sync.Mutex
	queues  map[domain.Channel]chan *domain.Command
	pending map[uint64]inflight
	closed  bool

	ctx       context.Context
	transport domain.Transport
	met       *metrics.Metrics
	log       logger.Logger
}

// NewDispatcher 创建分发器
func NewDispatcher(ctx context.Context, reg *module.Registry, transport domain.Transport, met *metrics.Metrics, l logger.Logger) *Dispatcher {
	if l == nil {
		l = logger.NewNop()
	}
	return &Dispatcher{
		registry:  reg,
		queues:    make(map[domain.Channel]chan *domain.Command),
		pending:   make(map[uint64]inflight),
		ctx:       ctx,
		transport: transport,
		met:       met,
		log:       l,
	}
}

// HandleFrame 处理一帧北向输入：解析、校验、入队
func (d *Dispatcher) HandleFrame(raw []byte) {
	cmd, derr := protocol.ParseCommand(raw)
	if derr != nil {
		var id *uint64
		ch := domain.Channel("")
		if cmd != nil {
			id = &cmd.ID
			ch = cmd.Channel
		}
		d.sendError(id, derr, ch)
		return
	}
	if d.met != nil {
		d.met.CommandsReceived.WithLabelValues(cmd.Method).Inc()
	}

	// schema 校验先于路由；未知方法报 unknown command
	if verr := protocol.ValidateParams(cmd.Method, cmd.Params); verr != nil {
		d.sendError(&cmd.ID, verr, cmd.Channel)
		return
	}

	d.enqueue(cmd)
}

// enqueue 进入所属通道的 FIFO；每通道一个 worker 保证响应顺序
func (d *Dispatcher) enqueue(cmd *domain.Command) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.sendError(&cmd.ID, domain.NewError(domain.ErrUnknownError, "session ended"), cmd.Channel)
		return
	}
	q, ok := d.queues[cmd.Channel]
	if !ok {
		q = make(chan *domain.Command, 64)
		d.queues[cmd.Channel] = q
		go d.worker(q)
	}
	d.pending[cmd.ID] = inflight{ID: cmd.ID, Channel: cmd.Channel, Method: cmd.Method, StartedAt: time.Now()}
	d.mu.Unlock()

	select {
	case q <- cmd:
	default:
		// 队列溢出按协议错误处理而不是阻塞读循环
		if d.take(cmd.ID) {
			d.sendError(&cmd.ID, domain.NewError(domain.ErrUnknownError, "command queue overflow"), cmd.Channel)
		}
	}
}

func (d *Dispatcher) worker(q chan *domain.Command) {
	for {
		select {
		case <-d.ctx.Done():
			return
		case cmd := <-q:
			d.process(cmd)
		}
	}
}

func (d *Dispatcher) process(cmd *domain.Command) {
	handler, ok := d.registry.Lookup(cmd.Method)
	if !ok {
		if d.take(cmd.ID) {
			d.sendError(&cmd.ID, domain.NewError(domain.ErrUnknownCommand, "Unknown command '%s'", cmd.Method), cmd.Channel)
		}
		return
	}

	start := time.Now()
	result, err := d.invoke(handler, cmd)
	// Shutdown 已替晚到者应答过的命令不再二次应答
	if !d.take(cmd.ID) {
		return
	}
	if err != nil {
		be := domain.AsError(err)
		if d.ctx.Err() != nil {
			be = domain.NewError(domain.ErrUnknownError, "session ended")
		}
		d.sendError(&cmd.ID, be, cmd.Channel)
		d.log.Debug("命令失败", "method", cmd.Method, "error", be.Message, "duration", time.Since(start))
		return
	}
	frame, merr := protocol.MarshalSuccess(cmd.ID, result, cmd.Channel)
	if merr != nil {
		d.sendError(&cmd.ID, domain.UnknownError(merr), cmd.Channel)
		return
	}
	d.send(frame)
	d.log.Debug("命令完成", "method", cmd.Method, "duration", time.Since(start))
}

// invoke 执行模块入口，panic 恢复为 unknown error，不拆毁会话
func (d *Dispatcher) invoke(handler module.Handler, cmd *domain.Command) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("命令处理 panic", "method", cmd.Method, "panic", r)
			result = nil
			err = domain.NewError(domain.ErrUnknownError, "internal error in '%s'", cmd.Method)
		}
	}()
	return handler(d.ctx, cmd)
}

// take 摘除在途记录，返回是否仍在途
func (d *Dispatcher) take(id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[id]
	delete(d.pending, id)
	return ok
}

// Shutdown 结束会话：在途命令全部应答 session ended
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	stuck := make([]inflight, 0, len(d.pending))
	for _, rec := range d.pending {
		stuck = append(stuck, rec)
	}
	d.pending = make(map[uint64]inflight)
	d.mu.Unlock()

	err := domain.NewError(domain.ErrUnknownError, "session ended")
	for _, rec := range stuck {
		d.sendError(&rec.ID, err, rec.Channel)
	}
}

func (d *Dispatcher) sendError(id *uint64, e *domain.Error, ch domain.Channel) {
	if d.met != nil {
		d.met.CommandsFailed.WithLabelValues(string(e.Code)).Inc()
	}
	frame, err := protocol.MarshalError(id, e, ch)
	if err != nil {
		d.log.Error("错误帧序列化失败", "error", err)
		return
	}
	d.send(frame)
}

func (d *Dispatcher) send(frame []byte) {
	if d.transport == nil {
		return
	}
	if err := d.transport.Send(frame); err != nil {
		d.log.Warn("北向写出失败", "error", err)
	}
}
