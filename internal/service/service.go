package service

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	cdpmgr "bidimapper/internal/cdp"
	"bidimapper/internal/event"
	"bidimapper/internal/logger"
	"bidimapper/internal/metrics"
	"bidimapper/internal/module"
	"bidimapper/internal/storage"
	"bidimapper/internal/store"
	"bidimapper/internal/subscription"
	"bidimapper/pkg/domain"
)

// Service mapper 引擎装配体。全部可变状态都挂在这里，
// Stop 之后整体丢弃，进程内没有全局单例。
type Service struct {
	opts domain.MapperOptions
	log  logger.Logger
	met  *metrics.Metrics

	contexts     *store.ContextStore
	realms       *store.RealmStore
	network      *store.NetworkStore
	preload      *store.PreloadScriptStore
	userContexts *store.UserContextStore

	subs      *subscription.Manager
	router    *event.Router
	processor *event.Processor
	cdp       *cdpmgr.Manager
	archive   *storage.Archive

	registry   *module.Registry
	dispatcher *Dispatcher

	transport *swappableTransport

	runCtx context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New 构建引擎（不触网，Start 才连接浏览器）
func New(opts domain.MapperOptions, prefix string, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNop()
	}
	opts.Normalize()

	s := &Service{
		opts:         opts,
		log:          l,
		met:          metrics.New(),
		contexts:     store.NewContextStore(l),
		realms:       store.NewRealmStore(l),
		network:      store.NewNetworkStore(l),
		preload:      store.NewPreloadScriptStore(l),
		userContexts: store.NewUserContextStore(l),
		transport:    &swappableTransport{},
	}
	s.subs = subscription.NewManager(s.contexts.TopLevelOf)
	s.router = event.NewRouter(s.subs, s.transport, s.met, l)

	if a, err := storage.Open(opts.TrafficDSN, prefix, l); err != nil {
		l.Warn("流量归档不可用", "error", err)
	} else {
		s.archive = a
	}

	s.processor = event.NewProcessor(event.Config{
		Contexts:       s.contexts,
		Realms:         s.realms,
		Network:        s.network,
		Preload:        s.preload,
		Router:         s.router,
		Archive:        s.archive,
		Metrics:        s.met,
		Logger:         l,
		PromptBehavior: opts.UnhandledPromptBehavior,
	})
	s.cdp = cdpmgr.NewManager(opts.DevToolsURL, s.processor, opts.AcceptInsecureCerts, l)

	s.runCtx, s.cancel = context.WithCancel(context.Background())
	deps := &module.Deps{
		Contexts:     s.contexts,
		Realms:       s.realms,
		Network:      s.network,
		Preload:      s.preload,
		UserContexts: s.userContexts,
		Subs:         s.subs,
		Router:       s.router,
		Gateway:      gateway{m: s.cdp},
		Browser:      s.cdp,
		Archive:      s.archive,
		Options:      opts,
		Log:          l,
		EndSession:   s.endSession,
	}
	s.registry = module.NewRegistry(deps)
	s.dispatcher = NewDispatcher(s.runCtx, s.registry, s.transport, s.met, l)
	return s
}

// Start 连接浏览器并附加现存 target
func (s *Service) Start(ctx context.Context) error {
	if err := s.cdp.Connect(ctx); err != nil {
		return err
	}
	s.log.Info("mapper 引擎就绪")
	return nil
}

// AttachTransport 接入北向传输（外部 WebSocket 服务建立连接后调用）
func (s *Service) AttachTransport(t domain.Transport) {
	s.transport.set(t)
}

// HandleFrame 处理一帧北向输入
func (s *Service) HandleFrame(raw []byte) {
	s.dispatcher.HandleFrame(raw)
}

// Metrics prometheus 注册表，由嵌入方决定如何暴露
func (s *Service) Metrics() *prometheus.Registry {
	return s.met.Registry
}

// endSession 会话收尾：唤醒等待方、应答在途命令
func (s *Service) endSession(reason string) {
	s.log.Info("会话结束", "reason", reason)
	s.contexts.AbortAllWaiters(domain.NewError(domain.ErrUnknownError, "session ended"))
	s.dispatcher.Shutdown()
	s.subs.Clear()
	s.cancel()
}

// Stop 停机：结束会话、断开南北向连接
func (s *Service) Stop() error {
	var err error
	s.once.Do(func() {
		s.endSession("shutdown")
		err = s.cdp.Close()
		if s.archive != nil {
			s.archive.Close()
		}
		s.transport.Close()
	})
	return err
}

// gateway 把 *cdp.Manager 适配为模块的 target 路由
type gateway struct {
	m *cdpmgr.Manager
}

func (g gateway) TargetFor(targetID string) (module.TargetAPI, bool) {
	t := g.m.Target(targetID)
	if t == nil {
		return nil, false
	}
	return t, true
}

func (g gateway) EachTarget(fn func(module.TargetAPI)) {
	g.m.EachTarget(func(t *cdpmgr.Target) { fn(t) })
}

// swappableTransport 可热替换的北向传输
type swappableTransport struct {
	mu sync.RWMutex
	t  domain.Transport
}

func (s *swappableTransport) set(t domain.Transport) {
	s.mu.Lock()
	s.t = t
	s.mu.Unlock()
}

func (s *swappableTransport) Send(frame []byte) error {
	s.mu.RLock()
	t := s.t
	s.mu.RUnlock()
	if t == nil {
		return nil
	}
	return t.Send(frame)
}

func (s *swappableTransport) Close() error {
	s.mu.RLock()
	t := s.t
	s.mu.RUnlock()
	if t == nil {
		return nil
	}
	return t.Close()
}
