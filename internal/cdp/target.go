package cdp

import (
	"context"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/protocol/security"
	"github.com/mafredri/cdp/rpcc"
	"golang.org/x/sync/errgroup"

	"bidimapper/internal/logger"
)

// Target 一个已附加页面 target 的会话
type Target struct {
	id               string
	browserContextID string

	ctx    context.Context
	cancel context.CancelFunc
	conn   *rpcc.Conn
	client *cdp.Client

	log logger.Logger
}

func newTarget(parent context.Context, id, browserContextID string, conn *rpcc.Conn, l logger.Logger) *Target {
	ctx, cancel := context.WithCancel(parent)
	return &Target{
		id:               id,
		browserContextID: browserContextID,
		ctx:              ctx,
		cancel:           cancel,
		conn:             conn,
		client:           cdp.NewClient(conn),
		log:              l.With("target", id),
	}
}

// ID target id
func (t *Target) ID() string { return t.id }

// BrowserContextID 所属 browser context，默认上下文为空串
func (t *Target) BrowserContextID() string { return t.browserContextID }

// Context 会话生命周期 context
func (t *Target) Context() context.Context { return t.ctx }

// enable 打开所需的 CDP 域
func (t *Target) enable(acceptInsecureCerts bool) error {
	if err := t.client.Page.Enable(t.ctx); err != nil {
		return err
	}
	if err := t.client.Page.SetLifecycleEventsEnabled(t.ctx, &page.SetLifecycleEventsEnabledArgs{Enabled: true}); err != nil {
		return err
	}
	if err := t.client.Runtime.Enable(t.ctx); err != nil {
		return err
	}
	if err := t.client.Network.Enable(t.ctx, nil); err != nil {
		return err
	}
	if err := t.client.Page.SetInterceptFileChooserDialog(t.ctx, &page.SetInterceptFileChooserDialogArgs{Enabled: true}); err != nil {
		// 部分内核版本没有该方法，不致命
		t.log.Debug("setInterceptFileChooserDialog 不可用", "error", err)
	}
	if acceptInsecureCerts {
		if err := t.client.Security.SetIgnoreCertificateErrors(t.ctx, &security.SetIgnoreCertificateErrorsArgs{Ignore: true}); err != nil {
			return err
		}
	}
	return nil
}

// EnableFetch 打开 Fetch 域（注册首个拦截器时）
func (t *Target) EnableFetch() error {
	p := "*"
	handleAuth := true
	return t.client.Fetch.Enable(t.ctx, &fetch.EnableArgs{
		Patterns: []fetch.RequestPattern{
			{URLPattern: &p, RequestStage: fetch.RequestStageRequest},
			{URLPattern: &p, RequestStage: fetch.RequestStageResponse},
		},
		HandleAuthRequests: &handleAuth,
	})
}

// DisableFetch 关闭 Fetch 域（最后一个拦截器移除后）
func (t *Target) DisableFetch() error {
	return t.client.Fetch.Disable(t.ctx)
}

// targetStreams 一个 target 的全部事件流
type targetStreams struct {
	frameAttached   page.FrameAttachedClient
	frameNavigated  page.FrameNavigatedClient
	frameDetached   page.FrameDetachedClient
	withinDoc       page.NavigatedWithinDocumentClient
	lifecycle       page.LifecycleEventClient
	dialogOpening   page.JavascriptDialogOpeningClient
	dialogClosed    page.JavascriptDialogClosedClient
	fileChooser     page.FileChooserOpenedClient
	ecCreated       runtime.ExecutionContextCreatedClient
	ecDestroyed     runtime.ExecutionContextDestroyedClient
	console         runtime.ConsoleAPICalledClient
	exception       runtime.ExceptionThrownClient
	reqWillBeSent   network.RequestWillBeSentClient
	respReceived    network.ResponseReceivedClient
	loadingFinished network.LoadingFinishedClient
	loadingFailed   network.LoadingFailedClient
	reqPaused       fetch.RequestPausedClient
	authRequired    fetch.AuthRequiredClient
}

func (t *Target) openStreams() (*targetStreams, error) {
	s := &targetStreams{}
	var err error
	if s.frameAttached, err = t.client.Page.FrameAttached(t.ctx); err != nil {
		return nil, err
	}
	if s.frameNavigated, err = t.client.Page.FrameNavigated(t.ctx); err != nil {
		return nil, err
	}
	if s.frameDetached, err = t.client.Page.FrameDetached(t.ctx); err != nil {
		return nil, err
	}
	if s.withinDoc, err = t.client.Page.NavigatedWithinDocument(t.ctx); err != nil {
		return nil, err
	}
	if s.lifecycle, err = t.client.Page.LifecycleEvent(t.ctx); err != nil {
		return nil, err
	}
	if s.dialogOpening, err = t.client.Page.JavascriptDialogOpening(t.ctx); err != nil {
		return nil, err
	}
	if s.dialogClosed, err = t.client.Page.JavascriptDialogClosed(t.ctx); err != nil {
		return nil, err
	}
	if s.fileChooser, err = t.client.Page.FileChooserOpened(t.ctx); err != nil {
		return nil, err
	}
	if s.ecCreated, err = t.client.Runtime.ExecutionContextCreated(t.ctx); err != nil {
		return nil, err
	}
	if s.ecDestroyed, err = t.client.Runtime.ExecutionContextDestroyed(t.ctx); err != nil {
		return nil, err
	}
	if s.console, err = t.client.Runtime.ConsoleAPICalled(t.ctx); err != nil {
		return nil, err
	}
	if s.exception, err = t.client.Runtime.ExceptionThrown(t.ctx); err != nil {
		return nil, err
	}
	if s.reqWillBeSent, err = t.client.Network.RequestWillBeSent(t.ctx); err != nil {
		return nil, err
	}
	if s.respReceived, err = t.client.Network.ResponseReceived(t.ctx); err != nil {
		return nil, err
	}
	if s.loadingFinished, err = t.client.Network.LoadingFinished(t.ctx); err != nil {
		return nil, err
	}
	if s.loadingFailed, err = t.client.Network.LoadingFailed(t.ctx); err != nil {
		return nil, err
	}
	if s.reqPaused, err = t.client.Fetch.RequestPaused(t.ctx); err != nil {
		return nil, err
	}
	if s.authRequired, err = t.client.Fetch.AuthRequired(t.ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// pump 启动事件泵：所有流经 rpcc.Sync 汇入单个派发循环，
// sink 回调按线上到达顺序串行执行，循环受 errgroup 监督。
func (t *Target) pump(sink EventSink) error {
	s, err := t.openStreams()
	if err != nil {
		return err
	}

	err = rpcc.Sync(
		s.frameAttached, s.frameNavigated, s.frameDetached, s.withinDoc, s.lifecycle,
		s.dialogOpening, s.dialogClosed, s.fileChooser,
		s.ecCreated, s.ecDestroyed, s.console, s.exception,
		s.reqWillBeSent, s.respReceived, s.loadingFinished, s.loadingFailed,
		s.reqPaused, s.authRequired,
	)
	if err != nil {
		return err
	}

	g, _ := errgroup.WithContext(t.ctx)
	g.Go(func() error { return t.dispatch(s, sink) })
	go func() {
		if err := g.Wait(); err != nil && t.ctx.Err() == nil {
			t.log.Warn("事件泵退出", "error", err)
		}
	}()
	return nil
}

// dispatch 单协程消费全部流。同步后的流每次只有轮到的那条就绪，
// select 命中它即按接收顺序派发。
func (t *Target) dispatch(s *targetStreams, sink EventSink) error {
	for {
		select {
		case <-t.ctx.Done():
			return nil
		case <-s.frameAttached.Ready():
			if err := recvOne(s.frameAttached.Recv, func(ev *page.FrameAttachedReply) { sink.FrameAttached(t, ev) }); err != nil {
				return err
			}
		case <-s.frameNavigated.Ready():
			if err := recvOne(s.frameNavigated.Recv, func(ev *page.FrameNavigatedReply) { sink.FrameNavigated(t, ev) }); err != nil {
				return err
			}
		case <-s.frameDetached.Ready():
			if err := recvOne(s.frameDetached.Recv, func(ev *page.FrameDetachedReply) { sink.FrameDetached(t, ev) }); err != nil {
				return err
			}
		case <-s.withinDoc.Ready():
			if err := recvOne(s.withinDoc.Recv, func(ev *page.NavigatedWithinDocumentReply) { sink.NavigatedWithinDocument(t, ev) }); err != nil {
				return err
			}
		case <-s.lifecycle.Ready():
			if err := recvOne(s.lifecycle.Recv, func(ev *page.LifecycleEventReply) { sink.LifecycleEvent(t, ev) }); err != nil {
				return err
			}
		case <-s.dialogOpening.Ready():
			if err := recvOne(s.dialogOpening.Recv, func(ev *page.JavascriptDialogOpeningReply) { sink.DialogOpening(t, ev) }); err != nil {
				return err
			}
		case <-s.dialogClosed.Ready():
			if err := recvOne(s.dialogClosed.Recv, func(ev *page.JavascriptDialogClosedReply) { sink.DialogClosed(t, ev) }); err != nil {
				return err
			}
		case <-s.fileChooser.Ready():
			if err := recvOne(s.fileChooser.Recv, func(ev *page.FileChooserOpenedReply) { sink.FileChooserOpened(t, ev) }); err != nil {
				return err
			}
		case <-s.ecCreated.Ready():
			if err := recvOne(s.ecCreated.Recv, func(ev *runtime.ExecutionContextCreatedReply) { sink.ExecutionContextCreated(t, ev) }); err != nil {
				return err
			}
		case <-s.ecDestroyed.Ready():
			if err := recvOne(s.ecDestroyed.Recv, func(ev *runtime.ExecutionContextDestroyedReply) { sink.ExecutionContextDestroyed(t, ev) }); err != nil {
				return err
			}
		case <-s.console.Ready():
			if err := recvOne(s.console.Recv, func(ev *runtime.ConsoleAPICalledReply) { sink.ConsoleAPICalled(t, ev) }); err != nil {
				return err
			}
		case <-s.exception.Ready():
			if err := recvOne(s.exception.Recv, func(ev *runtime.ExceptionThrownReply) { sink.ExceptionThrown(t, ev) }); err != nil {
				return err
			}
		case <-s.reqWillBeSent.Ready():
			if err := recvOne(s.reqWillBeSent.Recv, func(ev *network.RequestWillBeSentReply) { sink.RequestWillBeSent(t, ev) }); err != nil {
				return err
			}
		case <-s.respReceived.Ready():
			if err := recvOne(s.respReceived.Recv, func(ev *network.ResponseReceivedReply) { sink.ResponseReceived(t, ev) }); err != nil {
				return err
			}
		case <-s.loadingFinished.Ready():
			if err := recvOne(s.loadingFinished.Recv, func(ev *network.LoadingFinishedReply) { sink.LoadingFinished(t, ev) }); err != nil {
				return err
			}
		case <-s.loadingFailed.Ready():
			if err := recvOne(s.loadingFailed.Recv, func(ev *network.LoadingFailedReply) { sink.LoadingFailed(t, ev) }); err != nil {
				return err
			}
		case <-s.reqPaused.Ready():
			if err := recvOne(s.reqPaused.Recv, func(ev *fetch.RequestPausedReply) { sink.RequestPaused(t, ev) }); err != nil {
				return err
			}
		case <-s.authRequired.Ready():
			if err := recvOne(s.authRequired.Recv, func(ev *fetch.AuthRequiredReply) { sink.AuthRequired(t, ev) }); err != nil {
				return err
			}
		}
	}
}

// recvOne 取一条消息并派发；流关闭时向上返回错误交给监督者
func recvOne[T any](recv func() (T, error), handle func(T)) error {
	ev, err := recv()
	if err != nil {
		return err
	}
	handle(ev)
	return nil
}

func (t *Target) close() {
	t.cancel()
	if t.conn != nil {
		t.conn.Close()
	}
}
