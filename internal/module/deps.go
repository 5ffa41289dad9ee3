package module

import (
	"context"
	"time"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/input"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"

	"bidimapper/internal/event"
	"bidimapper/internal/logger"
	"bidimapper/internal/storage"
	"bidimapper/internal/store"
	"bidimapper/internal/subscription"
	"bidimapper/pkg/domain"
)

// TargetAPI 模块在单个页面 target 上用到的 CDP 操作
type TargetAPI interface {
	ID() string
	BrowserContextID() string
	Context() context.Context

	Navigate(ctx context.Context, url, frameID string) (string, error)
	Reload(ctx context.Context, ignoreCache bool) error
	NavigationHistory(ctx context.Context) (int, []page.NavigationEntry, error)
	NavigateToHistoryEntry(ctx context.Context, entryID int) error
	BringToFront(ctx context.Context) error
	CaptureScreenshot(ctx context.Context, format string, quality *int) ([]byte, error)
	HandleDialog(ctx context.Context, accept bool, promptText string) error
	SetViewport(ctx context.Context, width, height int, devicePixelRatio float64) error

	AddScriptToEvaluateOnNewDocument(ctx context.Context, source, worldName string) (string, error)
	RemoveScriptToEvaluateOnNewDocument(ctx context.Context, identifier string) error
	Evaluate(ctx context.Context, args *runtime.EvaluateArgs) (*runtime.EvaluateReply, error)
	CallFunctionOn(ctx context.Context, args *runtime.CallFunctionOnArgs) (*runtime.CallFunctionOnReply, error)
	ReleaseObject(ctx context.Context, objectID runtime.RemoteObjectID) error

	EnableFetch() error
	DisableFetch() error
	ContinueRequest(ctx context.Context, args *fetch.ContinueRequestArgs) error
	ContinueResponse(ctx context.Context, args *fetch.ContinueResponseArgs) error
	FulfillRequest(ctx context.Context, args *fetch.FulfillRequestArgs) error
	FailRequest(ctx context.Context, args *fetch.FailRequestArgs) error
	ContinueWithAuth(ctx context.Context, args *fetch.ContinueWithAuthArgs) error
	SetCacheDisabled(ctx context.Context, disabled bool) error

	DispatchKeyEvent(ctx context.Context, args *input.DispatchKeyEventArgs) error
	DispatchMouseEvent(ctx context.Context, args *input.DispatchMouseEventArgs) error
	SetFileInputFiles(ctx context.Context, files []string, objectID runtime.RemoteObjectID) error

	SendCommand(ctx context.Context, method string, params []byte) ([]byte, error)
}

// BrowserAPI 浏览器级 CDP 操作
type BrowserAPI interface {
	CreateTarget(ctx context.Context, pageURL, browserContextID string, background, newWindow bool) (string, error)
	CloseTarget(ctx context.Context, targetID string) error
	CreateBrowserContext(ctx context.Context) (string, error)
	DisposeBrowserContext(ctx context.Context, id string) error
	CloseBrowser(ctx context.Context) error
	SetPermission(ctx context.Context, name, setting, origin, browserContextID string) error
	GetCookies(ctx context.Context, browserContextID string) ([]network.Cookie, error)
	SetCookies(ctx context.Context, cookies []network.CookieParam, browserContextID string) error
	DeleteCookies(ctx context.Context, browserContextID string) error
}

// Gateway target 路由
type Gateway interface {
	TargetFor(targetID string) (TargetAPI, bool)
	EachTarget(fn func(TargetAPI))
}

// Deps 模块公共依赖
type Deps struct {
	Contexts     *store.ContextStore
	Realms       *store.RealmStore
	Network      *store.NetworkStore
	Preload      *store.PreloadScriptStore
	UserContexts *store.UserContextStore

	Subs    *subscription.Manager
	Router  *event.Router
	Gateway Gateway
	Browser BrowserAPI
	Archive *storage.Archive

	Options domain.MapperOptions
	Log     logger.Logger

	// EndSession 由 session.end / browser.close 触发的会话收尾回调
	EndSession func(reason string)
}

// targetFor 解析上下文到其所属 target
func (d *Deps) targetFor(id domain.ContextID) (TargetAPI, *store.BrowsingContext, *domain.Error) {
	c, err := d.Contexts.Get(id)
	if err != nil {
		return nil, nil, err
	}
	t, ok := d.Gateway.TargetFor(c.TargetID)
	if !ok {
		return nil, nil, domain.NoSuchFrame(id)
	}
	return t, c, nil
}

// handlerTimeout 带 idleTimeout 的等待上下文
func (d *Deps) handlerTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.Options.IdleTimeoutMS <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(d.Options.IdleTimeoutMS)*time.Millisecond)
}
