package module

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/input"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"

	"bidimapper/internal/event"
	"bidimapper/internal/logger"
	"bidimapper/internal/store"
	"bidimapper/internal/subscription"
	"bidimapper/pkg/domain"
)

// fakeTarget 记录调用的 TargetAPI 假实现
type fakeTarget struct {
	id    string
	calls []string

	navigateErrorText string
}

func (f *fakeTarget) record(name string) { f.calls = append(f.calls, name) }

func (f *fakeTarget) ID() string               { return f.id }
func (f *fakeTarget) BrowserContextID() string { return "" }
func (f *fakeTarget) Context() context.Context { return context.Background() }

func (f *fakeTarget) Navigate(ctx context.Context, url, frameID string) (string, error) {
	f.record("Navigate")
	return f.navigateErrorText, nil
}
func (f *fakeTarget) Reload(ctx context.Context, ignoreCache bool) error {
	f.record("Reload")
	return nil
}
func (f *fakeTarget) NavigationHistory(ctx context.Context) (int, []page.NavigationEntry, error) {
	f.record("NavigationHistory")
	return 1, []page.NavigationEntry{{ID: 10}, {ID: 11}, {ID: 12}}, nil
}
func (f *fakeTarget) NavigateToHistoryEntry(ctx context.Context, entryID int) error {
	f.record("NavigateToHistoryEntry")
	return nil
}
func (f *fakeTarget) BringToFront(ctx context.Context) error { f.record("BringToFront"); return nil }
func (f *fakeTarget) CaptureScreenshot(ctx context.Context, format string, quality *int) ([]byte, error) {
	f.record("CaptureScreenshot")
	return []byte("img"), nil
}
func (f *fakeTarget) HandleDialog(ctx context.Context, accept bool, promptText string) error {
	f.record("HandleDialog")
	return nil
}
func (f *fakeTarget) SetViewport(ctx context.Context, w, h int, dpr float64) error {
	f.record("SetViewport")
	return nil
}
func (f *fakeTarget) AddScriptToEvaluateOnNewDocument(ctx context.Context, source, worldName string) (string, error) {
	f.record("AddScriptToEvaluateOnNewDocument")
	return "ident-1", nil
}
func (f *fakeTarget) RemoveScriptToEvaluateOnNewDocument(ctx context.Context, identifier string) error {
	f.record("RemoveScriptToEvaluateOnNewDocument")
	return nil
}
func (f *fakeTarget) Evaluate(ctx context.Context, args *runtime.EvaluateArgs) (*runtime.EvaluateReply, error) {
	f.record("Evaluate")
	return &runtime.EvaluateReply{Result: runtime.RemoteObject{Type: "string", Value: json.RawMessage(`"ok"`)}}, nil
}
func (f *fakeTarget) CallFunctionOn(ctx context.Context, args *runtime.CallFunctionOnArgs) (*runtime.CallFunctionOnReply, error) {
	f.record("CallFunctionOn")
	return &runtime.CallFunctionOnReply{Result: runtime.RemoteObject{Type: "undefined"}}, nil
}
func (f *fakeTarget) ReleaseObject(ctx context.Context, objectID runtime.RemoteObjectID) error {
	f.record("ReleaseObject")
	return nil
}
func (f *fakeTarget) EnableFetch() error  { f.record("EnableFetch"); return nil }
func (f *fakeTarget) DisableFetch() error { f.record("DisableFetch"); return nil }
func (f *fakeTarget) ContinueRequest(ctx context.Context, args *fetch.ContinueRequestArgs) error {
	f.record("ContinueRequest")
	return nil
}
func (f *fakeTarget) ContinueResponse(ctx context.Context, args *fetch.ContinueResponseArgs) error {
	f.record("ContinueResponse")
	return nil
}
func (f *fakeTarget) FulfillRequest(ctx context.Context, args *fetch.FulfillRequestArgs) error {
	f.record("FulfillRequest")
	return nil
}
func (f *fakeTarget) FailRequest(ctx context.Context, args *fetch.FailRequestArgs) error {
	f.record("FailRequest")
	return nil
}
func (f *fakeTarget) ContinueWithAuth(ctx context.Context, args *fetch.ContinueWithAuthArgs) error {
	f.record("ContinueWithAuth")
	return nil
}
func (f *fakeTarget) SetCacheDisabled(ctx context.Context, disabled bool) error {
	f.record("SetCacheDisabled")
	return nil
}
func (f *fakeTarget) DispatchKeyEvent(ctx context.Context, args *input.DispatchKeyEventArgs) error {
	f.record("DispatchKeyEvent")
	return nil
}
func (f *fakeTarget) DispatchMouseEvent(ctx context.Context, args *input.DispatchMouseEventArgs) error {
	f.record("DispatchMouseEvent")
	return nil
}
func (f *fakeTarget) SetFileInputFiles(ctx context.Context, files []string, objectID runtime.RemoteObjectID) error {
	f.record("SetFileInputFiles")
	return nil
}
func (f *fakeTarget) SendCommand(ctx context.Context, method string, params []byte) ([]byte, error) {
	f.record("SendCommand")
	return []byte(`{}`), nil
}

// fakeGateway 单 target 路由
type fakeGateway struct {
	targets map[string]*fakeTarget
}

func (g *fakeGateway) TargetFor(id string) (TargetAPI, bool) {
	t, ok := g.targets[id]
	if !ok {
		return nil, false
	}
	return t, true
}

func (g *fakeGateway) EachTarget(fn func(TargetAPI)) {
	for _, t := range g.targets {
		fn(t)
	}
}

// fakeBrowser 浏览器级操作假实现
type fakeBrowser struct {
	cookies []network.Cookie
	closed  bool
}

func (b *fakeBrowser) CreateTarget(ctx context.Context, pageURL, bc string, background, newWindow bool) (string, error) {
	return "new-target", nil
}
func (b *fakeBrowser) CloseTarget(ctx context.Context, targetID string) error    { return nil }
func (b *fakeBrowser) CreateBrowserContext(ctx context.Context) (string, error)  { return "bc-1", nil }
func (b *fakeBrowser) DisposeBrowserContext(ctx context.Context, id string) error { return nil }
func (b *fakeBrowser) CloseBrowser(ctx context.Context) error                    { b.closed = true; return nil }
func (b *fakeBrowser) SetPermission(ctx context.Context, name, setting, origin, bc string) error {
	return nil
}
func (b *fakeBrowser) GetCookies(ctx context.Context, bc string) ([]network.Cookie, error) {
	return b.cookies, nil
}
func (b *fakeBrowser) SetCookies(ctx context.Context, cookies []network.CookieParam, bc string) error {
	return nil
}
func (b *fakeBrowser) DeleteCookies(ctx context.Context, bc string) error { return nil }

// newTestDeps 装配带假 CDP 的模块依赖
func newTestDeps(t *testing.T) (*Deps, *fakeTarget, *fakeGateway) {
	t.Helper()
	contexts := store.NewContextStore(nil)
	subs := subscription.NewManager(contexts.TopLevelOf)
	router := event.NewRouter(subs, nil, nil, nil)
	target := &fakeTarget{id: "t1"}
	gw := &fakeGateway{targets: map[string]*fakeTarget{"t1": target}}

	d := &Deps{
		Contexts:     contexts,
		Realms:       store.NewRealmStore(nil),
		Network:      store.NewNetworkStore(nil),
		Preload:      store.NewPreloadScriptStore(nil),
		UserContexts: store.NewUserContextStore(nil),
		Subs:         subs,
		Router:       router,
		Gateway:      gw,
		Browser:      &fakeBrowser{},
		Options:      domain.MapperOptions{IdleTimeoutMS: 200},
	}
	d.Log = logger.NewNop()
	return d, target, gw
}
