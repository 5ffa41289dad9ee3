package module

import (
	"context"

	"bidimapper/pkg/domain"
)

// Handler 模块入口：已通过 schema 校验的命令
type Handler func(ctx context.Context, cmd *domain.Command) (any, error)

// Registry 方法名到模块入口的静态映射，启动时构建
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry 装配全部模块并建表
func NewRegistry(d *Deps) *Registry {
	session := NewSessionModule(d)
	browser := NewBrowserModule(d)
	bc := NewBrowsingContextModule(d)
	net := NewNetworkModule(d)
	script := NewScriptModule(d)
	in := NewInputModule(d)
	perms := NewPermissionsModule(d)
	stor := NewStorageModule(d)
	goog := NewGoogCDPModule(d)

	return &Registry{handlers: map[string]Handler{
		"session.status":      session.Status,
		"session.new":         session.New,
		"session.end":         session.End,
		"session.subscribe":   session.Subscribe,
		"session.unsubscribe": session.Unsubscribe,

		"browser.close":             browser.Close,
		"browser.createUserContext": browser.CreateUserContext,
		"browser.removeUserContext": browser.RemoveUserContext,
		"browser.getUserContexts":   browser.GetUserContexts,

		"browsingContext.activate":          bc.Activate,
		"browsingContext.captureScreenshot": bc.CaptureScreenshot,
		"browsingContext.close":             bc.Close,
		"browsingContext.create":            bc.Create,
		"browsingContext.getTree":           bc.GetTree,
		"browsingContext.handleUserPrompt":  bc.HandleUserPrompt,
		"browsingContext.navigate":          bc.Navigate,
		"browsingContext.reload":            bc.Reload,
		"browsingContext.setViewport":       bc.SetViewport,
		"browsingContext.traverseHistory":   bc.TraverseHistory,

		"network.addIntercept":     net.AddIntercept,
		"network.removeIntercept":  net.RemoveIntercept,
		"network.continueRequest":  net.ContinueRequest,
		"network.continueResponse": net.ContinueResponse,
		"network.continueWithAuth": net.ContinueWithAuth,
		"network.provideResponse":  net.ProvideResponse,
		"network.failRequest":      net.FailRequest,
		"network.setCacheBehavior": net.SetCacheBehavior,

		"script.addPreloadScript":    script.AddPreloadScript,
		"script.removePreloadScript": script.RemovePreloadScript,
		"script.callFunction":        script.CallFunction,
		"script.disown":              script.Disown,
		"script.evaluate":            script.Evaluate,
		"script.getRealms":           script.GetRealms,

		"input.performActions": in.PerformActions,
		"input.releaseActions": in.ReleaseActions,
		"input.setFiles":       in.SetFiles,

		"permissions.setPermission": perms.SetPermission,

		"storage.getCookies":    stor.GetCookies,
		"storage.setCookie":     stor.SetCookie,
		"storage.deleteCookies": stor.DeleteCookies,

		"goog:cdp.sendCommand": goog.SendCommand,
		"goog:cdp.getSession":  goog.GetSession,
	}}
}

// Lookup 查找模块入口
func (r *Registry) Lookup(method string) (Handler, bool) {
	h, ok := r.handlers[method]
	return h, ok
}
