package event

import (
	"fmt"
	"time"

	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/target"

	cdpmgr "bidimapper/internal/cdp"
	"bidimapper/internal/logger"
	"bidimapper/internal/metrics"
	"bidimapper/internal/storage"
	"bidimapper/internal/store"
	"bidimapper/pkg/domain"
)

// Processor 把 CDP 事件翻译为 BiDi 事件并维护各 store。
// 只读取 store，绝不回查浏览器。
type Processor struct {
	contexts *store.ContextStore
	realms   *store.RealmStore
	network  *store.NetworkStore
	preload  *store.PreloadScriptStore

	router  *Router
	archive *storage.Archive
	met     *metrics.Metrics
	log     logger.Logger

	promptBehavior domain.UnhandledPromptBehavior
}

// Config 处理器依赖
type Config struct {
	Contexts *store.ContextStore
	Realms   *store.RealmStore
	Network  *store.NetworkStore
	Preload  *store.PreloadScriptStore
	Router   *Router
	Archive  *storage.Archive
	Metrics  *metrics.Metrics
	Logger   logger.Logger

	PromptBehavior domain.UnhandledPromptBehavior
}

// NewProcessor 创建处理器
func NewProcessor(cfg Config) *Processor {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	return &Processor{
		contexts:       cfg.Contexts,
		realms:         cfg.Realms,
		network:        cfg.Network,
		preload:        cfg.Preload,
		router:         cfg.Router,
		archive:        cfg.Archive,
		met:            cfg.Metrics,
		log:            l,
		promptBehavior: cfg.PromptBehavior,
	}
}

func nowMS() float64 { return float64(time.Now().UnixMilli()) }

// navigationInfo browsingContext 导航类事件的载荷
type navigationInfo struct {
	Context    domain.ContextID     `json:"context"`
	Navigation *domain.NavigationID `json:"navigation"`
	Timestamp  float64              `json:"timestamp"`
	URL        string               `json:"url"`
}

func (p *Processor) navInfo(ctx domain.ContextID, nav *store.Navigation, url string) navigationInfo {
	info := navigationInfo{Context: ctx, Timestamp: nowMS(), URL: url}
	if nav != nil {
		id := nav.ID
		info.Navigation = &id
		if url == "" {
			info.URL = nav.URL
		}
	}
	return info
}

// TargetAttached 新页面 target：登记顶层上下文并重放预加载脚本
func (p *Processor) TargetAttached(t *cdpmgr.Target, info target.Info) {
	uc := domain.DefaultUserContext
	if info.BrowserContextID != nil && *info.BrowserContextID != "" {
		uc = domain.UserContextID(*info.BrowserContextID)
	}
	ctxID := domain.ContextID(t.ID())
	if err := p.contexts.Add(ctxID, "", uc, t.ID(), info.URL); err != nil {
		p.log.Warn("登记顶层上下文失败", "context", string(ctxID), "error", err)
		return
	}
	if p.met != nil {
		p.met.ActiveContexts.Inc()
	}

	// 重放命中过滤器的预加载脚本
	for _, ps := range p.preload.All() {
		if !ps.AppliesTo(ctxID, uc) {
			continue
		}
		ident, err := t.AddScriptToEvaluateOnNewDocument(t.Context(), wrapPreload(ps.Source), ps.Sandbox)
		if err != nil {
			p.log.Warn("重放预加载脚本失败", "script", string(ps.ID), "error", err)
			continue
		}
		p.preload.SetCDPIdent(ps.ID, t.ID(), ident)
	}

	p.emitContextCreated(ctxID)
}

// wrapPreload functionDeclaration 包装为立即调用
func wrapPreload(source string) string {
	return "(" + source + ")();"
}

// TargetDetached target 消失：级联销毁上下文子树
func (p *Processor) TargetDetached(targetID string) {
	p.destroyContext(domain.ContextID(targetID))
}

func (p *Processor) destroyContext(id domain.ContextID) {
	// 订阅按顶层归一，先于摘除解析，否则子树事件找不到订阅方
	top := p.contexts.TopLevelOf(id)
	removed := p.contexts.Remove(id)
	for _, c := range removed {
		for _, r := range p.realms.RemoveByContext(c.ID) {
			p.router.Emit("script.realmDestroyed", top, map[string]any{"realm": string(r.ID)})
		}
		params := map[string]any{
			"context":        string(c.ID),
			"url":            c.URL,
			"children":       nil,
			"userContext":    string(c.UserContext),
			"originalOpener": nil,
		}
		if c.Parent != "" {
			params["parent"] = string(c.Parent)
		}
		p.router.Emit("browsingContext.contextDestroyed", top, params)
		if p.met != nil {
			p.met.ActiveContexts.Dec()
		}
	}
}

func (p *Processor) emitContextCreated(id domain.ContextID) {
	c, err := p.contexts.Get(id)
	if err != nil {
		return
	}
	params := map[string]any{
		"context":        string(id),
		"url":            c.URL,
		"children":       nil,
		"userContext":    string(c.UserContext),
		"originalOpener": nil,
	}
	if c.Parent != "" {
		params["parent"] = string(c.Parent)
	}
	p.router.Emit("browsingContext.contextCreated", id, params)
}

// FrameAttached 子 frame 登记
func (p *Processor) FrameAttached(t *cdpmgr.Target, ev *page.FrameAttachedReply) {
	id := domain.ContextID(ev.FrameID)
	parent := domain.ContextID(ev.ParentFrameID)
	if err := p.contexts.Add(id, parent, "", t.ID(), "about:blank"); err != nil {
		p.log.Warn("登记子上下文失败", "context", string(id), "error", err)
		return
	}
	if p.met != nil {
		p.met.ActiveContexts.Inc()
	}
	p.emitContextCreated(id)
}

// FrameDetached 子 frame 摘除
func (p *Processor) FrameDetached(t *cdpmgr.Target, ev *page.FrameDetachedReply) {
	p.destroyContext(domain.ContextID(ev.FrameID))
}

// FrameNavigated 文档替换完成：导航提交
func (p *Processor) FrameNavigated(t *cdpmgr.Target, ev *page.FrameNavigatedReply) {
	id := domain.ContextID(ev.Frame.ID)
	if !p.contexts.Has(id) {
		// 顶层 frame id 与 target id 不同时以 frame id 建立别名节点
		if err := p.contexts.Add(id, "", "", t.ID(), ev.Frame.URL); err != nil {
			return
		}
		p.emitContextCreated(id)
	}
	nav := p.contexts.NavigationCommitted(id, ev.Frame.URL)
	p.contexts.SetURL(id, ev.Frame.URL)
	if nav != nil {
		p.router.Emit("browsingContext.navigationCommitted", id, p.navInfo(id, nav, ev.Frame.URL))
	}
}

// NavigatedWithinDocument 同文档导航
func (p *Processor) NavigatedWithinDocument(t *cdpmgr.Target, ev *page.NavigatedWithinDocumentReply) {
	id := domain.ContextID(ev.FrameID)
	nav := p.contexts.NavigationFragment(id, ev.URL)
	if nav == nil {
		return
	}
	p.router.Emit("browsingContext.fragmentNavigated", id, p.navInfo(id, nav, ev.URL))
}

// LifecycleEvent 生命周期：init/DOMContentLoaded/load
func (p *Processor) LifecycleEvent(t *cdpmgr.Target, ev *page.LifecycleEventReply) {
	id := domain.ContextID(ev.FrameID)
	switch ev.Name {
	case "init":
		// 浏览器自发导航（无 pending 导航时）补发 navigationStarted
		if cur := p.contexts.CurrentNavigation(id); cur == nil || cur.State == store.NavCommitted {
			c, err := p.contexts.Get(id)
			if err != nil {
				return
			}
			nav, aborted, nerr := p.contexts.StartNavigation(id, c.URL)
			if nerr != nil {
				return
			}
			if aborted != nil {
				p.router.Emit("browsingContext.navigationAborted", id, p.navInfo(id, aborted, ""))
			}
			p.router.Emit("browsingContext.navigationStarted", id, p.navInfo(id, nav, ""))
		}
	case "DOMContentLoaded":
		nav := p.contexts.NavigationInteractive(id)
		p.router.Emit("browsingContext.domContentLoaded", id, p.navInfo(id, nav, ""))
	case "load":
		nav := p.contexts.NavigationLoaded(id)
		p.router.Emit("browsingContext.load", id, p.navInfo(id, nav, ""))
	}
}

// DialogOpening 用户对话框打开
func (p *Processor) DialogOpening(t *cdpmgr.Target, ev *page.JavascriptDialogOpeningReply) {
	id := domain.ContextID(t.ID())
	p.contexts.SetPrompt(id, string(ev.Type))

	handler := string(p.promptBehavior)
	if handler == "" || handler == "default" {
		handler = "dismiss"
	}
	params := map[string]any{
		"context": string(id),
		"type":    string(ev.Type),
		"handler": handler,
		"message": ev.Message,
	}
	if ev.DefaultPrompt != nil {
		params["defaultValue"] = *ev.DefaultPrompt
	}
	p.router.Emit("browsingContext.userPromptOpened", id, params)

	// 配置了自动处理时代表客户端应答
	switch p.promptBehavior {
	case domain.PromptBehaviorAccept:
		if err := t.HandleDialog(t.Context(), true, ""); err != nil {
			p.log.Warn("自动接受对话框失败", "context", string(id), "error", err)
		}
	case domain.PromptBehaviorDismiss:
		if err := t.HandleDialog(t.Context(), false, ""); err != nil {
			p.log.Warn("自动关闭对话框失败", "context", string(id), "error", err)
		}
	}
}

// DialogClosed 用户对话框关闭
func (p *Processor) DialogClosed(t *cdpmgr.Target, ev *page.JavascriptDialogClosedReply) {
	id := domain.ContextID(t.ID())
	promptType := p.contexts.Prompt(id)
	p.contexts.SetPrompt(id, "")
	params := map[string]any{
		"context":  string(id),
		"accepted": ev.Result,
	}
	if promptType != "" {
		params["type"] = promptType
	}
	if ev.UserInput != "" {
		params["userText"] = ev.UserInput
	}
	p.router.Emit("browsingContext.userPromptClosed", id, params)
}

// FileChooserOpened 文件选择对话框
func (p *Processor) FileChooserOpened(t *cdpmgr.Target, ev *page.FileChooserOpenedReply) {
	id := domain.ContextID(ev.FrameID)
	params := map[string]any{
		"context":  string(id),
		"multiple": ev.Mode == "selectMultiple",
	}
	if ev.BackendNodeID != nil {
		params["element"] = map[string]any{"sharedId": fmt.Sprintf("node-%d", *ev.BackendNodeID)}
	}
	p.router.Emit("input.fileDialogOpened", id, params)
}
