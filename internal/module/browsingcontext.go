package module

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"bidimapper/internal/store"
	"bidimapper/pkg/domain"
)

// BrowsingContextModule browsingContext.* 命令
type BrowsingContextModule struct {
	*Deps
}

// NewBrowsingContextModule 创建模块
func NewBrowsingContextModule(d *Deps) *BrowsingContextModule {
	return &BrowsingContextModule{Deps: d}
}

type navigateParams struct {
	Context domain.ContextID `json:"context"`
	URL     string           `json:"url"`
	Wait    string           `json:"wait"`
}

// Navigate browsingContext.navigate。
// 对 iframe 发起的导航作用在 iframe 自身的 frame 上，不改写到顶层
// （通过 Page.navigate 的 frameId 指定）。
func (m *BrowsingContextModule) Navigate(ctx context.Context, cmd *domain.Command) (any, error) {
	var p navigateParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	if p.Wait == "" {
		p.Wait = "none"
	}

	t, c, derr := m.targetFor(p.Context)
	if derr != nil {
		return nil, derr
	}

	nav, aborted, derr := m.Contexts.StartNavigation(p.Context, p.URL)
	if derr != nil {
		return nil, derr
	}
	if aborted != nil {
		m.Router.Emit("browsingContext.navigationAborted", p.Context, navEventParams(p.Context, aborted))
	}
	m.Router.Emit("browsingContext.navigationStarted", p.Context, navEventParams(p.Context, nav))

	frameID := ""
	if c.Parent != "" {
		frameID = string(p.Context)
	}
	errorText, err := t.Navigate(ctx, p.URL, frameID)
	if err != nil {
		m.Contexts.NavigationFailed(p.Context, err.Error())
		return nil, domain.UnknownError(err)
	}
	if errorText != "" {
		failed := m.Contexts.NavigationFailed(p.Context, errorText)
		if failed != nil {
			m.Router.Emit("browsingContext.navigationFailed", p.Context, navEventParams(p.Context, failed))
		}
		return nil, domain.NewError(domain.ErrUnknownError, "navigation failed: %s", errorText)
	}

	result := map[string]any{"navigation": string(nav.ID), "url": p.URL}
	if p.Wait == "none" {
		return result, nil
	}

	stage := store.WaitComplete
	if p.Wait == "interactive" {
		stage = store.WaitInteractive
	}
	res, derr := m.awaitNavigation(ctx, p.Context, stage)
	if derr != nil {
		return nil, derr
	}
	return map[string]any{"navigation": string(res.Navigation), "url": res.URL}, nil
}

// awaitNavigation 等待导航到达指定终点，受 idleTimeout 约束
func (m *BrowsingContextModule) awaitNavigation(ctx context.Context, id domain.ContextID, stage store.WaitStage) (store.NavResult, *domain.Error) {
	wctx, cancel := m.handlerTimeout(ctx)
	defer cancel()
	select {
	case res := <-m.Contexts.WaitForNavigation(id, stage):
		if res.Err != nil {
			return res, res.Err
		}
		return res, nil
	case <-wctx.Done():
		return store.NavResult{}, domain.NewError(domain.ErrUnknownError, "timed out waiting for navigation in context '%s'", id)
	}
}

func navEventParams(id domain.ContextID, nav *store.Navigation) map[string]any {
	return map[string]any{
		"context":    string(id),
		"navigation": string(nav.ID),
		"timestamp":  nowMS(),
		"url":        nav.URL,
	}
}

type reloadParams struct {
	Context     domain.ContextID `json:"context"`
	IgnoreCache bool             `json:"ignoreCache"`
	Wait        string           `json:"wait"`
}

// Reload browsingContext.reload，复用导航状态机
func (m *BrowsingContextModule) Reload(ctx context.Context, cmd *domain.Command) (any, error) {
	var p reloadParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	if p.Wait == "" {
		p.Wait = "none"
	}

	t, c, derr := m.targetFor(p.Context)
	if derr != nil {
		return nil, derr
	}

	nav, aborted, derr := m.Contexts.StartNavigation(p.Context, c.URL)
	if derr != nil {
		return nil, derr
	}
	if aborted != nil {
		m.Router.Emit("browsingContext.navigationAborted", p.Context, navEventParams(p.Context, aborted))
	}
	m.Router.Emit("browsingContext.navigationStarted", p.Context, navEventParams(p.Context, nav))

	if err := t.Reload(ctx, p.IgnoreCache); err != nil {
		m.Contexts.NavigationFailed(p.Context, err.Error())
		return nil, domain.UnknownError(err)
	}

	result := map[string]any{"navigation": string(nav.ID), "url": nav.URL}
	if p.Wait == "none" {
		return result, nil
	}
	stage := store.WaitComplete
	if p.Wait == "interactive" {
		stage = store.WaitInteractive
	}
	res, derr := m.awaitNavigation(ctx, p.Context, stage)
	if derr != nil {
		return nil, derr
	}
	return map[string]any{"navigation": string(res.Navigation), "url": res.URL}, nil
}

type traverseParams struct {
	Context domain.ContextID `json:"context"`
	Delta   int              `json:"delta"`
}

// TraverseHistory browsingContext.traverseHistory
func (m *BrowsingContextModule) TraverseHistory(ctx context.Context, cmd *domain.Command) (any, error) {
	var p traverseParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	t, c, derr := m.targetFor(p.Context)
	if derr != nil {
		return nil, derr
	}
	if c.Parent != "" {
		return nil, domain.InvalidArgument("Cannot traverse history of non top-level context '%s'", p.Context)
	}

	current, entries, err := t.NavigationHistory(ctx)
	if err != nil {
		return nil, domain.UnknownError(err)
	}
	idx := current + p.Delta
	if idx < 0 || idx >= len(entries) {
		return nil, domain.NewError(domain.ErrNoSuchHistoryEntry, "no history entry at delta %d", p.Delta)
	}
	if err := t.NavigateToHistoryEntry(ctx, entries[idx].ID); err != nil {
		return nil, domain.UnknownError(err)
	}
	return domain.EmptyResult{}, nil
}

type activateParams struct {
	Context domain.ContextID `json:"context"`
}

// Activate browsingContext.activate，仅顶层上下文可用
func (m *BrowsingContextModule) Activate(ctx context.Context, cmd *domain.Command) (any, error) {
	var p activateParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	t, c, derr := m.targetFor(p.Context)
	if derr != nil {
		return nil, derr
	}
	if c.Parent != "" {
		return nil, domain.InvalidArgument("Cannot activate non top-level context '%s'", p.Context)
	}
	if err := t.BringToFront(ctx); err != nil {
		return nil, domain.UnknownError(err)
	}
	return domain.EmptyResult{}, nil
}

type getTreeParams struct {
	MaxDepth *int             `json:"maxDepth"`
	Root     domain.ContextID `json:"root"`
}

// GetTree browsingContext.getTree
func (m *BrowsingContextModule) GetTree(ctx context.Context, cmd *domain.Command) (any, error) {
	var p getTreeParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	depth := -1
	if p.MaxDepth != nil {
		depth = *p.MaxDepth
	}
	infos, derr := m.Contexts.Tree(p.Root, depth)
	if derr != nil {
		return nil, derr
	}
	return map[string]any{"contexts": infos}, nil
}

type createParams struct {
	Type             string               `json:"type"`
	ReferenceContext domain.ContextID     `json:"referenceContext"`
	UserContext      domain.UserContextID `json:"userContext"`
	Background       bool                 `json:"background"`
}

// Create browsingContext.create
func (m *BrowsingContextModule) Create(ctx context.Context, cmd *domain.Command) (any, error) {
	var p createParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	if p.ReferenceContext != "" {
		c, derr := m.Contexts.Get(p.ReferenceContext)
		if derr != nil {
			return nil, derr
		}
		if c.Parent != "" {
			return nil, domain.InvalidArgument("referenceContext '%s' is not a top-level context", p.ReferenceContext)
		}
	}
	browserContextID := ""
	if p.UserContext != "" {
		uc, derr := m.UserContexts.Get(p.UserContext)
		if derr != nil {
			return nil, derr
		}
		browserContextID = uc.BrowserContextID
	}

	targetID, err := m.Browser.CreateTarget(ctx, "about:blank", browserContextID, p.Background, p.Type == "window")
	if err != nil {
		return nil, domain.UnknownError(err)
	}

	// target attach 由事件层登记；轮询等待上下文出现
	id := domain.ContextID(targetID)
	if derr := m.awaitContext(ctx, id); derr != nil {
		return nil, derr
	}
	return map[string]any{"context": targetID}, nil
}

// awaitContext 等待事件层登记新上下文
func (m *BrowsingContextModule) awaitContext(ctx context.Context, id domain.ContextID) *domain.Error {
	wctx, cancel := m.handlerTimeout(ctx)
	defer cancel()
	for {
		if m.Contexts.Has(id) {
			return nil
		}
		select {
		case <-wctx.Done():
			return domain.NewError(domain.ErrUnknownError, "timed out waiting for context '%s' to attach", id)
		case <-tick():
		}
	}
}

type closeParams struct {
	Context      domain.ContextID `json:"context"`
	PromptUnload bool             `json:"promptUnload"`
}

// Close browsingContext.close，销毁级联由 target 分离事件完成
func (m *BrowsingContextModule) Close(ctx context.Context, cmd *domain.Command) (any, error) {
	var p closeParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	_, c, derr := m.targetFor(p.Context)
	if derr != nil {
		return nil, derr
	}
	if c.Parent != "" {
		return nil, domain.InvalidArgument("Cannot close non top-level context '%s'", p.Context)
	}
	if err := m.Browser.CloseTarget(ctx, c.TargetID); err != nil {
		return nil, domain.UnknownError(err)
	}
	return domain.EmptyResult{}, nil
}

type screenshotParams struct {
	Context domain.ContextID `json:"context"`
	Origin  string           `json:"origin"`
	Format  *struct {
		Type    string   `json:"type"`
		Quality *float64 `json:"quality"`
	} `json:"format"`
}

// CaptureScreenshot browsingContext.captureScreenshot
func (m *BrowsingContextModule) CaptureScreenshot(ctx context.Context, cmd *domain.Command) (any, error) {
	var p screenshotParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	t, _, derr := m.targetFor(p.Context)
	if derr != nil {
		return nil, derr
	}
	format := "png"
	var quality *int
	if p.Format != nil {
		switch p.Format.Type {
		case "image/jpeg":
			format = "jpeg"
		case "", "image/png":
			format = "png"
		default:
			return nil, domain.InvalidArgument("Unsupported image format '%s'", p.Format.Type)
		}
		if p.Format.Quality != nil {
			q := int(*p.Format.Quality * 100)
			quality = &q
		}
	}
	data, err := t.CaptureScreenshot(ctx, format, quality)
	if err != nil {
		return nil, domain.UnknownError(err)
	}
	return map[string]any{"data": base64.StdEncoding.EncodeToString(data)}, nil
}

type viewportParams struct {
	Context  domain.ContextID `json:"context"`
	Viewport *struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"viewport"`
	DevicePixelRatio *float64 `json:"devicePixelRatio"`
}

// SetViewport browsingContext.setViewport
func (m *BrowsingContextModule) SetViewport(ctx context.Context, cmd *domain.Command) (any, error) {
	var p viewportParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	t, c, derr := m.targetFor(p.Context)
	if derr != nil {
		return nil, derr
	}
	if c.Parent != "" {
		return nil, domain.InvalidArgument("Cannot set viewport on non top-level context '%s'", p.Context)
	}
	w, h := 0, 0
	if p.Viewport != nil {
		w, h = p.Viewport.Width, p.Viewport.Height
	}
	dpr := 0.0
	if p.DevicePixelRatio != nil {
		dpr = *p.DevicePixelRatio
	}
	if err := t.SetViewport(ctx, w, h, dpr); err != nil {
		return nil, domain.UnknownError(err)
	}
	return domain.EmptyResult{}, nil
}

type handlePromptParams struct {
	Context  domain.ContextID `json:"context"`
	Accept   *bool            `json:"accept"`
	UserText string           `json:"userText"`
}

// HandleUserPrompt browsingContext.handleUserPrompt
func (m *BrowsingContextModule) HandleUserPrompt(ctx context.Context, cmd *domain.Command) (any, error) {
	var p handlePromptParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	t, _, derr := m.targetFor(p.Context)
	if derr != nil {
		return nil, derr
	}
	if m.Contexts.Prompt(p.Context) == "" {
		return nil, domain.InvalidArgument("No open prompt in context '%s'", p.Context)
	}
	accept := true
	if p.Accept != nil {
		accept = *p.Accept
	}
	if err := t.HandleDialog(ctx, accept, p.UserText); err != nil {
		return nil, domain.UnknownError(err)
	}
	return domain.EmptyResult{}, nil
}
