package cdp

import (
	"context"
	"encoding/json"

	"github.com/mafredri/cdp/protocol/dom"
	"github.com/mafredri/cdp/protocol/emulation"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/input"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
)

// Navigate 在指定 frame 上发起导航，返回内核报告的错误文本（为空表示接受）
func (t *Target) Navigate(ctx context.Context, url string, frameID string) (string, error) {
	args := &page.NavigateArgs{URL: url}
	if frameID != "" {
		fid := page.FrameID(frameID)
		args.FrameID = &fid
	}
	reply, err := t.client.Page.Navigate(ctx, args)
	if err != nil {
		return "", err
	}
	if reply.ErrorText != nil {
		return *reply.ErrorText, nil
	}
	return "", nil
}

// Reload 重新加载当前文档
func (t *Target) Reload(ctx context.Context, ignoreCache bool) error {
	args := &page.ReloadArgs{}
	if ignoreCache {
		args.IgnoreCache = &ignoreCache
	}
	return t.client.Page.Reload(ctx, args)
}

// NavigationHistory 读取会话历史
func (t *Target) NavigationHistory(ctx context.Context) (int, []page.NavigationEntry, error) {
	reply, err := t.client.Page.GetNavigationHistory(ctx)
	if err != nil {
		return 0, nil, err
	}
	return reply.CurrentIndex, reply.Entries, nil
}

// NavigateToHistoryEntry 跳到指定历史条目
func (t *Target) NavigateToHistoryEntry(ctx context.Context, entryID int) error {
	return t.client.Page.NavigateToHistoryEntry(ctx, &page.NavigateToHistoryEntryArgs{EntryID: entryID})
}

// BringToFront 激活（置前）页面
func (t *Target) BringToFront(ctx context.Context) error {
	return t.client.Page.BringToFront(ctx)
}

// CaptureScreenshot 截图，format 为 "png"/"jpeg"
func (t *Target) CaptureScreenshot(ctx context.Context, format string, quality *int) ([]byte, error) {
	args := &page.CaptureScreenshotArgs{}
	if format != "" {
		args.Format = &format
	}
	if quality != nil {
		args.Quality = quality
	}
	reply, err := t.client.Page.CaptureScreenshot(ctx, args)
	if err != nil {
		return nil, err
	}
	return reply.Data, nil
}

// HandleDialog 处理 JavaScript 对话框
func (t *Target) HandleDialog(ctx context.Context, accept bool, promptText string) error {
	args := &page.HandleJavaScriptDialogArgs{Accept: accept}
	if promptText != "" {
		args.PromptText = &promptText
	}
	return t.client.Page.HandleJavaScriptDialog(ctx, args)
}

// SetViewport 覆盖视口指标；width/height 为 0 时清除覆盖
func (t *Target) SetViewport(ctx context.Context, width, height int, devicePixelRatio float64) error {
	if width == 0 && height == 0 {
		return t.client.Emulation.ClearDeviceMetricsOverride(ctx)
	}
	if devicePixelRatio == 0 {
		devicePixelRatio = 1
	}
	return t.client.Emulation.SetDeviceMetricsOverride(ctx, &emulation.SetDeviceMetricsOverrideArgs{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: devicePixelRatio,
		Mobile:            false,
	})
}

// AddScriptToEvaluateOnNewDocument 下发预加载脚本，返回 CDP 标识
func (t *Target) AddScriptToEvaluateOnNewDocument(ctx context.Context, source, worldName string) (string, error) {
	args := &page.AddScriptToEvaluateOnNewDocumentArgs{Source: source}
	if worldName != "" {
		args.WorldName = &worldName
	}
	reply, err := t.client.Page.AddScriptToEvaluateOnNewDocument(ctx, args)
	if err != nil {
		return "", err
	}
	return string(reply.Identifier), nil
}

// RemoveScriptToEvaluateOnNewDocument 撤销预加载脚本
func (t *Target) RemoveScriptToEvaluateOnNewDocument(ctx context.Context, identifier string) error {
	return t.client.Page.RemoveScriptToEvaluateOnNewDocument(ctx, &page.RemoveScriptToEvaluateOnNewDocumentArgs{
		Identifier: page.ScriptIdentifier(identifier),
	})
}

// Evaluate 在执行上下文里求值表达式
func (t *Target) Evaluate(ctx context.Context, args *runtime.EvaluateArgs) (*runtime.EvaluateReply, error) {
	return t.client.Runtime.Evaluate(ctx, args)
}

// CallFunctionOn 在执行上下文里调用函数声明
func (t *Target) CallFunctionOn(ctx context.Context, args *runtime.CallFunctionOnArgs) (*runtime.CallFunctionOnReply, error) {
	return t.client.Runtime.CallFunctionOn(ctx, args)
}

// ReleaseObject 释放远端对象句柄
func (t *Target) ReleaseObject(ctx context.Context, objectID runtime.RemoteObjectID) error {
	return t.client.Runtime.ReleaseObject(ctx, &runtime.ReleaseObjectArgs{ObjectID: objectID})
}

// ContinueRequest 放行被暂停的请求
func (t *Target) ContinueRequest(ctx context.Context, args *fetch.ContinueRequestArgs) error {
	return t.client.Fetch.ContinueRequest(ctx, args)
}

// ContinueResponse 放行被暂停的响应
func (t *Target) ContinueResponse(ctx context.Context, args *fetch.ContinueResponseArgs) error {
	return t.client.Fetch.ContinueResponse(ctx, args)
}

// FulfillRequest 以合成响应了结请求
func (t *Target) FulfillRequest(ctx context.Context, args *fetch.FulfillRequestArgs) error {
	return t.client.Fetch.FulfillRequest(ctx, args)
}

// FailRequest 使请求失败
func (t *Target) FailRequest(ctx context.Context, args *fetch.FailRequestArgs) error {
	return t.client.Fetch.FailRequest(ctx, args)
}

// ContinueWithAuth 应答认证挑战
func (t *Target) ContinueWithAuth(ctx context.Context, args *fetch.ContinueWithAuthArgs) error {
	return t.client.Fetch.ContinueWithAuth(ctx, args)
}

// SetCacheDisabled 旁路/恢复 HTTP 缓存
func (t *Target) SetCacheDisabled(ctx context.Context, disabled bool) error {
	return t.client.Network.SetCacheDisabled(ctx, &network.SetCacheDisabledArgs{CacheDisabled: disabled})
}

// DispatchKeyEvent 注入键盘事件
func (t *Target) DispatchKeyEvent(ctx context.Context, args *input.DispatchKeyEventArgs) error {
	return t.client.Input.DispatchKeyEvent(ctx, args)
}

// DispatchMouseEvent 注入鼠标事件
func (t *Target) DispatchMouseEvent(ctx context.Context, args *input.DispatchMouseEventArgs) error {
	return t.client.Input.DispatchMouseEvent(ctx, args)
}

// SetFileInputFiles 为文件输入元素设置文件列表
func (t *Target) SetFileInputFiles(ctx context.Context, files []string, objectID runtime.RemoteObjectID) error {
	args := &dom.SetFileInputFilesArgs{Files: files}
	args.ObjectID = &objectID
	return t.client.DOM.SetFileInputFiles(ctx, args)
}

// SendCommand 原样转发 CDP 命令（goog:cdp.sendCommand）
func (t *Target) SendCommand(ctx context.Context, method string, params []byte) ([]byte, error) {
	var reply json.RawMessage
	var args any
	if len(params) > 0 {
		args = json.RawMessage(params)
	}
	if err := rpcc.Invoke(ctx, method, args, &reply, t.conn); err != nil {
		return nil, err
	}
	return reply, nil
}
