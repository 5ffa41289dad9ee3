package event

import (
	"strings"

	"github.com/google/uuid"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/tidwall/gjson"

	cdpmgr "bidimapper/internal/cdp"
	"bidimapper/internal/protocol"
	"bidimapper/internal/store"
	"bidimapper/pkg/domain"
)

// ExecutionContextCreated 新执行上下文：登记 realm
func (p *Processor) ExecutionContextCreated(t *cdpmgr.Target, ev *runtime.ExecutionContextCreatedReply) {
	aux := gjson.ParseBytes(ev.Context.AuxData)
	frameID := aux.Get("frameId").Str
	ctxID := domain.ContextID(frameID)
	if frameID == "" {
		ctxID = domain.ContextID(t.ID())
	}

	realmType := "window"
	sandbox := ""
	switch aux.Get("type").Str {
	case "isolated":
		sandbox = ev.Context.Name
	case "worker":
		realmType = "dedicated-worker"
	}

	r := &store.Realm{
		ID:                 domain.RealmID(uuid.NewString()),
		Context:            ctxID,
		Origin:             ev.Context.Origin,
		Type:               realmType,
		Sandbox:            sandbox,
		ExecutionContextID: int(ev.Context.ID),
		TargetID:           t.ID(),
	}
	p.realms.Add(r)

	params := map[string]any{
		"realm":   string(r.ID),
		"origin":  r.Origin,
		"type":    r.Type,
		"context": string(ctxID),
	}
	if sandbox != "" {
		params["sandbox"] = sandbox
	}
	p.router.Emit("script.realmCreated", ctxID, params)
}

// ExecutionContextDestroyed 执行上下文销毁：摘除 realm
func (p *Processor) ExecutionContextDestroyed(t *cdpmgr.Target, ev *runtime.ExecutionContextDestroyedReply) {
	r, ok := p.realms.RemoveByExecutionContext(t.ID(), int(ev.ExecutionContextID))
	if !ok {
		return
	}
	p.router.Emit("script.realmDestroyed", r.Context, map[string]any{"realm": string(r.ID)})
}

// ConsoleAPICalled console 调用翻译为 log.entryAdded
func (p *Processor) ConsoleAPICalled(t *cdpmgr.Target, ev *runtime.ConsoleAPICalledReply) {
	realm, ctxID := p.realmFor(t.ID(), int(ev.ExecutionContextID))
	if !p.router.HasSubscribers("log.entryAdded", ctxID) {
		return
	}

	args := make([]protocol.RemoteValue, 0, len(ev.Args))
	for _, a := range ev.Args {
		args = append(args, protocol.FromRemoteObject(a))
	}
	text := consoleText(args)

	params := map[string]any{
		"type":      "console",
		"level":     consoleLevel(ev.Type),
		"method":    ev.Type,
		"text":      text,
		"timestamp": float64(ev.Timestamp),
		"args":      args,
		"source":    p.sourceInfo(realm, ctxID),
	}
	p.router.Emit("log.entryAdded", ctxID, params)
}

// ExceptionThrown 未捕获异常翻译为 log.entryAdded
func (p *Processor) ExceptionThrown(t *cdpmgr.Target, ev *runtime.ExceptionThrownReply) {
	ecID := 0
	if ev.ExceptionDetails.ExecutionContextID != nil {
		ecID = int(*ev.ExceptionDetails.ExecutionContextID)
	}
	realm, ctxID := p.realmFor(t.ID(), ecID)
	if !p.router.HasSubscribers("log.entryAdded", ctxID) {
		return
	}

	text := ev.ExceptionDetails.Text
	if ev.ExceptionDetails.Exception != nil && ev.ExceptionDetails.Exception.Description != nil {
		text = *ev.ExceptionDetails.Exception.Description
	}
	params := map[string]any{
		"type":      "javascript",
		"level":     "error",
		"text":      text,
		"timestamp": float64(ev.Timestamp),
		"source":    p.sourceInfo(realm, ctxID),
	}
	p.router.Emit("log.entryAdded", ctxID, params)
}

func (p *Processor) realmFor(targetID string, ecID int) (*store.Realm, domain.ContextID) {
	for _, r := range p.realms.Find("", "") {
		if r.TargetID == targetID && r.ExecutionContextID == ecID {
			return r, r.Context
		}
	}
	return nil, domain.ContextID(targetID)
}

func (p *Processor) sourceInfo(realm *store.Realm, ctxID domain.ContextID) map[string]any {
	src := map[string]any{"context": string(ctxID)}
	if realm != nil {
		src["realm"] = string(realm.ID)
	}
	return src
}

// consoleText 组装消息文本：首参为含说明符的字符串时走格式化，
// 失配时退回空格拼接
func consoleText(args []protocol.RemoteValue) string {
	if len(args) == 0 {
		return ""
	}
	if first, ok := args[0]["value"].(string); ok && args[0]["type"] == "string" && strings.Contains(first, "%") {
		if out, err := FormatConsoleText(first, args[1:]); err == nil {
			return out
		}
	}
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, coerceString(a))
	}
	return strings.Join(parts, " ")
}

func consoleLevel(method string) string {
	switch method {
	case "error", "assert":
		return "error"
	case "warning":
		return "warn"
	case "debug":
		return "debug"
	default:
		return "info"
	}
}
