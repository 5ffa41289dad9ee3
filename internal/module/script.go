package module

import (
	"context"
	"encoding/json"

	"github.com/mafredri/cdp/protocol/runtime"

	"bidimapper/internal/protocol"
	"bidimapper/internal/store"
	"bidimapper/pkg/domain"
)

// ScriptModule script.* 命令
type ScriptModule struct {
	*Deps
}

// NewScriptModule 创建模块
func NewScriptModule(d *Deps) *ScriptModule {
	return &ScriptModule{Deps: d}
}

type scriptTarget struct {
	Realm   domain.RealmID   `json:"realm"`
	Context domain.ContextID `json:"context"`
	Sandbox string           `json:"sandbox"`
}

// resolveTarget 把 script target 解析到 realm 与其所属 CDP target
func (m *ScriptModule) resolveTarget(st scriptTarget) (*store.Realm, TargetAPI, *domain.Error) {
	var realm *store.Realm
	switch {
	case st.Realm != "":
		r, derr := m.Realms.Get(st.Realm)
		if derr != nil {
			return nil, nil, derr
		}
		realm = r
	case st.Context != "":
		if _, derr := m.Contexts.Get(st.Context); derr != nil {
			return nil, nil, derr
		}
		var ok bool
		if st.Sandbox != "" {
			realm, ok = m.Realms.SandboxRealm(st.Context, st.Sandbox)
		} else {
			realm, ok = m.Realms.DefaultRealm(st.Context)
		}
		if !ok {
			return nil, nil, domain.InvalidArgument("No realm for context '%s'", st.Context)
		}
	default:
		return nil, nil, domain.InvalidArgument("Either realm or context must be provided in \"target\"")
	}
	t, ok := m.Gateway.TargetFor(realm.TargetID)
	if !ok {
		return nil, nil, domain.InvalidArgument("Realm '%s' is gone", realm.ID)
	}
	return realm, t, nil
}

type evaluateParams struct {
	Expression      string       `json:"expression"`
	AwaitPromise    bool         `json:"awaitPromise"`
	Target          scriptTarget `json:"target"`
	ResultOwnership string       `json:"resultOwnership"`
}

// Evaluate script.evaluate
func (m *ScriptModule) Evaluate(ctx context.Context, cmd *domain.Command) (any, error) {
	var p evaluateParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	realm, t, derr := m.resolveTarget(p.Target)
	if derr != nil {
		return nil, derr
	}

	ecID := runtime.ExecutionContextID(realm.ExecutionContextID)
	args := &runtime.EvaluateArgs{Expression: p.Expression}
	args.ContextID = &ecID
	args.AwaitPromise = &p.AwaitPromise
	reply, err := t.Evaluate(ctx, args)
	if err != nil {
		return nil, domain.UnknownError(err)
	}
	return m.scriptResult(realm, reply.Result, reply.ExceptionDetails), nil
}

type callFunctionParams struct {
	FunctionDeclaration string            `json:"functionDeclaration"`
	AwaitPromise        bool              `json:"awaitPromise"`
	Target              scriptTarget      `json:"target"`
	Arguments           []json.RawMessage `json:"arguments"`
	This                json.RawMessage   `json:"this"`
	ResultOwnership     string            `json:"resultOwnership"`
}

// CallFunction script.callFunction
func (m *ScriptModule) CallFunction(ctx context.Context, cmd *domain.Command) (any, error) {
	var p callFunctionParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	realm, t, derr := m.resolveTarget(p.Target)
	if derr != nil {
		return nil, derr
	}

	callArgs := make([]runtime.CallArgument, 0, len(p.Arguments))
	for _, raw := range p.Arguments {
		ca, cerr := toCallArgument(raw)
		if cerr != nil {
			return nil, cerr
		}
		callArgs = append(callArgs, ca)
	}

	ecID := runtime.ExecutionContextID(realm.ExecutionContextID)
	args := &runtime.CallFunctionOnArgs{FunctionDeclaration: p.FunctionDeclaration}
	args.ExecutionContextID = &ecID
	args.Arguments = callArgs
	args.AwaitPromise = &p.AwaitPromise
	reply, err := t.CallFunctionOn(ctx, args)
	if err != nil {
		return nil, domain.UnknownError(err)
	}
	return m.scriptResult(realm, reply.Result, reply.ExceptionDetails), nil
}

// toCallArgument BiDi LocalValue → CDP CallArgument
func toCallArgument(raw json.RawMessage) (runtime.CallArgument, *domain.Error) {
	var lv struct {
		Type   string          `json:"type"`
		Value  json.RawMessage `json:"value"`
		Handle string          `json:"handle"`
	}
	if err := json.Unmarshal(raw, &lv); err != nil {
		return runtime.CallArgument{}, domain.InvalidArgument("malformed argument: %s", err)
	}
	if lv.Handle != "" {
		oid := runtime.RemoteObjectID(lv.Handle)
		return runtime.CallArgument{ObjectID: &oid}, nil
	}
	switch lv.Type {
	case "undefined":
		return runtime.CallArgument{}, nil
	case "null":
		return runtime.CallArgument{Value: json.RawMessage("null")}, nil
	case "string", "boolean":
		return runtime.CallArgument{Value: lv.Value}, nil
	case "number":
		// 特殊数值走 unserializableValue
		var s string
		if json.Unmarshal(lv.Value, &s) == nil {
			uv := runtime.UnserializableValue(s)
			return runtime.CallArgument{UnserializableValue: &uv}, nil
		}
		return runtime.CallArgument{Value: lv.Value}, nil
	case "bigint":
		var s string
		if err := json.Unmarshal(lv.Value, &s); err != nil {
			return runtime.CallArgument{}, domain.InvalidArgument("Invalid bigint value")
		}
		uv := runtime.UnserializableValue(s + "n")
		return runtime.CallArgument{UnserializableValue: &uv}, nil
	default:
		return runtime.CallArgument{}, domain.InvalidArgument("Unsupported argument type '%s'", lv.Type)
	}
}

// scriptResult 组装 evaluate/callFunction 的结果帧
func (m *ScriptModule) scriptResult(realm *store.Realm, result runtime.RemoteObject, exc *runtime.ExceptionDetails) map[string]any {
	if exc != nil {
		details := map[string]any{
			"text":         exc.Text,
			"lineNumber":   exc.LineNumber,
			"columnNumber": exc.ColumnNumber,
			"stackTrace":   map[string]any{"callFrames": []any{}},
		}
		if exc.Exception != nil {
			details["exception"] = protocol.FromRemoteObject(*exc.Exception)
			if exc.Exception.Description != nil {
				details["text"] = *exc.Exception.Description
			}
		}
		return map[string]any{
			"type":             "exception",
			"realm":            string(realm.ID),
			"exceptionDetails": details,
		}
	}
	return map[string]any{
		"type":   "success",
		"realm":  string(realm.ID),
		"result": protocol.FromRemoteObject(result),
	}
}

type disownParams struct {
	Handles []string     `json:"handles"`
	Target  scriptTarget `json:"target"`
}

// Disown script.disown：释放句柄，未知句柄忽略
func (m *ScriptModule) Disown(ctx context.Context, cmd *domain.Command) (any, error) {
	var p disownParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	_, t, derr := m.resolveTarget(p.Target)
	if derr != nil {
		return nil, derr
	}
	for _, h := range p.Handles {
		if err := t.ReleaseObject(ctx, runtime.RemoteObjectID(h)); err != nil {
			m.Log.Debug("释放句柄失败", "handle", h, "error", err)
		}
	}
	return domain.EmptyResult{}, nil
}

type getRealmsParams struct {
	Context domain.ContextID `json:"context"`
	Type    string           `json:"type"`
}

// GetRealms script.getRealms
func (m *ScriptModule) GetRealms(ctx context.Context, cmd *domain.Command) (any, error) {
	var p getRealmsParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	if p.Context != "" {
		if _, derr := m.Contexts.Get(p.Context); derr != nil {
			return nil, derr
		}
	}
	realms := m.Realms.Find(p.Context, p.Type)
	out := make([]map[string]any, 0, len(realms))
	for _, r := range realms {
		info := map[string]any{
			"realm":  string(r.ID),
			"origin": r.Origin,
			"type":   r.Type,
		}
		if r.Type == "window" {
			info["context"] = string(r.Context)
			if r.Sandbox != "" {
				info["sandbox"] = r.Sandbox
			}
		}
		out = append(out, info)
	}
	return map[string]any{"realms": out}, nil
}

type addPreloadScriptParams struct {
	FunctionDeclaration string                 `json:"functionDeclaration"`
	Contexts            []domain.ContextID     `json:"contexts"`
	UserContexts        []domain.UserContextID `json:"userContexts"`
	Sandbox             string                 `json:"sandbox"`
}

// AddPreloadScript script.addPreloadScript：登记并立即下发到命中的 target
func (m *ScriptModule) AddPreloadScript(ctx context.Context, cmd *domain.Command) (any, error) {
	var p addPreloadScriptParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	if len(p.Contexts) > 0 && len(p.UserContexts) > 0 {
		return nil, domain.InvalidArgument("Cannot specify both contexts and userContexts")
	}
	for _, c := range p.Contexts {
		bc, derr := m.Contexts.Get(c)
		if derr != nil {
			return nil, derr
		}
		if bc.Parent != "" {
			return nil, domain.InvalidArgument("Preload script context '%s' must be top-level", c)
		}
	}
	for _, uc := range p.UserContexts {
		if _, derr := m.UserContexts.Get(uc); derr != nil {
			return nil, derr
		}
	}

	ps := m.Preload.Add(p.FunctionDeclaration, p.Sandbox, p.Contexts, p.UserContexts)
	source := "(" + p.FunctionDeclaration + ")();"

	for _, top := range m.Contexts.TopLevels() {
		c, derr := m.Contexts.Get(top)
		if derr != nil || !ps.AppliesTo(top, c.UserContext) {
			continue
		}
		t, ok := m.Gateway.TargetFor(c.TargetID)
		if !ok {
			continue
		}
		ident, err := t.AddScriptToEvaluateOnNewDocument(ctx, source, p.Sandbox)
		if err != nil {
			m.Log.Warn("下发预加载脚本失败", "target", c.TargetID, "error", err)
			continue
		}
		m.Preload.SetCDPIdent(ps.ID, c.TargetID, ident)
	}
	return map[string]any{"script": string(ps.ID)}, nil
}

type removePreloadScriptParams struct {
	Script domain.PreloadScriptID `json:"script"`
}

// RemovePreloadScript script.removePreloadScript
func (m *ScriptModule) RemovePreloadScript(ctx context.Context, cmd *domain.Command) (any, error) {
	var p removePreloadScriptParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	ps, derr := m.Preload.Remove(p.Script)
	if derr != nil {
		return nil, derr
	}
	for targetID, ident := range m.Preload.CDPIdents(ps) {
		t, ok := m.Gateway.TargetFor(targetID)
		if !ok {
			continue
		}
		if err := t.RemoveScriptToEvaluateOnNewDocument(ctx, ident); err != nil {
			m.Log.Debug("撤销预加载脚本失败", "target", targetID, "error", err)
		}
	}
	return domain.EmptyResult{}, nil
}
