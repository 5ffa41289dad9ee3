package module

import (
	"context"
	"encoding/json"

	"bidimapper/pkg/domain"
)

// GoogCDPModule goog:cdp.* 扩展命令：原始 CDP 直通
type GoogCDPModule struct {
	*Deps
}

// NewGoogCDPModule 创建模块
func NewGoogCDPModule(d *Deps) *GoogCDPModule {
	return &GoogCDPModule{Deps: d}
}

type sendCommandParams struct {
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Session string          `json:"session"`
}

// SendCommand goog:cdp.sendCommand
func (m *GoogCDPModule) SendCommand(ctx context.Context, cmd *domain.Command) (any, error) {
	var p sendCommandParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	t, ok := m.Gateway.TargetFor(p.Session)
	if !ok {
		if p.Session != "" {
			return nil, domain.InvalidArgument("No CDP session '%s'", p.Session)
		}
		// 未指定会话时取任一已附加 target
		m.Gateway.EachTarget(func(cand TargetAPI) {
			if t == nil {
				t = cand
			}
		})
		if t == nil {
			return nil, domain.InvalidArgument("No CDP session '%s'", p.Session)
		}
	}
	reply, err := t.SendCommand(ctx, p.Method, p.Params)
	if err != nil {
		return nil, domain.UnknownError(err)
	}
	var result any
	if len(reply) > 0 {
		if err := json.Unmarshal(reply, &result); err != nil {
			return nil, domain.UnknownError(err)
		}
	} else {
		result = map[string]any{}
	}
	return map[string]any{"result": result, "session": t.ID()}, nil
}

type getSessionParams struct {
	Context domain.ContextID `json:"context"`
}

// GetSession goog:cdp.getSession：上下文对应的 CDP 会话 id
func (m *GoogCDPModule) GetSession(ctx context.Context, cmd *domain.Command) (any, error) {
	var p getSessionParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	_, c, derr := m.targetFor(p.Context)
	if derr != nil {
		return nil, derr
	}
	return map[string]any{"session": c.TargetID}, nil
}
