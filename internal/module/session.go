package module

import (
	"context"
	"encoding/json"

	"bidimapper/pkg/domain"
)

// SessionModule session.* 命令
type SessionModule struct {
	*Deps
}

// NewSessionModule 创建模块
func NewSessionModule(d *Deps) *SessionModule {
	return &SessionModule{Deps: d}
}

// Status session.status：mapper 启动即就绪，不再接受第二个会话
func (m *SessionModule) Status(ctx context.Context, cmd *domain.Command) (any, error) {
	return map[string]any{
		"ready":   false,
		"message": "already connected",
	}, nil
}

// New session.new：单会话模型下返回当前会话能力
func (m *SessionModule) New(ctx context.Context, cmd *domain.Command) (any, error) {
	return map[string]any{
		"sessionId": "default",
		"capabilities": map[string]any{
			"acceptInsecureCerts":     m.Options.AcceptInsecureCerts,
			"browserName":             "chrome",
			"proxy":                   map[string]any{},
			"setWindowRect":           false,
			"unhandledPromptBehavior": string(m.Options.UnhandledPromptBehavior),
		},
	}, nil
}

// End session.end：清理订阅并触发会话收尾
func (m *SessionModule) End(ctx context.Context, cmd *domain.Command) (any, error) {
	m.Subs.Clear()
	if m.EndSession != nil {
		m.EndSession("session ended")
	}
	return domain.EmptyResult{}, nil
}

type subscribeParams struct {
	Events   []string           `json:"events"`
	Contexts []domain.ContextID `json:"contexts"`
}

// Subscribe session.subscribe。上下文先全部校验再归一到顶层，
// 任何未知上下文让整个调用失败且无副作用。
func (m *SessionModule) Subscribe(ctx context.Context, cmd *domain.Command) (any, error) {
	var p subscribeParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	for _, c := range p.Contexts {
		if !m.Contexts.Has(c) {
			return nil, domain.NoSuchFrame(c)
		}
	}
	if derr := m.Subs.Subscribe(p.Events, p.Contexts, cmd.Channel); derr != nil {
		return nil, derr
	}
	return domain.EmptyResult{}, nil
}

// Unsubscribe session.unsubscribe，整体原子：任一缺失订阅则全不生效
func (m *SessionModule) Unsubscribe(ctx context.Context, cmd *domain.Command) (any, error) {
	var p subscribeParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	for _, c := range p.Contexts {
		if !m.Contexts.Has(c) {
			return nil, domain.NoSuchFrame(c)
		}
	}
	if derr := m.Subs.Unsubscribe(p.Events, p.Contexts, cmd.Channel); derr != nil {
		return nil, derr
	}
	return domain.EmptyResult{}, nil
}
