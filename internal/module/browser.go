package module

import (
	"context"
	"encoding/json"

	"bidimapper/pkg/domain"
)

// BrowserModule browser.* 命令
type BrowserModule struct {
	*Deps
}

// NewBrowserModule 创建模块
func NewBrowserModule(d *Deps) *BrowserModule {
	return &BrowserModule{Deps: d}
}

// Close browser.close：关浏览器并结束会话
func (m *BrowserModule) Close(ctx context.Context, cmd *domain.Command) (any, error) {
	if err := m.Browser.CloseBrowser(ctx); err != nil {
		return nil, domain.NewError(domain.ErrUnableToCloseBrowser, "cannot close browser: %s", err)
	}
	if m.EndSession != nil {
		m.EndSession("browser closed")
	}
	return domain.EmptyResult{}, nil
}

// CreateUserContext browser.createUserContext
func (m *BrowserModule) CreateUserContext(ctx context.Context, cmd *domain.Command) (any, error) {
	id, err := m.Browser.CreateBrowserContext(ctx)
	if err != nil {
		return nil, domain.UnknownError(err)
	}
	uc := m.UserContexts.Add(id)
	m.Log.Info("创建用户上下文", "userContext", string(uc.ID))
	return map[string]any{"userContext": string(uc.ID)}, nil
}

type removeUserContextParams struct {
	UserContext domain.UserContextID `json:"userContext"`
}

// RemoveUserContext browser.removeUserContext：先关其全部顶层上下文
func (m *BrowserModule) RemoveUserContext(ctx context.Context, cmd *domain.Command) (any, error) {
	var p removeUserContextParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	uc, derr := m.UserContexts.Get(p.UserContext)
	if derr != nil {
		return nil, derr
	}
	if uc.ID == domain.DefaultUserContext {
		return nil, domain.InvalidArgument("Cannot remove default user context")
	}

	for _, top := range m.Contexts.ByUserContext(p.UserContext) {
		c, err := m.Contexts.Get(top)
		if err != nil {
			continue
		}
		if cerr := m.Browser.CloseTarget(ctx, c.TargetID); cerr != nil {
			m.Log.Warn("关闭用户上下文页面失败", "context", string(top), "error", cerr)
		}
	}
	if err := m.Browser.DisposeBrowserContext(ctx, uc.BrowserContextID); err != nil {
		return nil, domain.UnknownError(err)
	}
	if _, derr := m.UserContexts.Remove(p.UserContext); derr != nil {
		return nil, derr
	}
	return domain.EmptyResult{}, nil
}

// GetUserContexts browser.getUserContexts
func (m *BrowserModule) GetUserContexts(ctx context.Context, cmd *domain.Command) (any, error) {
	ucs := m.UserContexts.All()
	out := make([]map[string]any, 0, len(ucs))
	for _, uc := range ucs {
		out = append(out, map[string]any{"userContext": string(uc.ID)})
	}
	return map[string]any{"userContexts": out}, nil
}
