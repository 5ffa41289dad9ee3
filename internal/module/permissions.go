package module

import (
	"context"
	"encoding/json"

	"bidimapper/pkg/domain"
)

// PermissionsModule permissions.* 命令
type PermissionsModule struct {
	*Deps
}

// NewPermissionsModule 创建模块
func NewPermissionsModule(d *Deps) *PermissionsModule {
	return &PermissionsModule{Deps: d}
}

type setPermissionParams struct {
	Descriptor struct {
		Name string `json:"name"`
	} `json:"descriptor"`
	State       string               `json:"state"`
	Origin      string               `json:"origin"`
	UserContext domain.UserContextID `json:"userContext"`
}

// SetPermission permissions.setPermission
func (m *PermissionsModule) SetPermission(ctx context.Context, cmd *domain.Command) (any, error) {
	var p setPermissionParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	browserContextID := ""
	if p.UserContext != "" {
		uc, derr := m.UserContexts.Get(p.UserContext)
		if derr != nil {
			return nil, derr
		}
		browserContextID = uc.BrowserContextID
	}
	if err := m.Browser.SetPermission(ctx, p.Descriptor.Name, p.State, p.Origin, browserContextID); err != nil {
		return nil, domain.UnknownError(err)
	}
	m.Log.Debug("设置权限", "permission", p.Descriptor.Name, "state", p.State, "origin", p.Origin)
	return domain.EmptyResult{}, nil
}
