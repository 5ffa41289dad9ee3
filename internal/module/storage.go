package module

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mafredri/cdp/protocol/network"

	"bidimapper/internal/protocol"
	"bidimapper/pkg/domain"
)

// StorageModule storage.* 命令（cookie 分区）
type StorageModule struct {
	*Deps
}

// NewStorageModule 创建模块
func NewStorageModule(d *Deps) *StorageModule {
	return &StorageModule{Deps: d}
}

type cookiePartition struct {
	Type        string               `json:"type"` // "context" | "storageKey"
	Context     domain.ContextID     `json:"context"`
	UserContext domain.UserContextID `json:"userContext"`
}

// browserContextFor 分区描述符解析到 CDP browser context
func (m *StorageModule) browserContextFor(p *cookiePartition) (string, *domain.Error) {
	if p == nil {
		return "", nil
	}
	switch p.Type {
	case "context":
		c, derr := m.Contexts.Get(p.Context)
		if derr != nil {
			return "", derr
		}
		uc, derr := m.UserContexts.Get(c.UserContext)
		if derr != nil {
			return "", derr
		}
		return uc.BrowserContextID, nil
	case "storageKey", "":
		if p.UserContext != "" {
			uc, derr := m.UserContexts.Get(p.UserContext)
			if derr != nil {
				return "", derr
			}
			return uc.BrowserContextID, nil
		}
		return "", nil
	default:
		return "", domain.InvalidArgument("Unknown partition type '%s'", p.Type)
	}
}

type cookieFilter struct {
	Name   *string `json:"name"`
	Domain *string `json:"domain"`
	Path   *string `json:"path"`
}

func (f *cookieFilter) matches(c network.Cookie) bool {
	if f == nil {
		return true
	}
	if f.Name != nil && *f.Name != c.Name {
		return false
	}
	if f.Domain != nil && !strings.EqualFold(*f.Domain, c.Domain) {
		return false
	}
	if f.Path != nil && *f.Path != c.Path {
		return false
	}
	return true
}

type getCookiesParams struct {
	Filter    *cookieFilter    `json:"filter"`
	Partition *cookiePartition `json:"partition"`
}

// GetCookies storage.getCookies
func (m *StorageModule) GetCookies(ctx context.Context, cmd *domain.Command) (any, error) {
	var p getCookiesParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	bc, derr := m.browserContextFor(p.Partition)
	if derr != nil {
		return nil, derr
	}
	cookies, err := m.Browser.GetCookies(ctx, bc)
	if err != nil {
		return nil, domain.UnknownError(err)
	}
	out := make([]domain.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if !p.Filter.matches(c) {
			continue
		}
		out = append(out, toBiDiCookie(c))
	}
	return map[string]any{
		"cookies":      out,
		"partitionKey": map[string]any{},
	}, nil
}

type setCookieParams struct {
	Cookie struct {
		Name     string            `json:"name"`
		Value    domain.BytesValue `json:"value"`
		Domain   string            `json:"domain"`
		Path     *string           `json:"path"`
		HTTPOnly *bool             `json:"httpOnly"`
		Secure   *bool             `json:"secure"`
		SameSite *string           `json:"sameSite"`
		Expiry   *int64            `json:"expiry"`
	} `json:"cookie"`
	Partition *cookiePartition `json:"partition"`
}

// SetCookie storage.setCookie
func (m *StorageModule) SetCookie(ctx context.Context, cmd *domain.Command) (any, error) {
	var p setCookieParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	bc, derr := m.browserContextFor(p.Partition)
	if derr != nil {
		return nil, derr
	}
	raw, err := protocol.RawBytes(p.Cookie.Value)
	if err != nil {
		return nil, domain.AsError(err)
	}

	param := network.CookieParam{
		Name:   p.Cookie.Name,
		Value:  string(raw),
		Domain: &p.Cookie.Domain,
	}
	param.Path = p.Cookie.Path
	param.HTTPOnly = p.Cookie.HTTPOnly
	param.Secure = p.Cookie.Secure
	if p.Cookie.SameSite != nil {
		ss := network.CookieSameSite(*p.Cookie.SameSite)
		param.SameSite = ss
	}
	if p.Cookie.Expiry != nil {
		exp := network.TimeSinceEpoch(float64(*p.Cookie.Expiry))
		param.Expires = exp
	}
	if cerr := m.Browser.SetCookies(ctx, []network.CookieParam{param}, bc); cerr != nil {
		return nil, domain.UnknownError(cerr)
	}
	return map[string]any{"partitionKey": map[string]any{}}, nil
}

type deleteCookiesParams struct {
	Filter    *cookieFilter    `json:"filter"`
	Partition *cookiePartition `json:"partition"`
}

// DeleteCookies storage.deleteCookies：读出命中项后重写剩余集合
func (m *StorageModule) DeleteCookies(ctx context.Context, cmd *domain.Command) (any, error) {
	var p deleteCookiesParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	bc, derr := m.browserContextFor(p.Partition)
	if derr != nil {
		return nil, derr
	}
	cookies, err := m.Browser.GetCookies(ctx, bc)
	if err != nil {
		return nil, domain.UnknownError(err)
	}
	keep := make([]network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if p.Filter.matches(c) {
			continue
		}
		keep = append(keep, cookieToParam(c))
	}
	if err := m.Browser.DeleteCookies(ctx, bc); err != nil {
		return nil, domain.UnknownError(err)
	}
	if len(keep) > 0 {
		if err := m.Browser.SetCookies(ctx, keep, bc); err != nil {
			return nil, domain.UnknownError(err)
		}
	}
	return map[string]any{"partitionKey": map[string]any{}}, nil
}

func toBiDiCookie(c network.Cookie) domain.Cookie {
	out := domain.Cookie{
		Name:     c.Name,
		Value:    domain.StringValue(c.Value),
		Domain:   c.Domain,
		Path:     c.Path,
		Size:     c.Size,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: strings.ToLower(string(c.SameSite)),
	}
	if c.Expires > 0 {
		exp := int64(c.Expires)
		out.Expiry = &exp
	}
	return out
}

func cookieToParam(c network.Cookie) network.CookieParam {
	p := network.CookieParam{Name: c.Name, Value: c.Value}
	d := c.Domain
	p.Domain = &d
	path := c.Path
	p.Path = &path
	ho := c.HTTPOnly
	p.HTTPOnly = &ho
	sec := c.Secure
	p.Secure = &sec
	if c.SameSite != "" {
		p.SameSite = c.SameSite
	}
	if c.Expires > 0 {
		p.Expires = network.TimeSinceEpoch(c.Expires)
	}
	return p
}
