package module

import (
	"context"
	"encoding/json"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"

	"bidimapper/internal/protocol"
	"bidimapper/internal/store"
	"bidimapper/internal/urlpattern"
	"bidimapper/pkg/domain"
)

// NetworkModule network.* 命令
type NetworkModule struct {
	*Deps
}

// NewNetworkModule 创建模块
func NewNetworkModule(d *Deps) *NetworkModule {
	return &NetworkModule{Deps: d}
}

type urlPatternParam struct {
	Type     string  `json:"type"`
	Pattern  string  `json:"pattern"`
	Protocol *string `json:"protocol"`
	Hostname *string `json:"hostname"`
	Port     *string `json:"port"`
	Pathname *string `json:"pathname"`
	Search   *string `json:"search"`
}

type addInterceptParams struct {
	Phases      []string           `json:"phases"`
	URLPatterns []urlPatternParam  `json:"urlPatterns"`
	Contexts    []domain.ContextID `json:"contexts"`
}

// AddIntercept network.addIntercept
func (m *NetworkModule) AddIntercept(ctx context.Context, cmd *domain.Command) (any, error) {
	var p addInterceptParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}

	phases := make([]store.Phase, 0, len(p.Phases))
	for _, ph := range p.Phases {
		switch store.Phase(ph) {
		case store.PhaseBeforeRequestSent, store.PhaseResponseStarted, store.PhaseAuthRequired:
			phases = append(phases, store.Phase(ph))
		default:
			return nil, domain.InvalidArgument("Unknown intercept phase '%s'", ph)
		}
	}

	patterns := make([]*urlpattern.Pattern, 0, len(p.URLPatterns))
	for _, up := range p.URLPatterns {
		pat, derr := parsePattern(up)
		if derr != nil {
			return nil, derr
		}
		patterns = append(patterns, pat)
	}

	// 上下文过滤器只接受顶层上下文，未知或非顶层上下文在任何登记前拒绝
	contexts := make([]domain.ContextID, 0, len(p.Contexts))
	for _, c := range p.Contexts {
		bc, derr := m.Contexts.Get(c)
		if derr != nil {
			return nil, derr
		}
		if bc.Parent != "" {
			return nil, domain.InvalidArgument("Intercept context '%s' must be top-level", c)
		}
		contexts = append(contexts, c)
	}

	hadIntercepts := m.Network.HasIntercepts()
	it := m.Network.AddIntercept(phases, patterns, contexts)
	if !hadIntercepts {
		m.Gateway.EachTarget(func(t TargetAPI) {
			if err := t.EnableFetch(); err != nil {
				m.Log.Warn("开启 Fetch 域失败", "target", t.ID(), "error", err)
			}
		})
	}
	return map[string]any{"intercept": string(it.ID)}, nil
}

func parsePattern(up urlPatternParam) (*urlpattern.Pattern, *domain.Error) {
	switch up.Type {
	case "string":
		p, err := urlpattern.ParseString(up.Pattern)
		if err != nil {
			return nil, domain.AsError(err)
		}
		return p, nil
	case "pattern":
		p, err := urlpattern.ParseStruct(up.Protocol, up.Hostname, up.Port, up.Pathname, up.Search)
		if err != nil {
			return nil, domain.AsError(err)
		}
		return p, nil
	default:
		return nil, domain.InvalidArgument("Unknown URL pattern type '%s'", up.Type)
	}
}

type removeInterceptParams struct {
	Intercept domain.InterceptID `json:"intercept"`
}

// RemoveIntercept network.removeIntercept
func (m *NetworkModule) RemoveIntercept(ctx context.Context, cmd *domain.Command) (any, error) {
	var p removeInterceptParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	if derr := m.Network.RemoveIntercept(p.Intercept); derr != nil {
		return nil, derr
	}
	if !m.Network.HasIntercepts() {
		m.Gateway.EachTarget(func(t TargetAPI) {
			if err := t.DisableFetch(); err != nil {
				m.Log.Warn("关闭 Fetch 域失败", "target", t.ID(), "error", err)
			}
		})
	}
	return domain.EmptyResult{}, nil
}

// fetchTargetFor 被阻塞请求所属的 target
func (m *NetworkModule) fetchTargetFor(r *store.Request) (TargetAPI, *domain.Error) {
	t, _, derr := m.targetFor(r.Context)
	if derr == nil {
		return t, nil
	}
	// 上下文可能已不在树里（如导航替换）；退回顶层归一
	top := m.Contexts.TopLevelOf(r.Context)
	if c, err := m.Contexts.Get(top); err == nil {
		if t, ok := m.Gateway.TargetFor(c.TargetID); ok {
			return t, nil
		}
	}
	return nil, domain.NoSuchRequest(r.ID)
}

type continueRequestParams struct {
	Request domain.RequestID `json:"request"`
	URL     *string          `json:"url"`
	Method  *string          `json:"method"`
	Headers []domain.Header  `json:"headers"`
	Cookies []domain.Header  `json:"cookies"`
	Body    *domain.BytesValue `json:"body"`
}

// ContinueRequest network.continueRequest，仅 beforeRequestSent 阶段合法
func (m *NetworkModule) ContinueRequest(ctx context.Context, cmd *domain.Command) (any, error) {
	var p continueRequestParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	r, fetchID, derr := m.Network.Resolve(p.Request, store.PhaseBeforeRequestSent)
	if derr != nil {
		return nil, derr
	}
	t, derr := m.fetchTargetFor(r)
	if derr != nil {
		return nil, derr
	}

	args := &fetch.ContinueRequestArgs{RequestID: fetch.RequestID(fetchID)}
	args.URL = p.URL
	args.Method = p.Method
	if p.Headers != nil {
		hdrs, herr := protocol.ToFetchHeaders(p.Headers)
		if herr != nil {
			return nil, herr
		}
		args.Headers = hdrs
	}
	if p.Body != nil {
		body, berr := bytesValueRaw(*p.Body)
		if berr != nil {
			return nil, berr
		}
		args.PostData = body
	}
	if err := t.ContinueRequest(ctx, args); err != nil {
		return nil, domain.UnknownError(err)
	}
	m.Log.Debug("放行请求", "request", string(p.Request))
	return domain.EmptyResult{}, nil
}

type continueResponseParams struct {
	Request      domain.RequestID         `json:"request"`
	StatusCode   *int                     `json:"statusCode"`
	ReasonPhrase *string                  `json:"reasonPhrase"`
	Headers      []domain.Header          `json:"headers"`
	Cookies      []domain.SetCookieHeader `json:"cookies"`
}

// ContinueResponse network.continueResponse，responseStarted/authRequired 阶段合法
func (m *NetworkModule) ContinueResponse(ctx context.Context, cmd *domain.Command) (any, error) {
	var p continueResponseParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	r, fetchID, derr := m.Network.Resolve(p.Request, store.PhaseResponseStarted, store.PhaseAuthRequired)
	if derr != nil {
		return nil, derr
	}
	t, derr := m.fetchTargetFor(r)
	if derr != nil {
		return nil, derr
	}

	args := &fetch.ContinueResponseArgs{RequestID: fetch.RequestID(fetchID)}
	args.ResponseCode = p.StatusCode
	args.ResponsePhrase = p.ReasonPhrase
	hdrs, herr := headersWithSetCookies(p.Headers, p.Cookies)
	if herr != nil {
		return nil, herr
	}
	args.ResponseHeaders = hdrs
	if err := t.ContinueResponse(ctx, args); err != nil {
		return nil, domain.UnknownError(err)
	}
	return domain.EmptyResult{}, nil
}

type provideResponseParams struct {
	Request      domain.RequestID         `json:"request"`
	StatusCode   *int                     `json:"statusCode"`
	ReasonPhrase *string                  `json:"reasonPhrase"`
	Headers      []domain.Header          `json:"headers"`
	Cookies      []domain.SetCookieHeader `json:"cookies"`
	Body         *domain.BytesValue       `json:"body"`
}

// ProvideResponse network.provideResponse，任意阻塞阶段合法
func (m *NetworkModule) ProvideResponse(ctx context.Context, cmd *domain.Command) (any, error) {
	var p provideResponseParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	r, fetchID, derr := m.Network.Resolve(p.Request)
	if derr != nil {
		return nil, derr
	}
	t, derr := m.fetchTargetFor(r)
	if derr != nil {
		return nil, derr
	}

	status := 200
	if p.StatusCode != nil {
		status = *p.StatusCode
	}
	args := &fetch.FulfillRequestArgs{
		RequestID:    fetch.RequestID(fetchID),
		ResponseCode: status,
	}
	args.ResponsePhrase = p.ReasonPhrase
	hdrs, herr := headersWithSetCookies(p.Headers, p.Cookies)
	if herr != nil {
		return nil, herr
	}
	args.ResponseHeaders = hdrs
	if p.Body != nil {
		body, berr := bytesValueRaw(*p.Body)
		if berr != nil {
			return nil, berr
		}
		args.Body = body
	}
	if err := t.FulfillRequest(ctx, args); err != nil {
		return nil, domain.UnknownError(err)
	}
	m.Log.Debug("合成响应", "request", string(p.Request), "status", status)
	return domain.EmptyResult{}, nil
}

type continueWithAuthParams struct {
	Request     domain.RequestID `json:"request"`
	Action      string           `json:"action"`
	Credentials *struct {
		Type     string `json:"type"`
		Username string `json:"username"`
		Password string `json:"password"`
	} `json:"credentials"`
}

// ContinueWithAuth network.continueWithAuth，仅 authRequired 阶段合法
func (m *NetworkModule) ContinueWithAuth(ctx context.Context, cmd *domain.Command) (any, error) {
	var p continueWithAuthParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	r, fetchID, derr := m.Network.Resolve(p.Request, store.PhaseAuthRequired)
	if derr != nil {
		return nil, derr
	}
	t, derr := m.fetchTargetFor(r)
	if derr != nil {
		return nil, derr
	}

	resp := fetch.AuthChallengeResponse{}
	switch p.Action {
	case "provideCredentials":
		if p.Credentials == nil {
			return nil, domain.InvalidArgument("Missing credentials for action 'provideCredentials'")
		}
		resp.Response = "ProvideCredentials"
		resp.Username = &p.Credentials.Username
		resp.Password = &p.Credentials.Password
	case "cancel":
		resp.Response = "CancelAuth"
	case "default":
		resp.Response = "Default"
	default:
		return nil, domain.InvalidArgument("Unknown auth action '%s'", p.Action)
	}
	args := &fetch.ContinueWithAuthArgs{
		RequestID:             fetch.RequestID(fetchID),
		AuthChallengeResponse: resp,
	}
	if err := t.ContinueWithAuth(ctx, args); err != nil {
		return nil, domain.UnknownError(err)
	}
	return domain.EmptyResult{}, nil
}

type failRequestParams struct {
	Request domain.RequestID `json:"request"`
}

// FailRequest network.failRequest，任意阻塞阶段合法
func (m *NetworkModule) FailRequest(ctx context.Context, cmd *domain.Command) (any, error) {
	var p failRequestParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	r, fetchID, derr := m.Network.Resolve(p.Request)
	if derr != nil {
		return nil, derr
	}
	t, derr := m.fetchTargetFor(r)
	if derr != nil {
		return nil, derr
	}
	args := &fetch.FailRequestArgs{
		RequestID:   fetch.RequestID(fetchID),
		ErrorReason: network.ErrorReasonFailed,
	}
	if err := t.FailRequest(ctx, args); err != nil {
		return nil, domain.UnknownError(err)
	}
	return domain.EmptyResult{}, nil
}

type setCacheBehaviorParams struct {
	CacheBehavior string             `json:"cacheBehavior"`
	Contexts      []domain.ContextID `json:"contexts"`
}

// SetCacheBehavior network.setCacheBehavior
func (m *NetworkModule) SetCacheBehavior(ctx context.Context, cmd *domain.Command) (any, error) {
	var p setCacheBehaviorParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	disabled := p.CacheBehavior == "bypass"

	if len(p.Contexts) == 0 {
		var firstErr error
		m.Gateway.EachTarget(func(t TargetAPI) {
			if err := t.SetCacheDisabled(ctx, disabled); err != nil && firstErr == nil {
				firstErr = err
			}
		})
		if firstErr != nil {
			return nil, domain.UnknownError(firstErr)
		}
		return domain.EmptyResult{}, nil
	}
	for _, c := range p.Contexts {
		t, _, derr := m.targetFor(c)
		if derr != nil {
			return nil, derr
		}
		if err := t.SetCacheDisabled(ctx, disabled); err != nil {
			return nil, domain.UnknownError(err)
		}
	}
	return domain.EmptyResult{}, nil
}

// bytesValueRaw 把 BytesValue 还原为原始字节
func bytesValueRaw(v domain.BytesValue) ([]byte, *domain.Error) {
	b, err := protocol.RawBytes(v)
	if err != nil {
		return nil, domain.AsError(err)
	}
	return b, nil
}

// headersWithSetCookies 合并显式头部与 Set-Cookie 头
func headersWithSetCookies(headers []domain.Header, cookies []domain.SetCookieHeader) ([]fetch.HeaderEntry, *domain.Error) {
	out, err := protocol.ToFetchHeaders(headers)
	if err != nil {
		return nil, domain.AsError(err)
	}
	for _, c := range cookies {
		v, verr := protocol.RawBytes(c.Value)
		if verr != nil {
			return nil, domain.AsError(verr)
		}
		line := c.Name + "=" + string(v)
		if c.Path != nil {
			line += "; Path=" + *c.Path
		}
		if c.Domain != nil {
			line += "; Domain=" + *c.Domain
		}
		if c.Secure != nil && *c.Secure {
			line += "; Secure"
		}
		if c.HTTPOnly != nil && *c.HTTPOnly {
			line += "; HttpOnly"
		}
		if c.SameSite != nil {
			line += "; SameSite=" + *c.SameSite
		}
		out = append(out, fetch.HeaderEntry{Name: "Set-Cookie", Value: line})
	}
	return out, nil
}
