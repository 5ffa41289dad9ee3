package event

import (
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"

	cdpmgr "bidimapper/internal/cdp"
	"bidimapper/internal/protocol"
	"bidimapper/internal/store"
	"bidimapper/pkg/domain"
)

// RequestWillBeSent 请求发出：登记并发 beforeRequestSent
func (p *Processor) RequestWillBeSent(t *cdpmgr.Target, ev *network.RequestWillBeSentReply) {
	reqID := domain.RequestID(ev.RequestID)
	if prev, err := p.network.Get(reqID); err == nil && prev.BlockedPhase != "" {
		// 阻塞事件已在 requestPaused 时发出；保留暂停句柄
		return
	}
	var ctxID domain.ContextID
	if ev.FrameID != nil {
		ctxID = domain.ContextID(*ev.FrameID)
	} else {
		ctxID = domain.ContextID(t.ID())
	}
	headers := protocol.FromNetworkHeaders(ev.Request.Headers)
	r := p.network.AddRequest(
		reqID,
		ctxID,
		ev.Request.URL,
		ev.Request.Method,
		headers,
		float64(ev.WallTime)*1000,
	)
	if p.met != nil {
		p.met.ActiveRequests.Set(float64(p.network.ActiveCount()))
	}
	p.emitNetworkEvent("network.beforeRequestSent", r, nil)
}

// ResponseReceived 响应头到达：responseStarted
func (p *Processor) ResponseReceived(t *cdpmgr.Target, ev *network.ResponseReceivedReply) {
	proto := ""
	if ev.Response.Protocol != nil {
		proto = *ev.Response.Protocol
	}
	fromCache := ev.Response.FromDiskCache != nil && *ev.Response.FromDiskCache
	r := p.network.SetResponse(
		domain.RequestID(ev.RequestID),
		ev.Response.Status,
		ev.Response.StatusText,
		proto,
		ev.Response.MimeType,
		protocol.FromNetworkHeaders(ev.Response.Headers),
		fromCache,
	)
	if r == nil || r.BlockedPhase != "" {
		return
	}
	p.emitNetworkEvent("network.responseStarted", r, nil)
}

// LoadingFinished 请求完成：responseCompleted 并归档
func (p *Processor) LoadingFinished(t *cdpmgr.Target, ev *network.LoadingFinishedReply) {
	r := p.network.Complete(domain.RequestID(ev.RequestID), int(ev.EncodedDataLength))
	if r == nil {
		return
	}
	if p.met != nil {
		p.met.ActiveRequests.Set(float64(p.network.ActiveCount()))
	}
	p.emitNetworkEvent("network.responseCompleted", r, nil)
	if p.archive != nil {
		p.archive.Record(r)
	}
}

// LoadingFailed 请求失败（含导航取消的垃圾回收）：fetchError
func (p *Processor) LoadingFailed(t *cdpmgr.Target, ev *network.LoadingFailedReply) {
	r := p.network.Fail(domain.RequestID(ev.RequestID))
	if r == nil {
		return
	}
	if p.met != nil {
		p.met.ActiveRequests.Set(float64(p.network.ActiveCount()))
	}
	p.emitNetworkEvent("network.fetchError", r, map[string]any{"errorText": ev.ErrorText})
	if p.archive != nil {
		p.archive.Record(r)
	}
}

// RequestPaused Fetch 暂停：命中拦截器则挂起等客户端裁决，否则自动放行
func (p *Processor) RequestPaused(t *cdpmgr.Target, ev *fetch.RequestPausedReply) {
	phase := store.PhaseBeforeRequestSent
	if ev.ResponseStatusCode != nil || ev.ResponseErrorReason != nil {
		phase = store.PhaseResponseStarted
	}

	reqID := domain.RequestID(ev.RequestID)
	if ev.NetworkID != nil {
		reqID = domain.RequestID(*ev.NetworkID)
	}

	ctxID := domain.ContextID(ev.FrameID)
	r, err := p.network.Get(reqID)
	if err != nil {
		// 部分流程（重定向、缓存命中）里内核先发 requestPaused，缺席时补登记
		r = p.network.AddRequest(reqID, ctxID, ev.Request.URL, ev.Request.Method,
			protocol.FromNetworkHeaders(ev.Request.Headers), nowMS())
	}

	top := p.contexts.TopLevelOf(r.Context)
	matched := p.network.MatchIntercepts(phase, ev.Request.URL, top)
	if len(matched) == 0 {
		p.continuePaused(t, ev, phase)
		return
	}

	p.network.MarkBlocked(reqID, phase, string(ev.RequestID), matched)
	if phase == store.PhaseResponseStarted {
		status := 0
		if ev.ResponseStatusCode != nil {
			status = *ev.ResponseStatusCode
		}
		statusText := ""
		if ev.ResponseStatusText != nil {
			statusText = *ev.ResponseStatusText
		}
		p.network.SetResponse(reqID, status, statusText, "", "", protocol.FromFetchHeaders(ev.ResponseHeaders), false)
	}
	event := "network.beforeRequestSent"
	if phase == store.PhaseResponseStarted {
		event = "network.responseStarted"
	}
	p.emitNetworkEvent(event, r, map[string]any{"intercepts": interceptIDs(matched)})
	p.log.Debug("请求被拦截挂起", "request", string(reqID), "phase", string(phase), "intercepts", len(matched))
}

// AuthRequired 认证挑战：无人裁决时按默认行为应答
func (p *Processor) AuthRequired(t *cdpmgr.Target, ev *fetch.AuthRequiredReply) {
	reqID := domain.RequestID(ev.RequestID)
	r, err := p.network.Get(reqID)
	if err != nil {
		r = p.network.AddRequest(reqID, domain.ContextID(ev.FrameID), ev.Request.URL, ev.Request.Method,
			protocol.FromNetworkHeaders(ev.Request.Headers), nowMS())
	}
	p.network.MarkAuthRequired(reqID, string(ev.RequestID))

	top := p.contexts.TopLevelOf(r.Context)
	matched := p.network.MatchIntercepts(store.PhaseAuthRequired, ev.Request.URL, top)
	if len(matched) == 0 && !p.router.HasSubscribers("network.authRequired", r.Context) {
		args := &fetch.ContinueWithAuthArgs{
			RequestID:             ev.RequestID,
			AuthChallengeResponse: fetch.AuthChallengeResponse{Response: "Default"},
		}
		if err := t.ContinueWithAuth(t.Context(), args); err != nil {
			p.log.Warn("默认应答认证挑战失败", "request", string(reqID), "error", err)
		}
		p.network.Resolve(reqID)
		return
	}

	extra := map[string]any{
		"response": map[string]any{
			"url":    ev.Request.URL,
			"status": 401,
			"authChallenges": []domain.AuthChallenge{{
				Scheme: ev.AuthChallenge.Scheme,
				Realm:  ev.AuthChallenge.Realm,
			}},
		},
	}
	if len(matched) > 0 {
		p.network.MarkBlocked(reqID, store.PhaseAuthRequired, string(ev.RequestID), matched)
		extra["intercepts"] = interceptIDs(matched)
	}
	p.emitNetworkEvent("network.authRequired", r, extra)
}

// continuePaused 未命中拦截器的暂停直接放行
func (p *Processor) continuePaused(t *cdpmgr.Target, ev *fetch.RequestPausedReply, phase store.Phase) {
	var err error
	if phase == store.PhaseResponseStarted {
		err = t.ContinueResponse(t.Context(), &fetch.ContinueResponseArgs{RequestID: ev.RequestID})
	} else {
		err = t.ContinueRequest(t.Context(), &fetch.ContinueRequestArgs{RequestID: ev.RequestID})
	}
	if err != nil {
		p.log.Warn("自动放行失败", "request", string(ev.RequestID), "error", err)
	}
}

// emitNetworkEvent 组装网络事件公共载荷并发出
func (p *Processor) emitNetworkEvent(method string, r *store.Request, extra map[string]any) {
	if !p.router.HasSubscribers(method, r.Context) {
		return
	}
	params := map[string]any{
		"context":       string(r.Context),
		"isBlocked":     r.BlockedPhase != "",
		"navigation":    nil,
		"redirectCount": r.RedirectCount,
		"request":       p.requestData(r),
		"timestamp":     nowMS(),
	}
	if nav := p.contexts.CurrentNavigation(r.Context); nav != nil {
		params["navigation"] = string(nav.ID)
	}
	switch method {
	case "network.responseStarted", "network.responseCompleted":
		params["response"] = p.responseData(r)
	case "network.fetchError":
		// errorText 由 extra 提供
	}
	for k, v := range extra {
		params[k] = v
	}
	p.router.Emit(method, r.Context, params)
}

func (p *Processor) requestData(r *store.Request) domain.RequestData {
	return domain.RequestData{
		Request:     r.ID,
		URL:         r.URL,
		Method:      r.Method,
		Headers:     r.Headers,
		Cookies:     []domain.Cookie{},
		HeadersSize: protocol.ComputeHeadersSize(r.Headers),
		Timings: domain.FetchTimingInfo{
			TimeOrigin:  protocol.Timing(r.WallTime),
			RequestTime: protocol.Timing(r.RequestTime),
			FetchStart:  protocol.Timing(r.WallTime),
			ResponseEnd: protocol.Timing(r.ResponseTime),
		},
	}
}

func (p *Processor) responseData(r *store.Request) domain.ResponseData {
	d := domain.ResponseData{
		URL:           r.URL,
		Protocol:      r.Protocol,
		Status:        r.Status,
		StatusText:    r.StatusText,
		FromCache:     r.FromCache,
		Headers:       r.RespHeaders,
		MimeType:      r.MimeType,
		BytesReceived: r.BodySize,
		HeadersSize:   protocol.ComputeHeadersSize(r.RespHeaders),
	}
	d.Content.Size = r.BodySize
	return d
}

func interceptIDs(ids []domain.InterceptID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
