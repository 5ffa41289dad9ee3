package store

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"bidimapper/internal/logger"
	"bidimapper/internal/urlpattern"
	"bidimapper/pkg/domain"
)

// Phase 网络请求阶段，单调推进
type Phase string

const (
	PhaseBeforeRequestSent Phase = "beforeRequestSent"
	PhaseResponseStarted   Phase = "responseStarted"
	PhaseAuthRequired      Phase = "authRequired"
	PhaseResponseCompleted Phase = "responseCompleted"
	PhaseFetchError        Phase = "fetchError"
)

// Request 网络请求的权威模型
type Request struct {
	ID      domain.RequestID
	Context domain.ContextID
	URL     string
	Method  string
	Headers []domain.Header

	Phase         Phase
	RedirectCount int

	// 响应侧快照
	Status     int
	StatusText string
	Protocol   string
	MimeType   string
	RespHeaders []domain.Header
	FromCache  bool
	BodySize   int

	// 阻塞状态：BlockedPhase 非空时请求被某拦截器暂停
	BlockedPhase Phase
	FetchID      string // 暂停事件的 fetch.RequestID
	Intercepts   []domain.InterceptID

	// 时间轴（毫秒，Unix epoch）
	WallTime    float64
	RequestTime float64
	ResponseTime float64

	AuthAttempts int
}

// Intercept 拦截器注册
type Intercept struct {
	ID       domain.InterceptID
	Phases   []Phase
	Patterns []*urlpattern.Pattern
	Contexts []domain.ContextID
}

// NetworkStore 活动请求与拦截器登记表
type NetworkStore struct {
	mu         sync.RWMutex
	requests   map[domain.RequestID]*Request
	intercepts map[domain.InterceptID]*Intercept
	log        logger.Logger
}

// NewNetworkStore 创建登记表
func NewNetworkStore(l logger.Logger) *NetworkStore {
	if l == nil {
		l = logger.NewNop()
	}
	return &NetworkStore{
		requests:   make(map[domain.RequestID]*Request),
		intercepts: make(map[domain.InterceptID]*Intercept),
		log:        l,
	}
}

// AddRequest 登记请求（Network.requestWillBeSent）。
// 同 id 再次上报视为重定向，递增 RedirectCount 并重置阶段。
func (s *NetworkStore) AddRequest(id domain.RequestID, ctx domain.ContextID, url, method string, headers []domain.Header, wallTime float64) *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.requests[id]; ok {
		r.RedirectCount++
		r.URL = url
		r.Method = method
		r.Headers = headers
		r.Phase = PhaseBeforeRequestSent
		r.BlockedPhase = ""
		r.FetchID = ""
		return r
	}
	r := &Request{
		ID:       id,
		Context:  ctx,
		URL:      url,
		Method:   method,
		Headers:  headers,
		Phase:    PhaseBeforeRequestSent,
		WallTime: wallTime,
	}
	s.requests[id] = r
	return r
}

// Get 查找请求
func (s *NetworkStore) Get(id domain.RequestID) (*Request, *domain.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, domain.NoSuchRequest(id)
	}
	return r, nil
}

// SetResponse 记录响应元数据并推进到 responseStarted
func (s *NetworkStore) SetResponse(id domain.RequestID, status int, statusText, protocol, mimeType string, headers []domain.Header, fromCache bool) *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil
	}
	r.Status = status
	r.StatusText = statusText
	r.Protocol = protocol
	r.MimeType = mimeType
	r.RespHeaders = headers
	r.FromCache = fromCache
	if r.Phase == PhaseBeforeRequestSent || r.Phase == PhaseAuthRequired {
		r.Phase = PhaseResponseStarted
	}
	return r
}

// Complete 请求完成并摘除（loadingFinished）
func (s *NetworkStore) Complete(id domain.RequestID, bodySize int) *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil
	}
	r.BodySize = bodySize
	r.Phase = PhaseResponseCompleted
	delete(s.requests, id)
	return r
}

// Fail 请求失败并摘除（loadingFailed，含导航取消的垃圾回收）
func (s *NetworkStore) Fail(id domain.RequestID) *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil
	}
	r.Phase = PhaseFetchError
	delete(s.requests, id)
	return r
}

// MarkAuthRequired 进入认证挑战阶段
func (s *NetworkStore) MarkAuthRequired(id domain.RequestID, fetchID string) *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil
	}
	r.Phase = PhaseAuthRequired
	r.AuthAttempts++
	r.BlockedPhase = PhaseAuthRequired
	r.FetchID = fetchID
	return r
}

// MarkBlocked 请求在某阶段被拦截暂停
func (s *NetworkStore) MarkBlocked(id domain.RequestID, phase Phase, fetchID string, intercepts []domain.InterceptID) *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil
	}
	r.BlockedPhase = phase
	r.FetchID = fetchID
	r.Intercepts = intercepts
	return r
}

// Resolve 消费一次阻塞：校验当前被阻塞且阶段在 allowed 内，
// 返回暂停句柄并解除阻塞。二次消费失败（invalid argument）。
func (s *NetworkStore) Resolve(id domain.RequestID, allowed ...Phase) (*Request, string, *domain.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, "", domain.NoSuchRequest(id)
	}
	if r.BlockedPhase == "" {
		return nil, "", domain.InvalidArgument("Request '%s' is not blocked", id)
	}
	if len(allowed) > 0 {
		found := false
		for _, p := range allowed {
			if p == r.BlockedPhase {
				found = true
				break
			}
		}
		if !found {
			return nil, "", domain.InvalidArgument("Request '%s' is blocked in phase '%s'", id, r.BlockedPhase)
		}
	}
	fetchID := r.FetchID
	r.BlockedPhase = ""
	r.FetchID = ""
	return r, fetchID, nil
}

// ActiveCount 在途请求数
func (s *NetworkStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}

// AddIntercept 铸造 id 并登记拦截器
func (s *NetworkStore) AddIntercept(phases []Phase, patterns []*urlpattern.Pattern, contexts []domain.ContextID) *Intercept {
	it := &Intercept{
		ID:       domain.InterceptID(uuid.NewString()),
		Phases:   phases,
		Patterns: patterns,
		Contexts: contexts,
	}
	s.mu.Lock()
	s.intercepts[it.ID] = it
	s.mu.Unlock()
	s.log.Debug("登记拦截器", "intercept", string(it.ID), "phases", len(phases))
	return it
}

// RemoveIntercept 摘除拦截器
func (s *NetworkStore) RemoveIntercept(id domain.InterceptID) *domain.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.intercepts[id]; !ok {
		return domain.NoSuchIntercept(id)
	}
	delete(s.intercepts, id)
	return nil
}

// HasIntercepts 是否有任一拦截器（决定是否开启 Fetch 域）
func (s *NetworkStore) HasIntercepts() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.intercepts) > 0
}

// MatchIntercepts 对 (phase, url, context) 命中的拦截器 id，升序排序。
// 命中要求：阶段在 Phases 内、任一 URL 模式命中（无模式视为全命中）、
// 上下文在 Contexts 过滤内（无过滤视为全命中）。
func (s *NetworkStore) MatchIntercepts(phase Phase, url string, ctx domain.ContextID) []domain.InterceptID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.InterceptID
	for id, it := range s.intercepts {
		if !it.matches(phase, url, ctx) {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (it *Intercept) matches(phase Phase, url string, ctx domain.ContextID) bool {
	ok := false
	for _, p := range it.Phases {
		if p == phase {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	if len(it.Patterns) > 0 {
		ok = false
		for _, p := range it.Patterns {
			if p.Matches(url) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(it.Contexts) > 0 {
		ok = false
		for _, c := range it.Contexts {
			if c == ctx {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
