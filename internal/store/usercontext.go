package store

import (
	"sort"
	"sync"

	"bidimapper/internal/logger"
	"bidimapper/pkg/domain"
)

// UserContext 用户上下文（cookie 隔离域）
type UserContext struct {
	ID domain.UserContextID
	// BrowserContextID 对应的 CDP browser context；默认用户上下文为空串
	BrowserContextID string
}

// UserContextStore 用户上下文登记表，"default" 始终存在且不可销毁
type UserContextStore struct {
	mu   sync.RWMutex
	ucs  map[domain.UserContextID]*UserContext
	log  logger.Logger
}

// NewUserContextStore 创建登记表
func NewUserContextStore(l logger.Logger) *UserContextStore {
	if l == nil {
		l = logger.NewNop()
	}
	s := &UserContextStore{ucs: make(map[domain.UserContextID]*UserContext), log: l}
	s.ucs[domain.DefaultUserContext] = &UserContext{ID: domain.DefaultUserContext}
	return s
}

// Add 登记新建的用户上下文（id 即 CDP browser context id）
func (s *UserContextStore) Add(browserContextID string) *UserContext {
	uc := &UserContext{ID: domain.UserContextID(browserContextID), BrowserContextID: browserContextID}
	s.mu.Lock()
	s.ucs[uc.ID] = uc
	s.mu.Unlock()
	s.log.Debug("登记用户上下文", "userContext", browserContextID)
	return uc
}

// Get 查找用户上下文
func (s *UserContextStore) Get(id domain.UserContextID) (*UserContext, *domain.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uc, ok := s.ucs[id]
	if !ok {
		return nil, domain.NoSuchUserContext(id)
	}
	return uc, nil
}

// Remove 摘除用户上下文。默认上下文不可销毁。
func (s *UserContextStore) Remove(id domain.UserContextID) (*UserContext, *domain.Error) {
	if id == domain.DefaultUserContext {
		return nil, domain.InvalidArgument("Cannot remove default user context")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	uc, ok := s.ucs[id]
	if !ok {
		return nil, domain.NoSuchUserContext(id)
	}
	delete(s.ucs, id)
	return uc, nil
}

// All 全部用户上下文，default 在前，其余按 id 排序
func (s *UserContextStore) All() []*UserContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rest []*UserContext
	for id, uc := range s.ucs {
		if id != domain.DefaultUserContext {
			rest = append(rest, uc)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].ID < rest[j].ID })
	out := make([]*UserContext, 0, len(s.ucs))
	out = append(out, s.ucs[domain.DefaultUserContext])
	out = append(out, rest...)
	return out
}
