package store

import (
	"sync"

	"bidimapper/internal/logger"
	"bidimapper/pkg/domain"
)

// BrowsingContext 浏览上下文节点
type BrowsingContext struct {
	ID          domain.ContextID
	Parent      domain.ContextID // 顶层为空串
	UserContext domain.UserContextID
	URL         string
	// TargetID 所属 CDP target
	TargetID string

	children []domain.ContextID

	// 当前导航；nil 表示 idle
	nav *Navigation
	// 最近一次提交的导航
	committed *Navigation

	// 未处理的用户对话框类型，空串表示没有
	promptType string
}

// Children 子上下文 id 的快照
func (c *BrowsingContext) Children() []domain.ContextID {
	out := make([]domain.ContextID, len(c.children))
	copy(out, c.children)
	return out
}

// ContextStore 浏览上下文树。所有变更都在单个临界区内完成，
// 调用方不得跨 await 持有返回的指针做写操作。
type ContextStore struct {
	mu       sync.RWMutex
	contexts map[domain.ContextID]*BrowsingContext
	// topLevels 顶层上下文按创建顺序
	topLevels []domain.ContextID

	waiters map[waitKey][]chan NavResult

	log logger.Logger
}

// NewContextStore 创建上下文树
func NewContextStore(l logger.Logger) *ContextStore {
	if l == nil {
		l = logger.NewNop()
	}
	return &ContextStore{
		contexts: make(map[domain.ContextID]*BrowsingContext),
		waiters:  make(map[waitKey][]chan NavResult),
		log:      l,
	}
}

// Add 登记上下文。parent 非空时必须已存在。
func (s *ContextStore) Add(id, parent domain.ContextID, userContext domain.UserContextID, targetID, url string) *domain.Error {
	if userContext == "" {
		userContext = domain.DefaultUserContext
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contexts[id]; ok {
		return nil // target attach 与 frame attach 可能重复上报
	}
	if parent != "" {
		p, ok := s.contexts[parent]
		if !ok {
			return domain.NoSuchFrame(parent)
		}
		p.children = append(p.children, id)
		userContext = p.UserContext
	} else {
		s.topLevels = append(s.topLevels, id)
	}
	s.contexts[id] = &BrowsingContext{
		ID:          id,
		Parent:      parent,
		UserContext: userContext,
		URL:         url,
		TargetID:    targetID,
	}
	s.log.Debug("登记浏览上下文", "context", string(id), "parent", string(parent))
	return nil
}

// Get 查找上下文
func (s *ContextStore) Get(id domain.ContextID) (*BrowsingContext, *domain.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[id]
	if !ok {
		return nil, domain.NoSuchFrame(id)
	}
	return c, nil
}

// Has 上下文是否存在
func (s *ContextStore) Has(id domain.ContextID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.contexts[id]
	return ok
}

// TopLevelOf 归一到顶层祖先；未知 id 原样返回
func (s *ContextStore) TopLevelOf(id domain.ContextID) domain.ContextID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topLevelLocked(id)
}

func (s *ContextStore) topLevelLocked(id domain.ContextID) domain.ContextID {
	cur := id
	for {
		c, ok := s.contexts[cur]
		if !ok || c.Parent == "" {
			return cur
		}
		cur = c.Parent
	}
}

// TopLevels 顶层上下文按创建顺序
func (s *ContextStore) TopLevels() []domain.ContextID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ContextID, len(s.topLevels))
	copy(out, s.topLevels)
	return out
}

// ByUserContext 归属某用户上下文的顶层上下文
func (s *ContextStore) ByUserContext(uc domain.UserContextID) []domain.ContextID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ContextID
	for _, id := range s.topLevels {
		if c, ok := s.contexts[id]; ok && c.UserContext == uc {
			out = append(out, id)
		}
	}
	return out
}

// Remove 摘除上下文及其子树，返回后序（子先父后）的被删节点。
// 未知 id 返回空列表。
func (s *ContextStore) Remove(id domain.ContextID) []*BrowsingContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[id]
	if !ok {
		return nil
	}
	var order []domain.ContextID
	s.collectPostOrder(id, &order)
	removed := make([]*BrowsingContext, 0, len(order))
	for _, rid := range order {
		s.abortWaitersLocked(rid)
		removed = append(removed, s.contexts[rid])
		delete(s.contexts, rid)
	}
	if c.Parent == "" {
		s.topLevels = removeID(s.topLevels, id)
	} else if p, ok := s.contexts[c.Parent]; ok {
		p.children = removeID(p.children, id)
	}
	s.log.Debug("移除浏览上下文子树", "context", string(id), "removed", len(order))
	return removed
}

func (s *ContextStore) collectPostOrder(id domain.ContextID, out *[]domain.ContextID) {
	c, ok := s.contexts[id]
	if !ok {
		return
	}
	for _, child := range c.children {
		s.collectPostOrder(child, out)
	}
	*out = append(*out, id)
}

// SetURL 更新上下文当前 URL
func (s *ContextStore) SetURL(id domain.ContextID, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[id]; ok {
		c.URL = url
	}
}

// SetPrompt 记录/清除未处理对话框
func (s *ContextStore) SetPrompt(id domain.ContextID, promptType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[id]; ok {
		c.promptType = promptType
	}
}

// Prompt 查询未处理对话框类型
func (s *ContextStore) Prompt(id domain.ContextID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.contexts[id]; ok {
		return c.promptType
	}
	return ""
}

// Info getTree 用的序列化视图
type Info struct {
	Context       domain.ContextID     `json:"context"`
	URL           string               `json:"url"`
	UserContext   domain.UserContextID `json:"userContext"`
	Children      []Info               `json:"children"`
	Parent        *domain.ContextID    `json:"parent,omitempty"`
	OriginalOpener *string             `json:"originalOpener"`
}

// Tree 以 root 为根（空串为全部顶层）导出树，maxDepth<0 表示不限深
func (s *ContextStore) Tree(root domain.ContextID, maxDepth int) ([]Info, *domain.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var roots []domain.ContextID
	if root != "" {
		if _, ok := s.contexts[root]; !ok {
			return nil, domain.NoSuchFrame(root)
		}
		roots = []domain.ContextID{root}
	} else {
		roots = s.topLevels
	}
	out := make([]Info, 0, len(roots))
	for _, id := range roots {
		out = append(out, s.infoLocked(id, maxDepth))
	}
	return out, nil
}

func (s *ContextStore) infoLocked(id domain.ContextID, depth int) Info {
	c := s.contexts[id]
	info := Info{
		Context:     id,
		URL:         c.URL,
		UserContext: c.UserContext,
		Children:    []Info{},
	}
	if c.Parent != "" {
		p := c.Parent
		info.Parent = &p
	}
	if depth != 0 {
		for _, child := range c.children {
			info.Children = append(info.Children, s.infoLocked(child, depth-1))
		}
	}
	return info
}

func removeID(xs []domain.ContextID, id domain.ContextID) []domain.ContextID {
	for i, x := range xs {
		if x == id {
			return append(xs[:i], xs[i+1:]...)
		}
	}
	return xs
}
