package store

import (
	"sync"

	"github.com/google/uuid"

	"bidimapper/internal/logger"
	"bidimapper/pkg/domain"
)

// PreloadScript 预加载脚本：在每个命中过滤器的新 realm 里先于页面脚本执行
type PreloadScript struct {
	ID           domain.PreloadScriptID
	Source       string // functionDeclaration
	Sandbox      string
	Contexts     []domain.ContextID     // 空为全部
	UserContexts []domain.UserContextID // 空为全部
	// cdpIdents 已下发到各 target 的 Page.addScriptToEvaluateOnNewDocument 标识
	cdpIdents map[string]string // targetID → identifier
}

// AppliesTo 过滤器是否命中指定顶层上下文
func (p *PreloadScript) AppliesTo(ctx domain.ContextID, uc domain.UserContextID) bool {
	if len(p.Contexts) > 0 {
		found := false
		for _, c := range p.Contexts {
			if c == ctx {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(p.UserContexts) > 0 {
		found := false
		for _, u := range p.UserContexts {
			if u == uc {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// PreloadScriptStore 预加载脚本登记表
type PreloadScriptStore struct {
	mu      sync.RWMutex
	scripts map[domain.PreloadScriptID]*PreloadScript
	log     logger.Logger
}

// NewPreloadScriptStore 创建登记表
func NewPreloadScriptStore(l logger.Logger) *PreloadScriptStore {
	if l == nil {
		l = logger.NewNop()
	}
	return &PreloadScriptStore{scripts: make(map[domain.PreloadScriptID]*PreloadScript), log: l}
}

// Add 铸造 id 并登记脚本
func (s *PreloadScriptStore) Add(source, sandbox string, contexts []domain.ContextID, userContexts []domain.UserContextID) *PreloadScript {
	p := &PreloadScript{
		ID:           domain.PreloadScriptID(uuid.NewString()),
		Source:       source,
		Sandbox:      sandbox,
		Contexts:     contexts,
		UserContexts: userContexts,
		cdpIdents:    make(map[string]string),
	}
	s.mu.Lock()
	s.scripts[p.ID] = p
	s.mu.Unlock()
	s.log.Debug("登记预加载脚本", "script", string(p.ID))
	return p
}

// Remove 摘除脚本
func (s *PreloadScriptStore) Remove(id domain.PreloadScriptID) (*PreloadScript, *domain.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.scripts[id]
	if !ok {
		return nil, domain.NoSuchScript(id)
	}
	delete(s.scripts, id)
	return p, nil
}

// All 全部脚本快照
func (s *PreloadScriptStore) All() []*PreloadScript {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*PreloadScript, 0, len(s.scripts))
	for _, p := range s.scripts {
		out = append(out, p)
	}
	return out
}

// SetCDPIdent 记录脚本在某 target 上的 CDP 标识
func (s *PreloadScriptStore) SetCDPIdent(id domain.PreloadScriptID, targetID, ident string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.scripts[id]; ok {
		p.cdpIdents[targetID] = ident
	}
}

// CDPIdents 脚本已下发的 (targetID, identifier) 对
func (s *PreloadScriptStore) CDPIdents(p *PreloadScript) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(p.cdpIdents))
	for k, v := range p.cdpIdents {
		out[k] = v
	}
	return out
}
