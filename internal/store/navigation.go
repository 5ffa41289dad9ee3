package store

import (
	"github.com/google/uuid"

	"bidimapper/pkg/domain"
)

// NavState 导航状态机状态
type NavState string

const (
	NavPending    NavState = "pending"
	NavCommitting NavState = "committing"
	NavCommitted  NavState = "committed"
	NavAborted    NavState = "aborted"
	NavFailed     NavState = "failed"
)

// Navigation 一次导航
type Navigation struct {
	ID    domain.NavigationID
	URL   string
	State NavState
	// interactive 是否已过 domContentLoaded
	interactive bool
}

// NavResult 导航等待的结果
type NavResult struct {
	Navigation domain.NavigationID
	URL        string
	Err        *domain.Error
}

// WaitStage 导航等待的终点
type WaitStage string

const (
	WaitInteractive WaitStage = "interactive"
	WaitComplete    WaitStage = "complete"
)

type waitKey struct {
	ctx   domain.ContextID
	stage WaitStage
}

// StartNavigation 为上下文铸造新的 pending 导航。
// 已有未完成导航时将其置为 aborted 并一并返回，供事件层先发 navigationAborted。
func (s *ContextStore) StartNavigation(id domain.ContextID, url string) (nav *Navigation, aborted *Navigation, err *domain.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[id]
	if !ok {
		return nil, nil, domain.NoSuchFrame(id)
	}
	if c.nav != nil && (c.nav.State == NavPending || c.nav.State == NavCommitting) {
		c.nav.State = NavAborted
		aborted = c.nav
	}
	nav = &Navigation{
		ID:    domain.NavigationID(uuid.NewString()),
		URL:   url,
		State: NavPending,
	}
	c.nav = nav
	s.log.Debug("导航开始", "context", string(id), "navigation", string(nav.ID), "url", url)
	return nav, aborted, nil
}

// CurrentNavigation 当前导航（可能为 nil）
func (s *ContextStore) CurrentNavigation(id domain.ContextID) *Navigation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.contexts[id]; ok {
		return c.nav
	}
	return nil
}

// NavigationCommitted 收到响应、文档开始替换：pending → committing
func (s *ContextStore) NavigationCommitted(id domain.ContextID, url string) *Navigation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[id]
	if !ok || c.nav == nil || c.nav.State != NavPending {
		return nil
	}
	c.nav.State = NavCommitting
	if url != "" {
		c.nav.URL = url
	}
	c.URL = c.nav.URL
	return c.nav
}

// NavigationInteractive domContentLoaded：唤醒 interactive 等待方
func (s *ContextStore) NavigationInteractive(id domain.ContextID) *Navigation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[id]
	if !ok || c.nav == nil {
		return nil
	}
	nav := c.nav
	nav.interactive = true
	s.resolveWaitersLocked(id, WaitInteractive, NavResult{Navigation: nav.ID, URL: nav.URL})
	return nav
}

// NavigationLoaded load 事件：committing → committed，唤醒 complete 等待方
func (s *ContextStore) NavigationLoaded(id domain.ContextID) *Navigation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[id]
	if !ok || c.nav == nil {
		return nil
	}
	nav := c.nav
	if nav.State == NavPending || nav.State == NavCommitting {
		nav.State = NavCommitted
		c.committed = nav
	}
	res := NavResult{Navigation: nav.ID, URL: nav.URL}
	s.resolveWaitersLocked(id, WaitInteractive, res)
	s.resolveWaitersLocked(id, WaitComplete, res)
	return nav
}

// NavigationFragment 同文档导航：直接记为 committed，不经过 pending
func (s *ContextStore) NavigationFragment(id domain.ContextID, url string) *Navigation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[id]
	if !ok {
		return nil
	}
	nav := &Navigation{
		ID:    domain.NavigationID(uuid.NewString()),
		URL:   url,
		State: NavCommitted,
	}
	c.URL = url
	return nav
}

// NavigationFailed 导航失败：唤醒所有等待方并返回失败的导航
func (s *ContextStore) NavigationFailed(id domain.ContextID, reason string) *Navigation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[id]
	if !ok || c.nav == nil {
		return nil
	}
	nav := c.nav
	if nav.State == NavCommitted || nav.State == NavAborted || nav.State == NavFailed {
		return nil
	}
	nav.State = NavFailed
	err := domain.NewError(domain.ErrUnknownError, "navigation failed: %s", reason)
	res := NavResult{Navigation: nav.ID, URL: nav.URL, Err: err}
	s.resolveWaitersLocked(id, WaitInteractive, res)
	s.resolveWaitersLocked(id, WaitComplete, res)
	return nav
}

// WaitForNavigation 返回在指定终点被唤醒的一次性通道。
// 调用时当前导航若已越过该终点则立即得到结果。
func (s *ContextStore) WaitForNavigation(id domain.ContextID, stage WaitStage) <-chan NavResult {
	ch := make(chan NavResult, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[id]
	if !ok {
		ch <- NavResult{Err: domain.NoSuchFrame(id)}
		return ch
	}
	if nav := c.nav; nav != nil {
		switch {
		case nav.State == NavCommitted:
			ch <- NavResult{Navigation: nav.ID, URL: nav.URL}
			return ch
		case stage == WaitInteractive && nav.interactive:
			ch <- NavResult{Navigation: nav.ID, URL: nav.URL}
			return ch
		case nav.State == NavFailed:
			ch <- NavResult{Navigation: nav.ID, URL: nav.URL, Err: domain.NewError(domain.ErrUnknownError, "navigation failed")}
			return ch
		}
	}
	key := waitKey{ctx: id, stage: stage}
	s.waiters[key] = append(s.waiters[key], ch)
	return ch
}

func (s *ContextStore) resolveWaitersLocked(id domain.ContextID, stage WaitStage, res NavResult) {
	key := waitKey{ctx: id, stage: stage}
	for _, ch := range s.waiters[key] {
		ch <- res
	}
	delete(s.waiters, key)
}

// abortWaitersLocked 上下文销毁时以错误唤醒全部等待方
func (s *ContextStore) abortWaitersLocked(id domain.ContextID) {
	err := domain.NoSuchFrame(id)
	for _, stage := range []WaitStage{WaitInteractive, WaitComplete} {
		key := waitKey{ctx: id, stage: stage}
		for _, ch := range s.waiters[key] {
			ch <- NavResult{Err: err}
		}
		delete(s.waiters, key)
	}
}

// AbortAllWaiters 会话结束时唤醒所有等待方
func (s *ContextStore) AbortAllWaiters(err *domain.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, chans := range s.waiters {
		for _, ch := range chans {
			ch <- NavResult{Err: err}
		}
		delete(s.waiters, key)
	}
}
