package subscription

import (
	"sort"
	"sync"

	"bidimapper/pkg/domain"
)

// globalKey 表示会话级订阅（未绑定上下文）的内部键
const globalKey = domain.ContextID("")

// Manager 订阅管理器。按 (channel, context, event) 保存单调递增的优先级，
// 事件投递时按优先级从小到大枚举通道。
type Manager struct {
	mu      sync.RWMutex
	counter uint64
	// channel → context(顶层或 global) → event → priority
	subs map[domain.Channel]map[domain.ContextID]map[string]uint64
	// topLevel 把任意上下文归一到其顶层祖先
	topLevel func(domain.ContextID) domain.ContextID
}

// NewManager 创建订阅管理器。resolver 为顶层上下文归一函数。
func NewManager(resolver func(domain.ContextID) domain.ContextID) *Manager {
	if resolver == nil {
		resolver = func(id domain.ContextID) domain.ContextID { return id }
	}
	return &Manager{
		subs:     make(map[domain.Channel]map[domain.ContextID]map[string]uint64),
		topLevel: resolver,
	}
}

// Subscribe 订阅一组事件名（支持分组展开）到可选的一组上下文。
// 已存在的订阅保持原优先级不变。
func (m *Manager) Subscribe(events []string, contexts []domain.ContextID, ch domain.Channel) *domain.Error {
	expanded := make([]string, 0, len(events))
	for _, name := range events {
		evs := Expand(name)
		if evs == nil {
			return domain.InvalidArgument("Unknown event '%s'", name)
		}
		expanded = append(expanded, evs...)
	}

	keys := []domain.ContextID{globalKey}
	if len(contexts) > 0 {
		keys = keys[:0]
		for _, c := range contexts {
			keys = append(keys, m.topLevel(c))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		for _, ev := range expanded {
			m.addLocked(ch, key, ev)
		}
	}
	return nil
}

func (m *Manager) addLocked(ch domain.Channel, key domain.ContextID, ev string) {
	byCtx, ok := m.subs[ch]
	if !ok {
		byCtx = make(map[domain.ContextID]map[string]uint64)
		m.subs[ch] = byCtx
	}
	byEv, ok := byCtx[key]
	if !ok {
		byEv = make(map[string]uint64)
		byCtx[key] = byEv
	}
	if _, exists := byEv[ev]; exists {
		return // 重复订阅不改变优先级
	}
	m.counter++
	byEv[ev] = m.counter
}

// Unsubscribe 原子地取消一组 (event, context) 订阅。
// 任意一对不存在则整体失败，状态不变。
func (m *Manager) Unsubscribe(events []string, contexts []domain.ContextID, ch domain.Channel) *domain.Error {
	expanded := make([]string, 0, len(events))
	for _, name := range events {
		evs := Expand(name)
		if evs == nil {
			return domain.InvalidArgument("Unknown event '%s'", name)
		}
		expanded = append(expanded, evs...)
	}

	keys := []domain.ContextID{globalKey}
	if len(contexts) > 0 {
		keys = keys[:0]
		for _, c := range contexts {
			keys = append(keys, m.topLevel(c))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byCtx := m.subs[ch]
	for _, key := range keys {
		for _, ev := range expanded {
			if byCtx == nil {
				return domain.InvalidArgument("No subscription for event '%s'", ev)
			}
			if _, ok := byCtx[key][ev]; !ok {
				return domain.InvalidArgument("No subscription for event '%s'", ev)
			}
		}
	}
	for _, key := range keys {
		for _, ev := range expanded {
			delete(byCtx[key], ev)
			if len(byCtx[key]) == 0 {
				delete(byCtx, key)
			}
		}
	}
	if len(byCtx) == 0 {
		delete(m.subs, ch)
	}
	return nil
}

// RemoveChannel 删除一个通道的全部订阅
func (m *Manager) RemoveChannel(ch domain.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, ch)
}

// Clear 清空全部订阅
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = make(map[domain.Channel]map[domain.ContextID]map[string]uint64)
	m.counter = 0
}

// ChannelsFor 枚举对 (event, context) 生效的通道，按订阅优先级升序。
// context 为空串表示无上下文事件，只匹配会话级订阅。
func (m *Manager) ChannelsFor(event string, context domain.ContextID) []domain.Channel {
	var key domain.ContextID
	if context != "" {
		key = m.topLevel(context)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type entry struct {
		ch  domain.Channel
		pri uint64
	}
	var out []entry
	for ch, byCtx := range m.subs {
		best, ok := lookup(byCtx, globalKey, event)
		if key != globalKey {
			if p, ok2 := lookup(byCtx, key, event); ok2 && (!ok || p < best) {
				best, ok = p, true
			}
		}
		if ok {
			out = append(out, entry{ch: ch, pri: best})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pri < out[j].pri })
	chans := make([]domain.Channel, len(out))
	for i, e := range out {
		chans[i] = e.ch
	}
	return chans
}

// HasSubscribers 事件是否有任一订阅方
func (m *Manager) HasSubscribers(event string, context domain.ContextID) bool {
	return len(m.ChannelsFor(event, context)) > 0
}

func lookup(byCtx map[domain.ContextID]map[string]uint64, key domain.ContextID, ev string) (uint64, bool) {
	byEv, ok := byCtx[key]
	if !ok {
		return 0, false
	}
	p, ok := byEv[ev]
	return p, ok
}
