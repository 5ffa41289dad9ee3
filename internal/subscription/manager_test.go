package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidimapper/pkg/domain"
)

// 测试用顶层归一：frame id 带 "child-" 前缀时归到去前缀后的顶层
func testResolver(id domain.ContextID) domain.ContextID {
	if len(id) > 6 && id[:6] == "child-" {
		return id[6:]
	}
	return id
}

func TestSubscribeIdempotent(t *testing.T) {
	m := NewManager(testResolver)

	require.Nil(t, m.Subscribe([]string{"browsingContext.load"}, nil, "ch1"))
	require.Nil(t, m.Subscribe([]string{"browsingContext.load"}, nil, "ch2"))
	// 重复订阅不提升优先级：ch1 依旧先于 ch2
	require.Nil(t, m.Subscribe([]string{"browsingContext.load"}, nil, "ch1"))

	chans := m.ChannelsFor("browsingContext.load", "top")
	assert.Equal(t, []domain.Channel{"ch1", "ch2"}, chans)
}

func TestPriorityOrdering(t *testing.T) {
	m := NewManager(testResolver)

	require.Nil(t, m.Subscribe([]string{"network.beforeRequestSent"}, nil, "late"))
	require.Nil(t, m.Subscribe([]string{"network"}, nil, "later"))
	m2 := NewManager(testResolver)
	require.Nil(t, m2.Subscribe([]string{"network"}, nil, "a"))
	require.Nil(t, m2.Subscribe([]string{"network.beforeRequestSent"}, nil, "b"))

	assert.Equal(t, []domain.Channel{"late", "later"}, m.ChannelsFor("network.beforeRequestSent", "top"))
	assert.Equal(t, []domain.Channel{"a", "b"}, m2.ChannelsFor("network.beforeRequestSent", "top"))
}

func TestGroupExpansion(t *testing.T) {
	m := NewManager(testResolver)
	require.Nil(t, m.Subscribe([]string{"browsingContext"}, nil, "ch"))

	for _, ev := range groups["browsingContext"] {
		assert.True(t, m.HasSubscribers(ev, "top"), ev)
	}
	assert.False(t, m.HasSubscribers("network.beforeRequestSent", "top"))
}

func TestUnknownEventRejected(t *testing.T) {
	m := NewManager(testResolver)
	err := m.Subscribe([]string{"nosuch.event"}, nil, "ch")
	require.NotNil(t, err)
	assert.Equal(t, domain.ErrInvalidArgument, err.Code)
}

func TestTopLevelRollup(t *testing.T) {
	m := NewManager(testResolver)
	require.Nil(t, m.Subscribe([]string{"browsingContext.load"}, []domain.ContextID{"child-top"}, "ch"))

	// 订阅归一到顶层，后代上下文的事件同样命中
	assert.Equal(t, []domain.Channel{"ch"}, m.ChannelsFor("browsingContext.load", "top"))
	assert.Equal(t, []domain.Channel{"ch"}, m.ChannelsFor("browsingContext.load", "child-top"))
	assert.Empty(t, m.ChannelsFor("browsingContext.load", "other"))
}

func TestGlobalAndContextSubscription(t *testing.T) {
	m := NewManager(testResolver)
	require.Nil(t, m.Subscribe([]string{"browsingContext.load"}, []domain.ContextID{"top"}, "ctxonly"))
	require.Nil(t, m.Subscribe([]string{"browsingContext.load"}, nil, "global"))

	assert.Equal(t, []domain.Channel{"ctxonly", "global"}, m.ChannelsFor("browsingContext.load", "top"))
	assert.Equal(t, []domain.Channel{"global"}, m.ChannelsFor("browsingContext.load", "other"))
}

func TestUnsubscribeAtomic(t *testing.T) {
	m := NewManager(testResolver)
	require.Nil(t, m.Subscribe([]string{"browsingContext.load"}, []domain.ContextID{"ctx1"}, "ch"))

	// 混入未订阅的事件：整体失败，原订阅保持
	err := m.Unsubscribe([]string{"browsingContext.load", "log.entryAdded"}, []domain.ContextID{"ctx1"}, "ch")
	require.NotNil(t, err)
	assert.Equal(t, domain.ErrInvalidArgument, err.Code)
	assert.Equal(t, []domain.Channel{"ch"}, m.ChannelsFor("browsingContext.load", "ctx1"))

	require.Nil(t, m.Unsubscribe([]string{"browsingContext.load"}, []domain.ContextID{"ctx1"}, "ch"))
	assert.Empty(t, m.ChannelsFor("browsingContext.load", "ctx1"))
}

func TestUnsubscribeWrongChannel(t *testing.T) {
	m := NewManager(testResolver)
	require.Nil(t, m.Subscribe([]string{"browsingContext.load"}, nil, "ch"))

	err := m.Unsubscribe([]string{"browsingContext.load"}, nil, "other")
	require.NotNil(t, err)
	assert.Equal(t, []domain.Channel{"ch"}, m.ChannelsFor("browsingContext.load", "top"))
}

func TestRemoveChannel(t *testing.T) {
	m := NewManager(testResolver)
	require.Nil(t, m.Subscribe([]string{"network"}, nil, "ch"))
	m.RemoveChannel("ch")
	assert.Empty(t, m.ChannelsFor("network.beforeRequestSent", "top"))
}
