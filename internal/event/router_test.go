package event

import (
	"sync"
	"testing"

	"github.com/mafredri/cdp/protocol/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"bidimapper/internal/store"
	"bidimapper/internal/subscription"
	"bidimapper/pkg/domain"
)

// captureTransport 捕获投递帧的测试传输
type captureTransport struct {
	mu     sync.Mutex
	frames []string
}

func (c *captureTransport) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, string(frame))
	return nil
}

func (c *captureTransport) Close() error { return nil }

func (c *captureTransport) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	copy(out, c.frames)
	return out
}

func newTestRouter(t *testing.T) (*Router, *subscription.Manager, *store.ContextStore, *captureTransport) {
	t.Helper()
	contexts := store.NewContextStore(nil)
	subs := subscription.NewManager(contexts.TopLevelOf)
	tr := &captureTransport{}
	return NewRouter(subs, tr, nil, nil), subs, contexts, tr
}

func TestEmitNoSubscribers(t *testing.T) {
	r, _, _, tr := newTestRouter(t)
	r.Emit("browsingContext.load", "ctx", map[string]any{})
	assert.Empty(t, tr.all())
}

func TestEmitChannelOrderAndStamping(t *testing.T) {
	r, subs, contexts, tr := newTestRouter(t)
	require.Nil(t, contexts.Add("top", "", "", "t1", ""))

	require.Nil(t, subs.Subscribe([]string{"browsingContext.load"}, nil, "first"))
	require.Nil(t, subs.Subscribe([]string{"browsingContext.load"}, nil, "second"))

	r.Emit("browsingContext.load", "top", map[string]any{"context": "top"})

	frames := tr.all()
	require.Len(t, frames, 2)
	// 订阅早者先收
	assert.Equal(t, "first", gjson.Get(frames[0], "channel").Str)
	assert.Equal(t, "second", gjson.Get(frames[1], "channel").Str)
	assert.Equal(t, "event", gjson.Get(frames[0], "type").Str)
	assert.Equal(t, "browsingContext.load", gjson.Get(frames[0], "method").Str)
	assert.Equal(t, "top", gjson.Get(frames[0], "params.context").Str)
}

func TestEmitDefaultChannelOmitsField(t *testing.T) {
	r, subs, _, tr := newTestRouter(t)
	require.Nil(t, subs.Subscribe([]string{"browsingContext.load"}, nil, ""))

	r.Emit("browsingContext.load", "top", map[string]any{"context": "top"})
	frames := tr.all()
	require.Len(t, frames, 1)
	assert.False(t, gjson.Get(frames[0], "channel").Exists())
}

func TestCascadingDestroyPostOrder(t *testing.T) {
	r, subs, contexts, tr := newTestRouter(t)
	p := NewProcessor(Config{
		Contexts: contexts,
		Realms:   store.NewRealmStore(nil),
		Network:  store.NewNetworkStore(nil),
		Preload:  store.NewPreloadScriptStore(nil),
		Router:   r,
	})

	require.Nil(t, contexts.Add("top", "", "", "top", ""))
	require.Nil(t, contexts.Add("f1", "top", "", "top", ""))
	require.Nil(t, contexts.Add("f2", "top", "", "top", ""))
	require.Nil(t, contexts.Add("f1a", "f1", "", "top", ""))

	// 订阅绑定在顶层，后代销毁事件同样派发
	require.Nil(t, subs.Subscribe([]string{"browsingContext.contextDestroyed"}, []domain.ContextID{"top"}, "ch"))

	p.TargetDetached("top")

	frames := tr.all()
	require.Len(t, frames, 4)
	var order []string
	for _, f := range frames {
		assert.Equal(t, "browsingContext.contextDestroyed", gjson.Get(f, "method").Str)
		order = append(order, gjson.Get(f, "params.context").Str)
	}
	assert.Equal(t, []string{"f1a", "f1", "f2", "top"}, order)
}

func TestDestroySubtreeOnlyEmitsSubtree(t *testing.T) {
	r, subs, contexts, tr := newTestRouter(t)
	p := NewProcessor(Config{
		Contexts: contexts,
		Realms:   store.NewRealmStore(nil),
		Network:  store.NewNetworkStore(nil),
		Preload:  store.NewPreloadScriptStore(nil),
		Router:   r,
	})

	require.Nil(t, contexts.Add("top", "", "", "top", ""))
	require.Nil(t, contexts.Add("f1", "top", "", "top", ""))
	require.Nil(t, contexts.Add("f2", "top", "", "top", ""))
	require.Nil(t, subs.Subscribe([]string{"browsingContext.contextDestroyed"}, nil, "ch"))

	p.FrameDetached(nil, &page.FrameDetachedReply{FrameID: "f1"})

	frames := tr.all()
	require.Len(t, frames, 1)
	assert.Equal(t, "f1", gjson.Get(frames[0], "params.context").Str)
	assert.True(t, contexts.Has("top"))
	assert.True(t, contexts.Has("f2"))
}
