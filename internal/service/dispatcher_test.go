package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"bidimapper/internal/event"
	"bidimapper/internal/module"
	"bidimapper/internal/store"
	"bidimapper/internal/subscription"
)

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

func (c *captureTransport) waitFrames(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		if len(c.frames) >= n {
			out := make([]string, len(c.frames))
			copy(out, c.frames)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d frames", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *captureTransport, *module.Deps) {
	t.Helper()
	contexts := store.NewContextStore(nil)
	subs := subscription.NewManager(contexts.TopLevelOf)
	tr := &captureTransport{}
	router := event.NewRouter(subs, tr, nil, nil)
	deps := &module.Deps{
		Contexts:     contexts,
		Realms:       store.NewRealmStore(nil),
		Network:      store.NewNetworkStore(nil),
		Preload:      store.NewPreloadScriptStore(nil),
		UserContexts: store.NewUserContextStore(nil),
		Subs:         subs,
		Router:       router,
	}
	reg := module.NewRegistry(deps)
	d := NewDispatcher(context.Background(), reg, tr, nil, nil)
	return d, tr, deps
}

func TestUnknownCommand(t *testing.T) {
	d, tr, _ := newTestDispatcher(t)
	d.HandleFrame([]byte(`{"id":1,"method":"rocketScience.launch","params":{}}`))

	frames := tr.waitFrames(t, 1)
	assert.Equal(t, "error", gjson.Get(frames[0], "type").Str)
	assert.Equal(t, "unknown command", gjson.Get(frames[0], "error").Str)
	assert.Equal(t, int64(1), gjson.Get(frames[0], "id").Int())
}

func TestSchemaValidationBeforeRouting(t *testing.T) {
	d, tr, deps := newTestDispatcher(t)
	// 缺 url：schema 失败，无任何副作用
	d.HandleFrame([]byte(`{"id":2,"method":"browsingContext.navigate","params":{"context":"c"}}`))

	frames := tr.waitFrames(t, 1)
	assert.Equal(t, "invalid argument", gjson.Get(frames[0], "error").Str)
	assert.Contains(t, gjson.Get(frames[0], "message").Str, "url")
	assert.Nil(t, deps.Contexts.CurrentNavigation("c"))
}

func TestMalformedFrame(t *testing.T) {
	d, tr, _ := newTestDispatcher(t)
	d.HandleFrame([]byte(`{"id":`))

	frames := tr.waitFrames(t, 1)
	assert.Equal(t, "invalid argument", gjson.Get(frames[0], "error").Str)
	assert.True(t, gjson.Get(frames[0], "id").Type == gjson.Null)
}

func TestSubscribeRoundTrip(t *testing.T) {
	d, tr, deps := newTestDispatcher(t)
	d.HandleFrame([]byte(`{"id":1,"method":"session.subscribe","params":{"events":["browsingContext.load"]}}`))

	frames := tr.waitFrames(t, 1)
	assert.Equal(t, "success", gjson.Get(frames[0], "type").Str)
	assert.True(t, deps.Subs.HasSubscribers("browsingContext.load", "any"))
}

// unsubscribe 全有或全无：部分缺失不动任何订阅
func TestUnsubscribeAtomicViaDispatcher(t *testing.T) {
	d, tr, deps := newTestDispatcher(t)
	require.Nil(t, deps.Contexts.Add("ctx1", "", "", "t1", ""))

	d.HandleFrame([]byte(`{"id":1,"method":"session.subscribe","params":{"events":["browsingContext.load"],"contexts":["ctx1"]}}`))
	tr.waitFrames(t, 1)

	d.HandleFrame([]byte(`{"id":2,"method":"session.unsubscribe","params":{"events":["browsingContext.load","log.entryAdded"],"contexts":["ctx1"]}}`))
	frames := tr.waitFrames(t, 2)
	assert.Equal(t, "invalid argument", gjson.Get(frames[1], "error").Str)
	assert.True(t, deps.Subs.HasSubscribers("browsingContext.load", "ctx1"))
}

func TestChannelResponseOrder(t *testing.T) {
	d, tr, _ := newTestDispatcher(t)
	d.HandleFrame([]byte(`{"id":10,"method":"session.status","params":{},"channel":"ch"}`))
	d.HandleFrame([]byte(`{"id":11,"method":"browsingContext.getTree","params":{},"channel":"ch"}`))
	d.HandleFrame([]byte(`{"id":12,"method":"session.status","params":{},"channel":"ch"}`))

	frames := tr.waitFrames(t, 3)
	assert.Equal(t, int64(10), gjson.Get(frames[0], "id").Int())
	assert.Equal(t, int64(11), gjson.Get(frames[1], "id").Int())
	assert.Equal(t, int64(12), gjson.Get(frames[2], "id").Int())
	for _, f := range frames {
		assert.Equal(t, "ch", gjson.Get(f, "channel").Str)
	}
}

// Gateway 缺失导致的 panic 被捕获并渲染为 unknown error
func TestPanicRecovered(t *testing.T) {
	d, tr, _ := newTestDispatcher(t)
	d.HandleFrame([]byte(`{"id":5,"method":"network.addIntercept","params":{"phases":["beforeRequestSent"]}}`))

	frames := tr.waitFrames(t, 1)
	assert.Equal(t, "error", gjson.Get(frames[0], "type").Str)
	assert.Equal(t, "unknown error", gjson.Get(frames[0], "error").Str)

	// 会话没有被拆毁，后续命令照常处理
	d.HandleFrame([]byte(`{"id":6,"method":"session.status","params":{}}`))
	frames = tr.waitFrames(t, 2)
	assert.Equal(t, "success", gjson.Get(frames[1], "type").Str)
}

func TestCommandAfterShutdownEndsSession(t *testing.T) {
	d, tr, _ := newTestDispatcher(t)
	d.Shutdown()
	d.HandleFrame([]byte(`{"id":9,"method":"session.status","params":{}}`))

	frames := tr.waitFrames(t, 1)
	assert.Equal(t, "unknown error", gjson.Get(frames[0], "error").Str)
	assert.Contains(t, gjson.Get(frames[0], "message").Str, "session ended")
}
