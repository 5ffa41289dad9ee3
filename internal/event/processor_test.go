package event

import (
	"testing"

	"github.com/mafredri/cdp/protocol/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"bidimapper/internal/store"
)

// 一次完整导航的事件序列与状态机前缀一致：
// navigationStarted → navigationCommitted → domContentLoaded → load
func TestNavigationEventSequence(t *testing.T) {
	r, subs, contexts, tr := newTestRouter(t)
	p := NewProcessor(Config{
		Contexts: contexts,
		Realms:   store.NewRealmStore(nil),
		Network:  store.NewNetworkStore(nil),
		Preload:  store.NewPreloadScriptStore(nil),
		Router:   r,
	})
	require.Nil(t, contexts.Add("top", "", "", "top", "about:blank"))
	require.Nil(t, subs.Subscribe([]string{"browsingContext"}, nil, "ch"))

	// 命令侧铸造导航（browsingContext.navigate 的职责），事件层推进
	nav, _, derr := contexts.StartNavigation("top", "https://example.test/")
	require.Nil(t, derr)
	r.Emit("browsingContext.navigationStarted", "top", map[string]any{
		"context": "top", "navigation": string(nav.ID), "url": nav.URL, "timestamp": nowMS(),
	})

	p.FrameNavigated(nil, &page.FrameNavigatedReply{
		Frame: page.Frame{ID: "top", URL: "https://example.test/"},
	})
	p.LifecycleEvent(nil, &page.LifecycleEventReply{FrameID: "top", Name: "DOMContentLoaded"})
	p.LifecycleEvent(nil, &page.LifecycleEventReply{FrameID: "top", Name: "load"})

	frames := tr.all()
	require.Len(t, frames, 4)
	want := []string{
		"browsingContext.navigationStarted",
		"browsingContext.navigationCommitted",
		"browsingContext.domContentLoaded",
		"browsingContext.load",
	}
	for i, f := range frames {
		assert.Equal(t, want[i], gjson.Get(f, "method").Str)
		assert.Equal(t, "top", gjson.Get(f, "params.context").Str)
		assert.Equal(t, string(nav.ID), gjson.Get(f, "params.navigation").Str)
	}
	assert.Equal(t, "https://example.test/", gjson.Get(frames[3], "params.url").Str)

	// 状态机落在 committed
	cur := contexts.CurrentNavigation("top")
	require.NotNil(t, cur)
	assert.Equal(t, store.NavCommitted, cur.State)
}

func TestFragmentNavigated(t *testing.T) {
	r, subs, contexts, tr := newTestRouter(t)
	p := NewProcessor(Config{
		Contexts: contexts,
		Realms:   store.NewRealmStore(nil),
		Network:  store.NewNetworkStore(nil),
		Preload:  store.NewPreloadScriptStore(nil),
		Router:   r,
	})
	require.Nil(t, contexts.Add("top", "", "", "top", "https://a.test/"))
	require.Nil(t, subs.Subscribe([]string{"browsingContext.fragmentNavigated"}, nil, "ch"))

	p.NavigatedWithinDocument(nil, &page.NavigatedWithinDocumentReply{
		FrameID: "top",
		URL:     "https://a.test/#frag",
	})

	frames := tr.all()
	require.Len(t, frames, 1)
	assert.Equal(t, "browsingContext.fragmentNavigated", gjson.Get(frames[0], "method").Str)
	assert.Equal(t, "https://a.test/#frag", gjson.Get(frames[0], "params.url").Str)

	c, err := contexts.Get("top")
	require.Nil(t, err)
	assert.Equal(t, "https://a.test/#frag", c.URL)
}
