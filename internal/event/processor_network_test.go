package event

import (
	"testing"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"bidimapper/internal/store"
	"bidimapper/internal/urlpattern"
)

func newNetworkFixture(t *testing.T) (*Processor, *store.NetworkStore, *store.ContextStore, *captureTransport, *Router) {
	t.Helper()
	r, subs, contexts, tr := newTestRouter(t)
	netStore := store.NewNetworkStore(nil)
	p := NewProcessor(Config{
		Contexts: contexts,
		Realms:   store.NewRealmStore(nil),
		Network:  netStore,
		Preload:  store.NewPreloadScriptStore(nil),
		Router:   r,
	})
	require.Nil(t, contexts.Add("top", "", "", "top", ""))
	require.Nil(t, subs.Subscribe([]string{"network"}, nil, "ch"))
	return p, netStore, contexts, tr, r
}

func requestWillBeSent(id, url string) *network.RequestWillBeSentReply {
	frameID := page.FrameID("top")
	return &network.RequestWillBeSentReply{
		RequestID: network.RequestID(id),
		Request:   network.Request{URL: url, Method: "GET"},
		FrameID:   &frameID,
		WallTime:  network.TimeSinceEpoch(1700000000),
	}
}

func TestBeforeRequestSentEmitted(t *testing.T) {
	p, _, _, tr, _ := newNetworkFixture(t)

	p.RequestWillBeSent(nil, requestWillBeSent("r1", "https://a.test/"))

	frames := tr.all()
	require.Len(t, frames, 1)
	f := frames[0]
	assert.Equal(t, "network.beforeRequestSent", gjson.Get(f, "method").Str)
	assert.Equal(t, "r1", gjson.Get(f, "params.request.request").Str)
	assert.Equal(t, "https://a.test/", gjson.Get(f, "params.request.url").Str)
	assert.False(t, gjson.Get(f, "params.isBlocked").Bool())
	assert.Equal(t, "top", gjson.Get(f, "params.context").Str)
}

// 命中拦截器的暂停：阻塞事件携带 intercepts 且 isBlocked=true
func TestPausedRequestBlocks(t *testing.T) {
	p, netStore, _, tr, _ := newNetworkFixture(t)

	pat, err := urlpattern.ParseString("https://a.test/")
	require.NoError(t, err)
	it := netStore.AddIntercept([]store.Phase{store.PhaseBeforeRequestSent}, []*urlpattern.Pattern{pat}, nil)

	netID := network.RequestID("r1")
	p.RequestPaused(nil, &fetch.RequestPausedReply{
		RequestID: fetch.RequestID("f1"),
		NetworkID: &netID,
		Request:   network.Request{URL: "https://a.test/", Method: "GET"},
		FrameID:   page.FrameID("top"),
	})

	frames := tr.all()
	require.Len(t, frames, 1)
	f := frames[0]
	assert.Equal(t, "network.beforeRequestSent", gjson.Get(f, "method").Str)
	assert.True(t, gjson.Get(f, "params.isBlocked").Bool())
	require.Len(t, gjson.Get(f, "params.intercepts").Array(), 1)
	assert.Equal(t, string(it.ID), gjson.Get(f, "params.intercepts.0").Str)

	// store 侧确认挂起状态与暂停句柄
	r, _, derr := netStore.Resolve("r1", store.PhaseBeforeRequestSent)
	require.Nil(t, derr)
	assert.Equal(t, "https://a.test/", r.URL)
}

// willBeSent 在暂停之后到达时不再补发事件
func TestWillBeSentAfterPauseSuppressed(t *testing.T) {
	p, netStore, _, tr, _ := newNetworkFixture(t)
	netStore.AddIntercept([]store.Phase{store.PhaseBeforeRequestSent}, nil, nil)

	netID := network.RequestID("r1")
	p.RequestPaused(nil, &fetch.RequestPausedReply{
		RequestID: fetch.RequestID("f1"),
		NetworkID: &netID,
		Request:   network.Request{URL: "https://a.test/", Method: "GET"},
		FrameID:   page.FrameID("top"),
	})
	require.Len(t, tr.all(), 1)

	p.RequestWillBeSent(nil, requestWillBeSent("r1", "https://a.test/"))
	assert.Len(t, tr.all(), 1)
}

func TestResponseLifecycleEvents(t *testing.T) {
	p, _, _, tr, _ := newNetworkFixture(t)

	p.RequestWillBeSent(nil, requestWillBeSent("r1", "https://a.test/"))
	proto := "http/1.1"
	fromCache := false
	p.ResponseReceived(nil, &network.ResponseReceivedReply{
		RequestID: "r1",
		Response: network.Response{
			URL:           "https://a.test/",
			Status:        200,
			StatusText:    "OK",
			Protocol:      &proto,
			MimeType:      "text/html",
			FromDiskCache: &fromCache,
		},
	})
	p.LoadingFinished(nil, &network.LoadingFinishedReply{RequestID: "r1", EncodedDataLength: 512})

	frames := tr.all()
	require.Len(t, frames, 3)
	assert.Equal(t, "network.beforeRequestSent", gjson.Get(frames[0], "method").Str)
	assert.Equal(t, "network.responseStarted", gjson.Get(frames[1], "method").Str)
	assert.Equal(t, "network.responseCompleted", gjson.Get(frames[2], "method").Str)
	assert.Equal(t, int64(200), gjson.Get(frames[2], "params.response.status").Int())
}

func TestLoadingFailedEmitsFetchError(t *testing.T) {
	p, _, _, tr, _ := newNetworkFixture(t)

	p.RequestWillBeSent(nil, requestWillBeSent("r1", "https://a.test/"))
	p.LoadingFailed(nil, &network.LoadingFailedReply{RequestID: "r1", ErrorText: "net::ERR_ABORTED"})

	frames := tr.all()
	require.Len(t, frames, 2)
	assert.Equal(t, "network.fetchError", gjson.Get(frames[1], "method").Str)
	assert.Equal(t, "net::ERR_ABORTED", gjson.Get(frames[1], "params.errorText").Str)
}
