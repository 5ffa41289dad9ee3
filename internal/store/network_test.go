package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidimapper/internal/urlpattern"
	"bidimapper/pkg/domain"
)

func TestRequestPhaseProgression(t *testing.T) {
	s := NewNetworkStore(nil)
	r := s.AddRequest("r1", "ctx", "https://a.test/", "GET", nil, 1000)
	assert.Equal(t, PhaseBeforeRequestSent, r.Phase)

	r = s.SetResponse("r1", 200, "OK", "http/1.1", "text/html", nil, false)
	require.NotNil(t, r)
	assert.Equal(t, PhaseResponseStarted, r.Phase)

	r = s.Complete("r1", 1234)
	require.NotNil(t, r)
	assert.Equal(t, PhaseResponseCompleted, r.Phase)
	assert.Equal(t, 1234, r.BodySize)

	// 完成后摘除
	_, err := s.Get("r1")
	require.NotNil(t, err)
	assert.Equal(t, domain.ErrNoSuchRequest, err.Code)
}

func TestRedirectResetsPhase(t *testing.T) {
	s := NewNetworkStore(nil)
	s.AddRequest("r1", "ctx", "https://a.test/", "GET", nil, 1000)
	s.SetResponse("r1", 301, "Moved", "http/1.1", "", nil, false)

	r := s.AddRequest("r1", "ctx", "https://b.test/", "GET", nil, 1001)
	assert.Equal(t, 1, r.RedirectCount)
	assert.Equal(t, PhaseBeforeRequestSent, r.Phase)
	assert.Equal(t, "https://b.test/", r.URL)
}

func TestResolveBlockedOnce(t *testing.T) {
	s := NewNetworkStore(nil)
	s.AddRequest("r1", "ctx", "https://a.test/", "GET", nil, 1000)
	s.MarkBlocked("r1", PhaseBeforeRequestSent, "fetch-1", []domain.InterceptID{"i1"})

	r, fetchID, err := s.Resolve("r1", PhaseBeforeRequestSent)
	require.Nil(t, err)
	assert.Equal(t, "fetch-1", fetchID)
	assert.Equal(t, domain.RequestID("r1"), r.ID)

	// 二次消费 → invalid argument
	_, _, err = s.Resolve("r1", PhaseBeforeRequestSent)
	require.NotNil(t, err)
	assert.Equal(t, domain.ErrInvalidArgument, err.Code)
}

func TestResolveWrongPhase(t *testing.T) {
	s := NewNetworkStore(nil)
	s.AddRequest("r1", "ctx", "https://a.test/", "GET", nil, 1000)
	s.MarkBlocked("r1", PhaseResponseStarted, "fetch-1", nil)

	_, _, err := s.Resolve("r1", PhaseBeforeRequestSent)
	require.NotNil(t, err)
	assert.Equal(t, domain.ErrInvalidArgument, err.Code)

	// provideResponse 任意阶段可用：不限定 allowed
	_, _, err = s.Resolve("r1")
	assert.Nil(t, err)
}

func TestResolveUnknownRequest(t *testing.T) {
	s := NewNetworkStore(nil)
	_, _, err := s.Resolve("_UNKNOWN_")
	require.NotNil(t, err)
	assert.Equal(t, domain.ErrNoSuchRequest, err.Code)
	assert.Equal(t, "Network request with ID '_UNKNOWN_' doesn't exist", err.Message)
}

func TestInterceptMatching(t *testing.T) {
	s := NewNetworkStore(nil)
	p, perr := urlpattern.ParseString("https://a.test/")
	require.NoError(t, perr)

	it := s.AddIntercept([]Phase{PhaseBeforeRequestSent}, []*urlpattern.Pattern{p}, nil)

	ids := s.MatchIntercepts(PhaseBeforeRequestSent, "https://a.test/", "ctx")
	assert.Equal(t, []domain.InterceptID{it.ID}, ids)

	assert.Empty(t, s.MatchIntercepts(PhaseResponseStarted, "https://a.test/", "ctx"))
	assert.Empty(t, s.MatchIntercepts(PhaseBeforeRequestSent, "https://b.test/", "ctx"))
}

func TestInterceptContextFilter(t *testing.T) {
	s := NewNetworkStore(nil)
	it := s.AddIntercept([]Phase{PhaseBeforeRequestSent}, nil, []domain.ContextID{"top1"})

	assert.Equal(t, []domain.InterceptID{it.ID}, s.MatchIntercepts(PhaseBeforeRequestSent, "https://x.test/", "top1"))
	assert.Empty(t, s.MatchIntercepts(PhaseBeforeRequestSent, "https://x.test/", "top2"))
}

func TestRemoveIntercept(t *testing.T) {
	s := NewNetworkStore(nil)
	it := s.AddIntercept([]Phase{PhaseBeforeRequestSent}, nil, nil)
	require.True(t, s.HasIntercepts())

	require.Nil(t, s.RemoveIntercept(it.ID))
	assert.False(t, s.HasIntercepts())

	err := s.RemoveIntercept(it.ID)
	require.NotNil(t, err)
	assert.Equal(t, domain.ErrNoSuchIntercept, err.Code)
}
