package module

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidimapper/pkg/domain"
)

func TestNavigateWaitNone(t *testing.T) {
	d, target, _ := newTestDeps(t)
	m := NewBrowsingContextModule(d)
	require.Nil(t, d.Contexts.Add("top", "", "", "t1", ""))

	res, err := m.Navigate(context.Background(), cmdOf("browsingContext.navigate",
		`{"context":"top","url":"https://example.test/","wait":"none"}`))
	require.NoError(t, err)
	out := res.(map[string]any)
	assert.Equal(t, "https://example.test/", out["url"])
	assert.NotEmpty(t, out["navigation"])
	assert.Contains(t, target.calls, "Navigate")
}

func TestNavigateWaitComplete(t *testing.T) {
	d, _, _ := newTestDeps(t)
	m := NewBrowsingContextModule(d)
	require.Nil(t, d.Contexts.Add("top", "", "", "t1", ""))

	// 模拟浏览器在命令等待期间推进导航
	go func() {
		time.Sleep(20 * time.Millisecond)
		d.Contexts.NavigationCommitted("top", "https://example.test/")
		d.Contexts.NavigationInteractive("top")
		d.Contexts.NavigationLoaded("top")
	}()

	res, err := m.Navigate(context.Background(), cmdOf("browsingContext.navigate",
		`{"context":"top","url":"https://example.test/","wait":"complete"}`))
	require.NoError(t, err)
	out := res.(map[string]any)
	assert.Equal(t, "https://example.test/", out["url"])
}

func TestNavigateTimesOut(t *testing.T) {
	d, _, _ := newTestDeps(t)
	d.Options.IdleTimeoutMS = 30
	m := NewBrowsingContextModule(d)
	require.Nil(t, d.Contexts.Add("top", "", "", "t1", ""))

	_, err := m.Navigate(context.Background(), cmdOf("browsingContext.navigate",
		`{"context":"top","url":"https://example.test/","wait":"complete"}`))
	require.Error(t, err)
	assert.Equal(t, domain.ErrUnknownError, domain.AsError(err).Code)
}

func TestNavigateUnknownContext(t *testing.T) {
	d, _, _ := newTestDeps(t)
	m := NewBrowsingContextModule(d)

	_, err := m.Navigate(context.Background(), cmdOf("browsingContext.navigate",
		`{"context":"ghost","url":"https://a/"}`))
	require.Error(t, err)
	assert.Equal(t, domain.ErrNoSuchFrame, domain.AsError(err).Code)
}

func TestNavigateRejectedByBrowser(t *testing.T) {
	d, target, _ := newTestDeps(t)
	target.navigateErrorText = "net::ERR_NAME_NOT_RESOLVED"
	m := NewBrowsingContextModule(d)
	require.Nil(t, d.Contexts.Add("top", "", "", "t1", ""))

	_, err := m.Navigate(context.Background(), cmdOf("browsingContext.navigate",
		`{"context":"top","url":"https://nope.invalid/","wait":"complete"}`))
	require.Error(t, err)
	assert.Equal(t, domain.ErrUnknownError, domain.AsError(err).Code)
}

func TestActivateNonTopLevel(t *testing.T) {
	d, _, _ := newTestDeps(t)
	m := NewBrowsingContextModule(d)
	require.Nil(t, d.Contexts.Add("top", "", "", "t1", ""))
	require.Nil(t, d.Contexts.Add("frame", "top", "", "t1", ""))

	_, err := m.Activate(context.Background(), cmdOf("browsingContext.activate", `{"context":"frame"}`))
	require.Error(t, err)
	assert.Equal(t, domain.ErrInvalidArgument, domain.AsError(err).Code)

	_, err = m.Activate(context.Background(), cmdOf("browsingContext.activate", `{"context":"top"}`))
	require.NoError(t, err)
}

func TestGetTree(t *testing.T) {
	d, _, _ := newTestDeps(t)
	m := NewBrowsingContextModule(d)
	require.Nil(t, d.Contexts.Add("top", "", "", "t1", "https://a/"))
	require.Nil(t, d.Contexts.Add("frame", "top", "", "t1", "https://b/"))

	res, err := m.GetTree(context.Background(), cmdOf("browsingContext.getTree", `{}`))
	require.NoError(t, err)
	out := res.(map[string]any)
	assert.Len(t, out["contexts"], 1)

	_, err = m.GetTree(context.Background(), cmdOf("browsingContext.getTree", `{"root":"ghost"}`))
	require.Error(t, err)
	assert.Equal(t, domain.ErrNoSuchFrame, domain.AsError(err).Code)
}

func TestTraverseHistoryBounds(t *testing.T) {
	d, _, _ := newTestDeps(t)
	m := NewBrowsingContextModule(d)
	require.Nil(t, d.Contexts.Add("top", "", "", "t1", ""))

	_, err := m.TraverseHistory(context.Background(), cmdOf("browsingContext.traverseHistory",
		`{"context":"top","delta":-1}`))
	require.NoError(t, err)

	// 假历史有 3 条、当前下标 1：delta +5 越界
	_, err = m.TraverseHistory(context.Background(), cmdOf("browsingContext.traverseHistory",
		`{"context":"top","delta":5}`))
	require.Error(t, err)
	assert.Equal(t, domain.ErrNoSuchHistoryEntry, domain.AsError(err).Code)
}
