package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidimapper/internal/store"
)

func TestArchiveRoundTrip(t *testing.T) {
	a, err := Open(":memory:", "test_", nil)
	require.NoError(t, err)
	defer a.Close()

	a.Record(&store.Request{
		ID:       "r1",
		Context:  "top",
		URL:      "https://a.test/",
		Method:   "GET",
		Status:   200,
		Phase:    store.PhaseResponseCompleted,
		MimeType: "text/html",
		BodySize: 1234,
	})
	a.Record(&store.Request{
		ID:      "r2",
		Context: "top",
		URL:     "https://b.test/",
		Method:  "POST",
		Phase:   store.PhaseFetchError,
	})

	recs, err := a.Recent(10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	// 新写入的在前
	assert.Equal(t, "r2", recs[0].RequestID)
	assert.Equal(t, "r1", recs[1].RequestID)
	assert.Equal(t, 200, recs[1].Status)
	assert.Equal(t, string(store.PhaseResponseCompleted), recs[1].Phase)
}

func TestArchiveRecentLimit(t *testing.T) {
	a, err := Open(":memory:", "test_", nil)
	require.NoError(t, err)
	defer a.Close()

	for i := 0; i < 5; i++ {
		a.Record(&store.Request{ID: "r", URL: "https://a.test/", Method: "GET"})
	}
	recs, err := a.Recent(3)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}
