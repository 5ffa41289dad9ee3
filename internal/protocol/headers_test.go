package protocol

import (
	"encoding/base64"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidimapper/pkg/domain"
)

func TestComputeHeadersSize(t *testing.T) {
	assert.Equal(t, 0, ComputeHeadersSize(nil))
	assert.Equal(t, 0, ComputeHeadersSize([]domain.Header{}))

	// len("A: B\r\n") == 6
	one := []domain.Header{{Name: "A", Value: domain.StringValue("B")}}
	assert.Equal(t, len("A: B\r\n"), ComputeHeadersSize(one))

	two := append(one, domain.Header{Name: "Content-Type", Value: domain.StringValue("text/html")})
	assert.Equal(t, 6+len("Content-Type")+2+len("text/html")+2, ComputeHeadersSize(two))
}

func TestHeaderRoundTrip(t *testing.T) {
	in := []domain.Header{
		{Name: "Accept", Value: domain.StringValue("text/html")},
		{Name: "Accept", Value: domain.StringValue("application/json")}, // 允许重名
		{Name: "X-Empty", Value: domain.StringValue("")},
	}
	cdp, err := ToFetchHeaders(in)
	require.NoError(t, err)
	out := FromFetchHeaders(cdp)
	// 字符串值 bidi→cdp→bidi 往返是恒等，顺序保持
	assert.Equal(t, in, out)

	// nil 进 nil 出
	cdp, err = ToFetchHeaders(nil)
	require.NoError(t, err)
	assert.Nil(t, cdp)
	assert.Nil(t, FromFetchHeaders(nil))
}

func TestBase64HeaderDecodes(t *testing.T) {
	in := []domain.Header{{Name: "X-Bin", Value: domain.BytesValue{
		Type:  "base64",
		Value: base64.StdEncoding.EncodeToString([]byte("hi\x00there")),
	}}}
	cdp, err := ToFetchHeaders(in)
	require.NoError(t, err)
	assert.Equal(t, "hi\x00there", cdp[0].Value)

	_, err = ToFetchHeaders([]domain.Header{{Name: "X", Value: domain.BytesValue{Type: "base64", Value: "!!"}}})
	assert.Error(t, err)

	_, err = ToFetchHeaders([]domain.Header{{Name: "X", Value: domain.BytesValue{Type: "mystery", Value: ""}}})
	assert.Error(t, err)
}

func TestTiming(t *testing.T) {
	assert.Equal(t, 0.0, Timing(math.NaN()))
	assert.Equal(t, 0.0, Timing(math.Inf(1)))
	assert.Equal(t, 0.0, Timing(math.Inf(-1)))
	assert.Equal(t, 0.0, Timing(-5))
	assert.Equal(t, 0.0, TimingPtr(nil))

	// 有限值等于 max(0, floor(x))
	for _, x := range []float64{0, 0.2, 1, 1.9, 12345.678} {
		assert.Equal(t, math.Floor(x), Timing(x), "x=%v", x)
	}
}
