package urlpattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringPattern(t *testing.T) {
	p, err := ParseString("https://example.test/test?query")
	require.NoError(t, err)

	assert.True(t, p.Matches("https://example.test/test?query"))
	assert.False(t, p.Matches("https://example2.test/test?query"))
	assert.False(t, p.Matches("https://example.test/test?other"))
	assert.False(t, p.Matches("https://example.test/other?query"))
}

func TestStringPatternMissingComponents(t *testing.T) {
	p, err := ParseString("https://example.test/")
	require.NoError(t, err)

	// 模式缺失的组成部分要求 URL 同样缺失
	assert.True(t, p.Matches("https://example.test/"))
	assert.False(t, p.Matches("https://example.test/?query"))
	assert.False(t, p.Matches("https://example.test/path"))
}

func TestStringPatternDefaultPort(t *testing.T) {
	p, err := ParseString("https://example.test:443/")
	require.NoError(t, err)
	assert.True(t, p.Matches("https://example.test/"))

	p, err = ParseString("https://example.test:8443/")
	require.NoError(t, err)
	assert.True(t, p.Matches("https://example.test:8443/"))
	assert.False(t, p.Matches("https://example.test/"))
}

func TestStructPattern(t *testing.T) {
	tests := []struct {
		name     string
		protocol *string
		hostname *string
		port     *string
		pathname *string
		search   *string
		url      string
		want     bool
	}{
		{name: "empty pattern matches root", url: "https://web-platform.test/", want: true},
		{name: "empty pattern requires empty search", search: strptr(""), url: "https://web-platform.test/?search", want: false},
		{name: "hostname case-insensitive", hostname: strptr("WEB-PLATFORM.TEST"), url: "https://web-platform.test/", want: true},
		{name: "hostname mismatch", hostname: strptr("example.test"), url: "https://web-platform.test/", want: false},
		{name: "protocol match", protocol: strptr("https"), url: "https://web-platform.test/", want: true},
		{name: "protocol with colon", protocol: strptr("https:"), url: "https://web-platform.test/", want: true},
		{name: "pathname wildcard requires root path", hostname: strptr("a.test"), url: "https://a.test/deep/path", want: false},
		{name: "explicit pathname", pathname: strptr("/deep/path"), url: "https://a.test/deep/path", want: true},
		{name: "search stripped question mark", search: strptr("?q=1"), url: "https://a.test/?q=1", want: true},
		{name: "port match", port: strptr("8080"), url: "http://a.test:8080/", want: true},
		{name: "default port folds", port: strptr("443"), url: "https://a.test/", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseStruct(tt.protocol, tt.hostname, tt.port, tt.pathname, tt.search)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Matches(tt.url))
		})
	}
}

func TestStructPatternInvalid(t *testing.T) {
	_, err := ParseStruct(nil, strptr("bad/host"), nil, nil, nil)
	assert.Error(t, err)

	_, err = ParseStruct(nil, nil, strptr("80a"), nil, nil)
	assert.Error(t, err)

	_, err = ParseString("not a url")
	assert.Error(t, err)
}

func strptr(s string) *string { return &s }
