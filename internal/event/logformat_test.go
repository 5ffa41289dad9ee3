package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidimapper/internal/protocol"
)

func num(v float64) protocol.RemoteValue { return protocol.RemoteValue{"type": "number", "value": v} }
func strv(s string) protocol.RemoteValue { return protocol.RemoteValue{"type": "string", "value": s} }

func TestFormatBasicSpecifiers(t *testing.T) {
	out, err := FormatConsoleText("%d %s", []protocol.RemoteValue{num(42), strv("x")})
	require.NoError(t, err)
	assert.Equal(t, "42 x", out)
}

func TestFormatLessValues(t *testing.T) {
	_, err := FormatConsoleText("%i %i", []protocol.RemoteValue{num(1)})
	require.Error(t, err)
	assert.Equal(t, "less value is provided", err.Error())
}

func TestFormatMoreValues(t *testing.T) {
	_, err := FormatConsoleText("trailing", []protocol.RemoteValue{num(1), num(2)})
	require.Error(t, err)
	assert.Equal(t, `more value is provided: "trailing 1 2"`, err.Error())
}

func TestFormatIntegerCoercion(t *testing.T) {
	tests := []struct {
		name string
		v    protocol.RemoteValue
		want string
	}{
		{"nan", protocol.RemoteValue{"type": "number", "value": "NaN"}, "NaN"},
		{"infinity", protocol.RemoteValue{"type": "number", "value": "Infinity"}, "NaN"},
		{"negative zero", protocol.RemoteValue{"type": "number", "value": "-0"}, "0"},
		{"bool", protocol.RemoteValue{"type": "boolean", "value": true}, "NaN"},
		{"null", protocol.RemoteValue{"type": "null"}, "NaN"},
		{"undefined", protocol.RemoteValue{"type": "undefined"}, "NaN"},
		{"object", protocol.RemoteValue{"type": "object"}, "NaN"},
		{"float truncates", num(3.9), "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := FormatConsoleText("%d", []protocol.RemoteValue{tt.v})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestFormatFloatKeepsInfinity(t *testing.T) {
	out, err := FormatConsoleText("%f", []protocol.RemoteValue{{"type": "number", "value": "Infinity"}})
	require.NoError(t, err)
	assert.Equal(t, "Infinity", out)

	out, err = FormatConsoleText("%f", []protocol.RemoteValue{num(1.5)})
	require.NoError(t, err)
	assert.Equal(t, "1.5", out)
}

func TestFormatStringCoercion(t *testing.T) {
	arr := protocol.RemoteValue{"type": "array", "value": []any{map[string]any{"type": "number", "value": 1.0}, map[string]any{"type": "number", "value": 2.0}}}
	out, err := FormatConsoleText("%s", []protocol.RemoteValue{arr})
	require.NoError(t, err)
	assert.Equal(t, "Array(2)", out)

	out, err = FormatConsoleText("%s", []protocol.RemoteValue{{"type": "map"}})
	require.NoError(t, err)
	assert.Equal(t, "Map(0)", out)
}

func TestFormatJSONLike(t *testing.T) {
	out, err := FormatConsoleText("%o", []protocol.RemoteValue{strv("hi")})
	require.NoError(t, err)
	assert.Equal(t, `"hi"`, out)

	out, err = FormatConsoleText("%o", []protocol.RemoteValue{{"type": "bigint", "value": "42"}})
	require.NoError(t, err)
	assert.Equal(t, "42n", out)

	re := protocol.RemoteValue{"type": "regexp", "value": map[string]any{"pattern": "a+", "flags": "gi"}}
	out, err = FormatConsoleText("%o", []protocol.RemoteValue{re})
	require.NoError(t, err)
	assert.Equal(t, "/a+/gi", out)
}

func TestFormatPercentEscape(t *testing.T) {
	out, err := FormatConsoleText("100%%", nil)
	require.NoError(t, err)
	assert.Equal(t, "100%", out)
}
