package protocol

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"sort"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"

	"bidimapper/pkg/domain"
)

// ToFetchHeaders BiDi 头部转 CDP 条目。base64 值解码为原始字节后按字符串下发。
func ToFetchHeaders(hs []domain.Header) ([]fetch.HeaderEntry, error) {
	if hs == nil {
		return nil, nil
	}
	out := make([]fetch.HeaderEntry, 0, len(hs))
	for _, h := range hs {
		v, err := headerValue(h.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, fetch.HeaderEntry{Name: h.Name, Value: v})
	}
	return out, nil
}

func headerValue(v domain.BytesValue) (string, error) {
	switch v.Type {
	case "string":
		return v.Value, nil
	case "base64":
		b, err := base64.StdEncoding.DecodeString(v.Value)
		if err != nil {
			return "", domain.InvalidArgument("Invalid base64 value")
		}
		return string(b), nil
	default:
		return "", domain.InvalidArgument("Unknown bytes value type '%s'", v.Type)
	}
}

// RawBytes 把 BytesValue 还原为原始字节
func RawBytes(v domain.BytesValue) ([]byte, error) {
	s, err := headerValue(v)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// FromFetchHeaders CDP 条目转 BiDi 头部，总是字符串形式，保持顺序
func FromFetchHeaders(entries []fetch.HeaderEntry) []domain.Header {
	if entries == nil {
		return nil
	}
	out := make([]domain.Header, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.Header{Name: e.Name, Value: domain.StringValue(e.Value)})
	}
	return out
}

// FromNetworkHeaders CDP network.Headers（JSON 对象）转 BiDi 头部，键序排序保证确定性
func FromNetworkHeaders(h network.Headers) []domain.Header {
	if len(h) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(h, &m); err != nil {
		return nil
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]domain.Header, 0, len(m))
	for _, n := range names {
		out = append(out, domain.Header{Name: n, Value: domain.StringValue(m[n])})
	}
	return out
}

// ComputeHeadersSize 头部字节数：Σ len(name) + len(": ") + len(value) + len("\r\n")
func ComputeHeadersSize(hs []domain.Header) int {
	size := 0
	for _, h := range hs {
		size += len(h.Name) + 2 + len(h.Value.Value) + 2
	}
	return size
}

// Timing 把 CDP 时间值裁剪为非负有限毫秒数：undefined/负数/NaN → 0
func Timing(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return 0
	}
	return math.Floor(x)
}

// TimingPtr 同 Timing，nil 视为 undefined
func TimingPtr(x *float64) float64 {
	if x == nil {
		return 0
	}
	return Timing(*x)
}
