package protocol

import (
	"encoding/json"
	"strings"

	"github.com/mafredri/cdp/protocol/runtime"
)

// RemoteValue BiDi script.RemoteValue 的通用表示
type RemoteValue = map[string]any

// FromRemoteObject 把 CDP RemoteObject 翻译为 BiDi RemoteValue
func FromRemoteObject(o runtime.RemoteObject) RemoteValue {
	switch o.Type {
	case "undefined":
		return RemoteValue{"type": "undefined"}
	case "string":
		return RemoteValue{"type": "string", "value": rawString(o.Value)}
	case "boolean":
		var b bool
		_ = json.Unmarshal(o.Value, &b)
		return RemoteValue{"type": "boolean", "value": b}
	case "number":
		if o.UnserializableValue != nil {
			return RemoteValue{"type": "number", "value": string(*o.UnserializableValue)}
		}
		var f float64
		_ = json.Unmarshal(o.Value, &f)
		return RemoteValue{"type": "number", "value": f}
	case "bigint":
		v := ""
		if o.UnserializableValue != nil {
			v = strings.TrimSuffix(string(*o.UnserializableValue), "n")
		}
		return RemoteValue{"type": "bigint", "value": v}
	case "symbol":
		return withHandle(RemoteValue{"type": "symbol"}, o)
	case "function":
		return withHandle(RemoteValue{"type": "function"}, o)
	case "object":
		return fromObject(o)
	default:
		return withHandle(RemoteValue{"type": "object"}, o)
	}
}

func fromObject(o runtime.RemoteObject) RemoteValue {
	sub := ""
	if o.Subtype != nil {
		sub = *o.Subtype
	}
	switch sub {
	case "null":
		return RemoteValue{"type": "null"}
	case "array":
		rv := RemoteValue{"type": "array"}
		if len(o.Value) > 0 {
			var xs []json.RawMessage
			if json.Unmarshal(o.Value, &xs) == nil {
				vals := make([]any, 0, len(xs))
				for _, x := range xs {
					vals = append(vals, leafValue(x))
				}
				rv["value"] = vals
			}
		}
		return withHandle(rv, o)
	case "regexp":
		rv := RemoteValue{"type": "regexp"}
		if o.Description != nil {
			pat, flags := splitRegexp(*o.Description)
			rv["value"] = map[string]any{"pattern": pat, "flags": flags}
		}
		return withHandle(rv, o)
	case "date":
		rv := RemoteValue{"type": "date"}
		if o.Description != nil {
			rv["value"] = *o.Description
		}
		return withHandle(rv, o)
	case "map":
		return withHandle(RemoteValue{"type": "map"}, o)
	case "set":
		return withHandle(RemoteValue{"type": "set"}, o)
	case "promise":
		return withHandle(RemoteValue{"type": "promise"}, o)
	case "error":
		return withHandle(RemoteValue{"type": "error"}, o)
	case "node":
		return withHandle(RemoteValue{"type": "node"}, o)
	case "weakmap", "weakset", "arraybuffer", "typedarray":
		return withHandle(RemoteValue{"type": sub}, o)
	default:
		rv := RemoteValue{"type": "object"}
		if len(o.Value) > 0 {
			var m map[string]json.RawMessage
			if json.Unmarshal(o.Value, &m) == nil {
				pairs := make([]any, 0, len(m))
				for k, v := range m {
					pairs = append(pairs, []any{k, leafValue(v)})
				}
				rv["value"] = pairs
			}
		}
		return withHandle(rv, o)
	}
}

// leafValue 按值传回的嵌套成员，降级为一层深度的 RemoteValue
func leafValue(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return RemoteValue{"type": "object"}
	}
	switch x := v.(type) {
	case nil:
		return RemoteValue{"type": "null"}
	case string:
		return RemoteValue{"type": "string", "value": x}
	case bool:
		return RemoteValue{"type": "boolean", "value": x}
	case float64:
		return RemoteValue{"type": "number", "value": x}
	case []any:
		return RemoteValue{"type": "array"}
	default:
		return RemoteValue{"type": "object"}
	}
}

func withHandle(rv RemoteValue, o runtime.RemoteObject) RemoteValue {
	if o.ObjectID != nil {
		rv["handle"] = string(*o.ObjectID)
	}
	return rv
}

func rawString(raw json.RawMessage) string {
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}

func splitRegexp(desc string) (string, string) {
	if len(desc) < 2 || desc[0] != '/' {
		return desc, ""
	}
	idx := strings.LastIndex(desc, "/")
	if idx <= 0 {
		return desc, ""
	}
	return desc[1:idx], desc[idx+1:]
}
