package event

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"bidimapper/internal/protocol"
)

// FormatConsoleText 组装 console 消息文本。首个字符串参数里的格式说明符
// 依次消费后续远端值；剩余未消费的值以空格拼接。
// 值不足返回 "less value is provided"，值过多返回
// `more value is provided: "<text>"`。
func FormatConsoleText(format string, values []protocol.RemoteValue) (string, error) {
	var b strings.Builder
	next := 0
	i := 0
	for i < len(format) {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			b.WriteByte(c)
			i++
			continue
		}
		spec := format[i+1]
		switch spec {
		case '%':
			b.WriteByte('%')
		case 'd', 'i':
			v, err := take(values, &next)
			if err != nil {
				return "", err
			}
			b.WriteString(coerceInt(v))
		case 'f':
			v, err := take(values, &next)
			if err != nil {
				return "", err
			}
			b.WriteString(coerceFloat(v))
		case 's':
			v, err := take(values, &next)
			if err != nil {
				return "", err
			}
			b.WriteString(coerceString(v))
		case 'o', 'O', 'c':
			v, err := take(values, &next)
			if err != nil {
				return "", err
			}
			b.WriteString(coerceJSON(v))
		default:
			b.WriteByte(c)
			b.WriteByte(spec)
		}
		i += 2
	}

	if next < len(values) {
		for _, v := range values[next:] {
			b.WriteString(" ")
			b.WriteString(coerceString(v))
		}
		return "", fmt.Errorf("more value is provided: %q", b.String())
	}
	return b.String(), nil
}

func take(values []protocol.RemoteValue, next *int) (protocol.RemoteValue, error) {
	if *next >= len(values) {
		return nil, fmt.Errorf("less value is provided")
	}
	v := values[*next]
	*next++
	return v, nil
}

// coerceInt %d/%i：整数化；NaN/Infinity/bool/null/undefined/对象 → "NaN"；负零 → "0"
func coerceInt(v protocol.RemoteValue) string {
	switch typ(v) {
	case "number":
		switch x := v["value"].(type) {
		case float64:
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return "NaN"
			}
			return strconv.FormatInt(int64(x), 10)
		case string:
			if x == "-0" {
				return "0"
			}
			if f, err := strconv.ParseFloat(x, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				return strconv.FormatInt(int64(f), 10)
			}
			return "NaN"
		}
		return "NaN"
	case "string":
		if f, err := strconv.ParseFloat(str(v), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return strconv.FormatInt(int64(f), 10)
		}
		return "NaN"
	default:
		return "NaN"
	}
}

// coerceFloat %f：浮点化；Infinity 保留；其余同 %d
func coerceFloat(v protocol.RemoteValue) string {
	if typ(v) == "number" {
		switch x := v["value"].(type) {
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		case string:
			switch x {
			case "Infinity", "-Infinity", "NaN":
				return x
			case "-0":
				return "0"
			}
		}
	}
	return coerceInt(v)
}

// coerceString %s：字符串化；容器显示为 Array(n)/Map(n)/Object(n)/Set(n)
func coerceString(v protocol.RemoteValue) string {
	switch typ(v) {
	case "string":
		return str(v)
	case "number":
		switch x := v["value"].(type) {
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		case string:
			return x
		}
		return ""
	case "boolean":
		if b, _ := v["value"].(bool); b {
			return "true"
		}
		return "false"
	case "null":
		return "null"
	case "undefined":
		return "undefined"
	case "bigint":
		return str(v) + "n"
	case "array":
		return fmt.Sprintf("Array(%d)", containerLen(v))
	case "map":
		return fmt.Sprintf("Map(%d)", containerLen(v))
	case "set":
		return fmt.Sprintf("Set(%d)", containerLen(v))
	case "object":
		return fmt.Sprintf("Object(%d)", containerLen(v))
	case "date":
		return str(v)
	case "regexp":
		return regexpText(v)
	case "function":
		return "function"
	default:
		return typ(v)
	}
}

// coerceJSON %o/%O/%c：JSON 式渲染，字符串加引号，BigInt 带 n 后缀
func coerceJSON(v protocol.RemoteValue) string {
	switch typ(v) {
	case "string":
		return strconv.Quote(str(v))
	case "bigint":
		return str(v) + "n"
	case "regexp":
		return regexpText(v)
	case "array":
		xs, _ := v["value"].([]any)
		parts := make([]string, 0, len(xs))
		for _, x := range xs {
			if rv, ok := x.(map[string]any); ok {
				parts = append(parts, coerceJSON(rv))
			}
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case "object":
		pairs, _ := v["value"].([]any)
		parts := make([]string, 0, len(pairs))
		for _, p := range pairs {
			kv, ok := p.([]any)
			if !ok || len(kv) != 2 {
				continue
			}
			k, _ := kv[0].(string)
			if rv, ok := kv[1].(map[string]any); ok {
				parts = append(parts, strconv.Quote(k)+": "+coerceJSON(rv))
			}
		}
		sort.Strings(parts)
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return coerceString(v)
	}
}

func typ(v protocol.RemoteValue) string {
	t, _ := v["type"].(string)
	return t
}

func str(v protocol.RemoteValue) string {
	s, _ := v["value"].(string)
	return s
}

func containerLen(v protocol.RemoteValue) int {
	if xs, ok := v["value"].([]any); ok {
		return len(xs)
	}
	return 0
}

func regexpText(v protocol.RemoteValue) string {
	m, ok := v["value"].(map[string]any)
	if !ok {
		return "//"
	}
	pat, _ := m["pattern"].(string)
	flags, _ := m["flags"].(string)
	return "/" + pat + "/" + flags
}
