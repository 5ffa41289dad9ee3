package urlpattern

import (
	"net/url"
	"strings"

	"bidimapper/pkg/domain"
)

// Pattern 解析后的 URL 匹配模式。nil 字段为通配。
type Pattern struct {
	Protocol *string
	Hostname *string
	Port     *string
	Pathname *string
	Search   *string
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
	"ftp":   "21",
}

// ParseString 解析字符串型模式，所有字段按模式 URL 的组成部分取值
func ParseString(pattern string) (*Pattern, error) {
	u, err := url.Parse(pattern)
	if err != nil || u.Scheme == "" {
		return nil, domain.InvalidArgument("Invalid URL pattern '%s'", pattern)
	}
	p := &Pattern{}
	p.Protocol = ptr(strings.ToLower(u.Scheme))
	p.Hostname = ptr(strings.ToLower(u.Hostname()))
	p.Port = ptr(normalizePort(u.Scheme, u.Port()))
	path := u.EscapedPath()
	p.Pathname = ptr(path)
	// 字符串模式里缺失的组成部分要求 URL 里同样缺失
	search := ""
	if u.ForceQuery || u.RawQuery != "" {
		search = u.RawQuery
	}
	p.Search = ptr(search)
	return p, nil
}

// ParseStruct 解析结构化模式，缺省字段见 Matches 的缺省规则
func ParseStruct(protocol, hostname, port, pathname, search *string) (*Pattern, error) {
	p := &Pattern{}
	if protocol != nil {
		s := strings.ToLower(strings.TrimSuffix(*protocol, ":"))
		if s == "" || strings.ContainsAny(s, "/?#") {
			return nil, domain.InvalidArgument("Invalid protocol '%s'", *protocol)
		}
		p.Protocol = ptr(s)
	}
	if hostname != nil {
		s := strings.ToLower(*hostname)
		if s == "" || strings.ContainsAny(s, "/?#:") {
			return nil, domain.InvalidArgument("Invalid hostname '%s'", *hostname)
		}
		p.Hostname = ptr(s)
	}
	if port != nil {
		for i := 0; i < len(*port); i++ {
			if (*port)[i] < '0' || (*port)[i] > '9' {
				return nil, domain.InvalidArgument("Invalid port '%s'", *port)
			}
		}
		p.Port = ptr(*port)
	}
	if pathname != nil {
		s := *pathname
		if s != "" && !strings.HasPrefix(s, "/") {
			s = "/" + s
		}
		if strings.ContainsAny(s, "?#") {
			return nil, domain.InvalidArgument("Invalid pathname '%s'", *pathname)
		}
		p.Pathname = ptr(s)
	}
	if search != nil {
		p.Search = ptr(strings.TrimPrefix(*search, "?"))
	}
	return p, nil
}

// Matches 判断请求 URL 是否命中模式。
// hostname 比较大小写不敏感；search 比较去掉前导 "?"；
// pathname 缺省时要求 URL 路径为 "/" 或空，search 缺省时要求查询为空。
func (p *Pattern) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if p.Protocol != nil && *p.Protocol != strings.ToLower(u.Scheme) {
		return false
	}
	if p.Hostname != nil && *p.Hostname != strings.ToLower(u.Hostname()) {
		return false
	}
	if p.Port != nil && normalizePort(u.Scheme, *p.Port) != normalizePort(u.Scheme, u.Port()) {
		return false
	}
	path := u.EscapedPath()
	if p.Pathname != nil {
		if *p.Pathname != path {
			return false
		}
	} else if path != "/" && path != "" {
		return false
	}
	search := u.RawQuery
	if p.Search != nil {
		if strings.TrimPrefix(*p.Search, "?") != search {
			return false
		}
	} else if search != "" || u.ForceQuery {
		return false
	}
	return true
}

func normalizePort(scheme, port string) string {
	if port != "" && defaultPorts[strings.ToLower(scheme)] == port {
		return ""
	}
	return port
}

func ptr(s string) *string { return &s }
