package domain

// Header BiDi 头部条目，值为字符串或 base64 字节
type Header struct {
	Name  string      `json:"name"`
	Value BytesValue  `json:"value"`
}

// BytesValue 字符串或 base64 编码的字节值
type BytesValue struct {
	Type  string `json:"type"` // "string" | "base64"
	Value string `json:"value"`
}

// StringValue 构造字符串型字节值
func StringValue(s string) BytesValue {
	return BytesValue{Type: "string", Value: s}
}

// Cookie BiDi cookie 模型
type Cookie struct {
	Name     string     `json:"name"`
	Value    BytesValue `json:"value"`
	Domain   string     `json:"domain"`
	Path     string     `json:"path"`
	Size     int        `json:"size"`
	HTTPOnly bool       `json:"httpOnly"`
	Secure   bool       `json:"secure"`
	SameSite string     `json:"sameSite"`
	Expiry   *int64     `json:"expiry,omitempty"`
}

// SetCookieHeader network.setCookieHeader，provideResponse/continueResponse 用
type SetCookieHeader struct {
	Name     string     `json:"name"`
	Value    BytesValue `json:"value"`
	Domain   *string    `json:"domain,omitempty"`
	HTTPOnly *bool      `json:"httpOnly,omitempty"`
	Expiry   *string    `json:"expiry,omitempty"`
	MaxAge   *int64     `json:"maxAge,omitempty"`
	Path     *string    `json:"path,omitempty"`
	SameSite *string    `json:"sameSite,omitempty"`
	Secure   *bool      `json:"secure,omitempty"`
}

// FetchTimingInfo network.fetchTimingInfo 事件字段
type FetchTimingInfo struct {
	TimeOrigin             float64 `json:"timeOrigin"`
	RequestTime            float64 `json:"requestTime"`
	RedirectStart          float64 `json:"redirectStart"`
	RedirectEnd            float64 `json:"redirectEnd"`
	FetchStart             float64 `json:"fetchStart"`
	DNSStart               float64 `json:"dnsStart"`
	DNSEnd                 float64 `json:"dnsEnd"`
	ConnectStart           float64 `json:"connectStart"`
	ConnectEnd             float64 `json:"connectEnd"`
	TLSStart               float64 `json:"tlsStart"`
	RequestStart           float64 `json:"requestStart"`
	ResponseStart          float64 `json:"responseStart"`
	ResponseEnd            float64 `json:"responseEnd"`
}

// RequestData network.requestData 事件字段
type RequestData struct {
	Request     RequestID       `json:"request"`
	URL         string          `json:"url"`
	Method      string          `json:"method"`
	Headers     []Header        `json:"headers"`
	Cookies     []Cookie        `json:"cookies"`
	HeadersSize int             `json:"headersSize"`
	BodySize    *int            `json:"bodySize"`
	Timings     FetchTimingInfo `json:"timings"`
}

// ResponseData network.responseData 事件字段
type ResponseData struct {
	URL           string   `json:"url"`
	Protocol      string   `json:"protocol"`
	Status        int      `json:"status"`
	StatusText    string   `json:"statusText"`
	FromCache     bool     `json:"fromCache"`
	Headers       []Header `json:"headers"`
	MimeType      string   `json:"mimeType"`
	BytesReceived int      `json:"bytesReceived"`
	HeadersSize   int      `json:"headersSize"`
	BodySize      *int     `json:"bodySize"`
	Content       struct {
		Size int `json:"size"`
	} `json:"content"`
	AuthChallenges []AuthChallenge `json:"authChallenges,omitempty"`
}

// AuthChallenge 认证挑战
type AuthChallenge struct {
	Scheme string `json:"scheme"`
	Realm  string `json:"realm"`
}
