package domain

// UnhandledPromptBehavior 未处理对话框策略
type UnhandledPromptBehavior string

const (
	PromptBehaviorDefault UnhandledPromptBehavior = "default"
	PromptBehaviorAccept  UnhandledPromptBehavior = "accept"
	PromptBehaviorDismiss UnhandledPromptBehavior = "dismiss"
	PromptBehaviorIgnore  UnhandledPromptBehavior = "ignore"
)

// MapperOptions mapper 引擎的构造配置
type MapperOptions struct {
	DevToolsURL             string
	AcceptInsecureCerts     bool
	UnhandledPromptBehavior UnhandledPromptBehavior
	// IdleTimeoutMS 命令内部等待（导航等待、新上下文登记等待）的上限，0 表示不限时
	IdleTimeoutMS int
	// TrafficDSN 流量归档 sqlite DSN，默认 ":memory:"，mapper 不落盘
	TrafficDSN string
}

// Normalize 填充默认值
func (o *MapperOptions) Normalize() {
	if o.UnhandledPromptBehavior == "" {
		o.UnhandledPromptBehavior = PromptBehaviorDefault
	}
	if o.TrafficDSN == "" {
		o.TrafficDSN = ":memory:"
	}
}
