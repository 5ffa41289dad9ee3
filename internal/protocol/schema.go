package protocol

import (
	"strings"

	"github.com/tidwall/gjson"

	"bidimapper/pkg/domain"
)

// Kind 字段类型
type Kind int

const (
	KindString Kind = iota
	KindUint
	KindInt
	KindNumber
	KindBool
	KindObject
	KindArray
)

// Field 一条参数约束
type Field struct {
	Path     string
	Kind     Kind
	Required bool
	Enum     []string
	// NonNegative 数值必须 >= 0
	NonNegative bool
	// NonEmpty 数组必须非空
	NonEmpty bool
}

// schemas 按方法声明的参数结构，派生自 CDDL 定义的受支持子集。
// 结构之外的语义校验（id 是否存在、阶段是否允许）由各模块执行。
var schemas = map[string][]Field{
	"session.status":      {},
	"session.new":         {{Path: "capabilities", Kind: KindObject}},
	"session.end":         {},
	"session.subscribe": {
		{Path: "events", Kind: KindArray, Required: true, NonEmpty: true},
		{Path: "contexts", Kind: KindArray, NonEmpty: true},
	},
	"session.unsubscribe": {
		{Path: "events", Kind: KindArray, Required: true, NonEmpty: true},
		{Path: "contexts", Kind: KindArray, NonEmpty: true},
	},

	"browser.close":             {},
	"browser.createUserContext": {},
	"browser.getUserContexts":   {},
	"browser.removeUserContext": {{Path: "userContext", Kind: KindString, Required: true}},

	"browsingContext.activate": {{Path: "context", Kind: KindString, Required: true}},
	"browsingContext.captureScreenshot": {
		{Path: "context", Kind: KindString, Required: true},
		{Path: "origin", Kind: KindString, Enum: []string{"viewport", "document"}},
		{Path: "format", Kind: KindObject},
	},
	"browsingContext.close": {
		{Path: "context", Kind: KindString, Required: true},
		{Path: "promptUnload", Kind: KindBool},
	},
	"browsingContext.create": {
		{Path: "type", Kind: KindString, Required: true, Enum: []string{"tab", "window"}},
		{Path: "referenceContext", Kind: KindString},
		{Path: "userContext", Kind: KindString},
		{Path: "background", Kind: KindBool},
	},
	"browsingContext.getTree": {
		{Path: "maxDepth", Kind: KindUint},
		{Path: "root", Kind: KindString},
	},
	"browsingContext.handleUserPrompt": {
		{Path: "context", Kind: KindString, Required: true},
		{Path: "accept", Kind: KindBool},
		{Path: "userText", Kind: KindString},
	},
	"browsingContext.navigate": {
		{Path: "context", Kind: KindString, Required: true},
		{Path: "url", Kind: KindString, Required: true},
		{Path: "wait", Kind: KindString, Enum: []string{"none", "interactive", "complete"}},
	},
	"browsingContext.reload": {
		{Path: "context", Kind: KindString, Required: true},
		{Path: "ignoreCache", Kind: KindBool},
		{Path: "wait", Kind: KindString, Enum: []string{"none", "interactive", "complete"}},
	},
	"browsingContext.setViewport": {
		{Path: "context", Kind: KindString, Required: true},
		{Path: "viewport", Kind: KindObject},
		{Path: "devicePixelRatio", Kind: KindNumber, NonNegative: true},
	},
	"browsingContext.traverseHistory": {
		{Path: "context", Kind: KindString, Required: true},
		{Path: "delta", Kind: KindInt, Required: true},
	},

	"network.addIntercept": {
		{Path: "phases", Kind: KindArray, Required: true, NonEmpty: true},
		{Path: "urlPatterns", Kind: KindArray},
		{Path: "contexts", Kind: KindArray, NonEmpty: true},
	},
	"network.removeIntercept": {{Path: "intercept", Kind: KindString, Required: true}},
	"network.continueRequest": {
		{Path: "request", Kind: KindString, Required: true},
		{Path: "url", Kind: KindString},
		{Path: "method", Kind: KindString},
		{Path: "headers", Kind: KindArray},
		{Path: "cookies", Kind: KindArray},
		{Path: "body", Kind: KindObject},
	},
	"network.continueResponse": {
		{Path: "request", Kind: KindString, Required: true},
		{Path: "statusCode", Kind: KindInt, NonNegative: true},
		{Path: "reasonPhrase", Kind: KindString},
		{Path: "headers", Kind: KindArray},
		{Path: "cookies", Kind: KindArray},
	},
	"network.continueWithAuth": {
		{Path: "request", Kind: KindString, Required: true},
		{Path: "action", Kind: KindString, Required: true, Enum: []string{"default", "cancel", "provideCredentials"}},
		{Path: "credentials", Kind: KindObject},
	},
	"network.failRequest": {{Path: "request", Kind: KindString, Required: true}},
	"network.provideResponse": {
		{Path: "request", Kind: KindString, Required: true},
		{Path: "statusCode", Kind: KindInt, NonNegative: true},
		{Path: "reasonPhrase", Kind: KindString},
		{Path: "headers", Kind: KindArray},
		{Path: "cookies", Kind: KindArray},
		{Path: "body", Kind: KindObject},
	},
	"network.setCacheBehavior": {
		{Path: "cacheBehavior", Kind: KindString, Required: true, Enum: []string{"default", "bypass"}},
		{Path: "contexts", Kind: KindArray, NonEmpty: true},
	},

	"script.addPreloadScript": {
		{Path: "functionDeclaration", Kind: KindString, Required: true},
		{Path: "arguments", Kind: KindArray},
		{Path: "contexts", Kind: KindArray, NonEmpty: true},
		{Path: "userContexts", Kind: KindArray, NonEmpty: true},
		{Path: "sandbox", Kind: KindString},
	},
	"script.removePreloadScript": {{Path: "script", Kind: KindString, Required: true}},
	"script.callFunction": {
		{Path: "functionDeclaration", Kind: KindString, Required: true},
		{Path: "awaitPromise", Kind: KindBool, Required: true},
		{Path: "target", Kind: KindObject, Required: true},
		{Path: "arguments", Kind: KindArray},
		{Path: "this", Kind: KindObject},
		{Path: "resultOwnership", Kind: KindString, Enum: []string{"root", "none"}},
	},
	"script.disown": {
		{Path: "handles", Kind: KindArray, Required: true},
		{Path: "target", Kind: KindObject, Required: true},
	},
	"script.evaluate": {
		{Path: "expression", Kind: KindString, Required: true},
		{Path: "awaitPromise", Kind: KindBool, Required: true},
		{Path: "target", Kind: KindObject, Required: true},
		{Path: "resultOwnership", Kind: KindString, Enum: []string{"root", "none"}},
	},
	"script.getRealms": {
		{Path: "context", Kind: KindString},
		{Path: "type", Kind: KindString},
	},

	"input.performActions": {
		{Path: "context", Kind: KindString, Required: true},
		{Path: "actions", Kind: KindArray, Required: true},
	},
	"input.releaseActions": {{Path: "context", Kind: KindString, Required: true}},
	"input.setFiles": {
		{Path: "context", Kind: KindString, Required: true},
		{Path: "element", Kind: KindObject, Required: true},
		{Path: "files", Kind: KindArray, Required: true},
	},

	"permissions.setPermission": {
		{Path: "descriptor", Kind: KindObject, Required: true},
		{Path: "descriptor.name", Kind: KindString, Required: true},
		{Path: "state", Kind: KindString, Required: true, Enum: []string{"granted", "denied", "prompt"}},
		{Path: "origin", Kind: KindString, Required: true},
		{Path: "userContext", Kind: KindString},
	},

	"storage.getCookies": {
		{Path: "filter", Kind: KindObject},
		{Path: "partition", Kind: KindObject},
	},
	"storage.setCookie": {
		{Path: "cookie", Kind: KindObject, Required: true},
		{Path: "cookie.name", Kind: KindString, Required: true},
		{Path: "cookie.value", Kind: KindObject, Required: true},
		{Path: "cookie.domain", Kind: KindString, Required: true},
		{Path: "partition", Kind: KindObject},
	},
	"storage.deleteCookies": {
		{Path: "filter", Kind: KindObject},
		{Path: "partition", Kind: KindObject},
	},

	"goog:cdp.sendCommand": {
		{Path: "method", Kind: KindString, Required: true},
		{Path: "params", Kind: KindObject},
		{Path: "session", Kind: KindString},
	},
	"goog:cdp.getSession": {{Path: "context", Kind: KindString, Required: true}},
}

// KnownMethod 方法是否在受支持的表里
func KnownMethod(method string) bool {
	_, ok := schemas[method]
	return ok
}

// ValidateParams 按表校验参数结构，失败返回 invalid argument 并指明字段
func ValidateParams(method string, params []byte) *domain.Error {
	fields, ok := schemas[method]
	if !ok {
		return domain.NewError(domain.ErrUnknownCommand, "Unknown command '%s'", method)
	}
	body := gjson.ParseBytes(params)
	for _, f := range fields {
		v := body.Get(f.Path)
		if !v.Exists() {
			if f.Required {
				return domain.InvalidArgument("Missing required field %q", f.Path)
			}
			continue
		}
		if err := checkKind(f, v); err != nil {
			return err
		}
	}
	return nil
}

func checkKind(f Field, v gjson.Result) *domain.Error {
	switch f.Kind {
	case KindString:
		if v.Type != gjson.String {
			return domain.InvalidArgument("Expected string in %q", f.Path)
		}
		if len(f.Enum) > 0 && !contains(f.Enum, v.Str) {
			return domain.InvalidArgument("Invalid enum value %q in %q, expected one of: %s",
				v.Str, f.Path, strings.Join(f.Enum, ", "))
		}
	case KindUint:
		if v.Type != gjson.Number || v.Float() < 0 || v.Float() != float64(uint64(v.Float())) {
			return domain.InvalidArgument("Expected unsigned integer in %q", f.Path)
		}
	case KindInt:
		if v.Type != gjson.Number || v.Float() != float64(int64(v.Float())) {
			return domain.InvalidArgument("Expected integer in %q", f.Path)
		}
		if f.NonNegative && v.Int() < 0 {
			return domain.InvalidArgument("Number must be greater than or equal to 0 in %q", f.Path)
		}
	case KindNumber:
		if v.Type != gjson.Number {
			return domain.InvalidArgument("Expected number in %q", f.Path)
		}
		if f.NonNegative && v.Float() < 0 {
			return domain.InvalidArgument("Number must be greater than or equal to 0 in %q", f.Path)
		}
	case KindBool:
		if v.Type != gjson.True && v.Type != gjson.False {
			return domain.InvalidArgument("Expected boolean in %q", f.Path)
		}
	case KindObject:
		if !v.IsObject() {
			return domain.InvalidArgument("Expected object in %q", f.Path)
		}
	case KindArray:
		if !v.IsArray() {
			return domain.InvalidArgument("Expected array in %q", f.Path)
		}
		if f.NonEmpty && len(v.Array()) == 0 {
			return domain.InvalidArgument("Expected non-empty array in %q", f.Path)
		}
	}
	return nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
