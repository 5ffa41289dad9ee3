package protocol

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"bidimapper/pkg/domain"
)

// ParseCommand 解析并初步校验一条北向命令帧。
// 帧级错误（缺 id、method 等）返回 *domain.Error，id 可能无法取得。
func ParseCommand(raw []byte) (*domain.Command, *domain.Error) {
	if !gjson.ValidBytes(raw) {
		return nil, domain.InvalidArgument("Cannot parse data as JSON")
	}
	body := gjson.ParseBytes(raw)
	if !body.IsObject() {
		return nil, domain.InvalidArgument("Expected JSON object but got %s", body.Type)
	}

	cmd := &domain.Command{}

	id := body.Get("id")
	if !id.Exists() || id.Type != gjson.Number || id.Float() < 0 || id.Float() != float64(uint64(id.Float())) {
		return nil, domain.InvalidArgument("Expected unsigned integer in \"id\"")
	}
	cmd.ID = id.Uint()

	method := body.Get("method")
	if !method.Exists() || method.Type != gjson.String || method.Str == "" {
		return cmd, domain.InvalidArgument("Expected non-empty string in \"method\"")
	}
	cmd.Method = method.Str

	params := body.Get("params")
	if params.Exists() && !params.IsObject() {
		return cmd, domain.InvalidArgument("Expected object in \"params\"")
	}
	if params.Exists() {
		cmd.Params = json.RawMessage(params.Raw)
	} else {
		cmd.Params = json.RawMessage("{}")
	}

	ch, derr := extractChannel(body)
	if derr != nil {
		return cmd, derr
	}
	cmd.Channel = ch
	return cmd, nil
}

// extractChannel 取 channel / goog:channel。两者同时出现且不一致时拒绝。
func extractChannel(body gjson.Result) (domain.Channel, *domain.Error) {
	ch := body.Get("channel")
	gch := body.Get("goog:channel")
	if ch.Exists() && ch.Type != gjson.String {
		return "", domain.InvalidArgument("Expected string in \"channel\"")
	}
	if gch.Exists() && gch.Type != gjson.String {
		return "", domain.InvalidArgument("Expected string in \"goog:channel\"")
	}
	if ch.Exists() && gch.Exists() && ch.Str != gch.Str {
		return "", domain.InvalidArgument("Mismatching \"channel\" and \"goog:channel\"")
	}
	if ch.Exists() {
		return domain.Channel(ch.Str), nil
	}
	if gch.Exists() {
		return domain.Channel(gch.Str), nil
	}
	return "", nil
}

// MarshalSuccess 序列化成功响应帧
func MarshalSuccess(id uint64, result any, ch domain.Channel) ([]byte, error) {
	if result == nil {
		result = domain.EmptyResult{}
	}
	return json.Marshal(domain.SuccessFrame{Type: "success", ID: id, Result: result, Channel: ch})
}

// MarshalError 序列化错误响应帧
func MarshalError(id *uint64, e *domain.Error, ch domain.Channel) ([]byte, error) {
	return json.Marshal(domain.ErrorFrame{
		Type:       "error",
		ID:         id,
		Error:      e.Code,
		Message:    e.Message,
		Stacktrace: e.Stacktrace,
		Channel:    ch,
	})
}

// MarshalEvent 把事件序列化一次，得到未带 channel 的帧
func MarshalEvent(method string, params any) ([]byte, error) {
	return json.Marshal(domain.EventFrame{Type: "event", Method: method, Params: params})
}

// StampChannel 在已序列化的事件帧上注入投递通道，空通道原样返回
func StampChannel(frame []byte, ch domain.Channel) ([]byte, error) {
	if ch == "" {
		return frame, nil
	}
	return sjson.SetBytes(frame, "channel", string(ch))
}
