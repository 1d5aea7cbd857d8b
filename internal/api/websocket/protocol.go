package websocket

import (
	"encoding/json"
	"errors"
)

// 客户端命令类型
const (
	CommandSubscribe      = "subscribe"
	CommandUnsubscribe    = "unsubscribe"
	CommandSendExternal   = "send_external"
	CommandGetPeersAmount = "get_peers_amount"

	// replyTypeError 无法识别请求类型时错误回复使用的类型
	replyTypeError = "error"
)

// 回复状态
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// streamExternal 订阅的数据流类型，目前只有外部消息
const streamExternal = "external"

// 可返回给客户端的协议错误
var (
	ErrMalformedRequest  = errors.New("malformed request")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrUnsupportedStream = errors.New("unsupported stream type")
	ErrInvalidFilter     = errors.New("invalid filter")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidPayload    = errors.New("payload must be hex encoded")
	ErrInjectFailed      = errors.New("failed to send external message")
)

// Request 客户端帧
// Data 的结构由 Type 决定：subscribe/unsubscribe 为对象，send_external 为十六进制字符串
type Request struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// FilterData subscribe/unsubscribe 的参数
type FilterData struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	Address string `json:"address,omitempty"`
}

// Reply 服务端回复帧
type Reply struct {
	Type   string      `json:"type"`
	Answer interface{} `json:"answer"`
}

// FilterAnswer subscribe/unsubscribe 确认
// Address 为规范化的原始地址，通配订阅时为 null
type FilterAnswer struct {
	Type    string  `json:"type"`
	Status  string  `json:"status"`
	From    string  `json:"from"`
	Address *string `json:"address"`
}

// StatusAnswer 仅含状态的确认
type StatusAnswer struct {
	Status string `json:"status"`
}

// PeersAnswer get_peers_amount 回复
type PeersAnswer struct {
	Amount int `json:"amount"`
}

// ErrorAnswer 结构化错误回复
type ErrorAnswer struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// errorReply 构造错误回复，未知类型统一用 "error"
func errorReply(requestType string, err error) Reply {
	if requestType == "" {
		requestType = replyTypeError
	}
	return Reply{
		Type:   requestType,
		Answer: ErrorAnswer{Status: StatusError, Error: err.Error()},
	}
}
