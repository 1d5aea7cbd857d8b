package dedup

import "errors"

var (
	// ErrClosed 缓存已关闭
	ErrClosed = errors.New("dedup cache closed")

	// ErrUnknownBackend 配置了未知的后端
	ErrUnknownBackend = errors.New("unknown dedup backend")
)
