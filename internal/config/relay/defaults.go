package relay

import "time"

// 中继核心默认值
const (
	// defaultDedupTTL 指纹在缓存中的保留时间
	defaultDedupTTL = 60 * time.Second

	// defaultDedupEnforce 重复消息直接丢弃
	defaultDedupEnforce = true

	// defaultDedupBackend 进程内缓存
	defaultDedupBackend = BackendMemory

	// defaultInlineEviction 只依赖后台清理
	defaultInlineEviction = false

	// defaultRedisAddr 仅在 redis 后端时使用
	defaultRedisAddr = "127.0.0.1:6379"

	// defaultProgressEvery 每处理多少条消息输出一次进度日志
	defaultProgressEvery uint64 = 500
)
