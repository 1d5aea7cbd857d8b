package api

import "time"

// WebSocket 接入默认值
const (
	// defaultHost 监听全部网卡
	defaultHost = "0.0.0.0"

	// defaultPort 默认监听端口
	defaultPort = 8765

	// defaultWriteTimeout 单次写入的截止时间
	defaultWriteTimeout = 10 * time.Second

	// defaultPingInterval 心跳间隔，pong 等待为其两倍
	defaultPingInterval = 30 * time.Second

	// defaultSendQueueSize 每个连接的出站队列长度
	defaultSendQueueSize = 256

	// defaultMaxMessageSize 客户端单帧最大字节数
	defaultMaxMessageSize int64 = 1 << 20

	// defaultReadBufferSize / defaultWriteBufferSize 升级器缓冲区
	defaultReadBufferSize  = 1024
	defaultWriteBufferSize = 1024

	// defaultMetricsEnabled 默认暴露 /metrics
	defaultMetricsEnabled = true

	// defaultShutdownTimeout 优雅关闭等待时间
	defaultShutdownTimeout = 5 * time.Second
)
