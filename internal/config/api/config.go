package api

import (
	"fmt"
	"time"

	"github.com/weisyn/tonrelay/pkg/types"
)

// APIOptions WebSocket 接入配置选项
type APIOptions struct {
	// 基础配置
	Host string `json:"host"` // 监听地址
	Port int    `json:"port"` // 监听端口

	// 写入与保活
	WriteTimeout time.Duration `json:"write_timeout"` // 每次写入的截止时间
	PingInterval time.Duration `json:"ping_interval"` // ping 间隔

	// 缓冲区配置
	SendQueueSize   int   `json:"send_queue_size"`   // 每连接出站队列长度
	MaxMessageSize  int64 `json:"max_message_size"`  // 入站帧上限(字节)
	ReadBufferSize  int   `json:"read_buffer_size"`  // 读缓冲区大小(字节)
	WriteBufferSize int   `json:"write_buffer_size"` // 写缓冲区大小(字节)

	// 附加端点
	MetricsEnabled bool `json:"metrics_enabled"` // 是否暴露 /metrics

	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// Config API配置实现
type Config struct {
	options *APIOptions
}

// New 创建API配置实现
func New(userConfig *types.UserAPIConfig) *Config {
	defaultOptions := createDefaultAPIOptions()
	if userConfig != nil {
		convertAndMergeUserConfig(defaultOptions, userConfig)
	}
	return &Config{options: defaultOptions}
}

// createDefaultAPIOptions 创建默认API配置
func createDefaultAPIOptions() *APIOptions {
	return &APIOptions{
		Host:            defaultHost,
		Port:            defaultPort,
		WriteTimeout:    defaultWriteTimeout,
		PingInterval:    defaultPingInterval,
		SendQueueSize:   defaultSendQueueSize,
		MaxMessageSize:  defaultMaxMessageSize,
		ReadBufferSize:  defaultReadBufferSize,
		WriteBufferSize: defaultWriteBufferSize,
		MetricsEnabled:  defaultMetricsEnabled,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// convertAndMergeUserConfig 将用户配置合并到默认配置
func convertAndMergeUserConfig(options *APIOptions, userConfig *types.UserAPIConfig) {
	if userConfig.Host != nil && *userConfig.Host != "" {
		options.Host = *userConfig.Host
	}
	if userConfig.Port != nil && *userConfig.Port > 0 {
		options.Port = *userConfig.Port
	}
	if userConfig.WriteTimeout != nil && *userConfig.WriteTimeout > 0 {
		options.WriteTimeout = *userConfig.WriteTimeout
	}
	if userConfig.PingInterval != nil && *userConfig.PingInterval > 0 {
		options.PingInterval = *userConfig.PingInterval
	}
	if userConfig.SendQueueSize != nil && *userConfig.SendQueueSize > 0 {
		options.SendQueueSize = *userConfig.SendQueueSize
	}
	if userConfig.MaxMessageSize != nil && *userConfig.MaxMessageSize > 0 {
		options.MaxMessageSize = *userConfig.MaxMessageSize
	}
	if userConfig.MetricsEnabled != nil {
		options.MetricsEnabled = *userConfig.MetricsEnabled
	}
}

// GetOptions 获取完整的API配置选项
func (c *Config) GetOptions() *APIOptions {
	return c.options
}

// ListenAddr 返回 host:port 形式的监听地址
func (o *APIOptions) ListenAddr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// PongWait 对端必须在此时间内回应 pong
func (o *APIOptions) PongWait() time.Duration {
	return 2 * o.PingInterval
}
