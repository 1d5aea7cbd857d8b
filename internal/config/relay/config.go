package relay

import (
	"strings"
	"time"

	"github.com/weisyn/tonrelay/pkg/types"
)

// 去重缓存后端
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// RelayOptions 中继核心配置选项
type RelayOptions struct {
	// 去重配置
	DedupTTL       time.Duration `json:"dedup_ttl"`       // 指纹保留时间，同时是清理周期
	DedupEnforce   bool          `json:"dedup_enforce"`   // 是否丢弃重复消息
	DedupBackend   string        `json:"dedup_backend"`   // memory | redis
	InlineEviction bool          `json:"inline_eviction"` // 每条消息路由后顺带清理

	// Redis 后端
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`

	// 进度日志
	ProgressEvery uint64 `json:"progress_every"`
}

// Config 中继配置实现
type Config struct {
	options *RelayOptions
}

// New 创建中继配置实现
func New(userConfig *types.UserRelayConfig) *Config {
	options := createDefaultRelayOptions()
	if userConfig != nil {
		applyUserRelayConfig(options, userConfig)
	}
	return &Config{options: options}
}

func createDefaultRelayOptions() *RelayOptions {
	return &RelayOptions{
		DedupTTL:       defaultDedupTTL,
		DedupEnforce:   defaultDedupEnforce,
		DedupBackend:   defaultDedupBackend,
		InlineEviction: defaultInlineEviction,
		RedisAddr:      defaultRedisAddr,
		ProgressEvery:  defaultProgressEvery,
	}
}

func applyUserRelayConfig(options *RelayOptions, userConfig *types.UserRelayConfig) {
	if userConfig.DedupTTL != nil && *userConfig.DedupTTL > 0 {
		options.DedupTTL = *userConfig.DedupTTL
	}
	if userConfig.DedupEnforce != nil {
		options.DedupEnforce = *userConfig.DedupEnforce
	}
	if userConfig.DedupBackend != nil && *userConfig.DedupBackend != "" {
		options.DedupBackend = strings.ToLower(*userConfig.DedupBackend)
	}
	if userConfig.InlineEviction != nil {
		options.InlineEviction = *userConfig.InlineEviction
	}
	if userConfig.RedisAddr != nil && *userConfig.RedisAddr != "" {
		options.RedisAddr = *userConfig.RedisAddr
	}
	if userConfig.RedisPassword != nil {
		options.RedisPassword = *userConfig.RedisPassword
	}
	if userConfig.RedisDB != nil {
		options.RedisDB = *userConfig.RedisDB
	}
	if userConfig.ProgressEvery != nil && *userConfig.ProgressEvery > 0 {
		options.ProgressEvery = *userConfig.ProgressEvery
	}
}

// GetOptions 获取完整的中继配置选项
func (c *Config) GetOptions() *RelayOptions {
	return c.options
}
