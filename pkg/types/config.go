package types

import "time"

// AppConfig 用户配置（来自环境变量 / .env 文件）
//
// 🔧 零值陷阱处理说明：
// 叶子字段使用指针类型区分"未设置"和"设置为零值"：
// - nil: 环境中未设置，使用各模块默认值
// - &value: 明确设置（即使是 0、false、""）
type AppConfig struct {
	Log     UserLogConfig
	API     UserAPIConfig
	Relay   UserRelayConfig
	Overlay UserOverlayConfig
}

// UserLogConfig 用户日志配置
type UserLogConfig struct {
	Level     *string `env:"LOG_LEVEL"`   // debug, info, warn, error, fatal
	FilePath  *string `env:"LOG_FILE"`    // 日志文件路径，空表示仅控制台
	ToConsole *bool   `env:"LOG_CONSOLE"` // 指定文件时是否仍输出到控制台
}

// UserAPIConfig 用户 WebSocket 接入配置
type UserAPIConfig struct {
	Host           *string        `env:"WS_HOST"`
	Port           *int           `env:"WS_PORT"`
	WriteTimeout   *time.Duration `env:"WS_WRITE_TIMEOUT"`
	PingInterval   *time.Duration `env:"WS_PING_INTERVAL"`
	SendQueueSize  *int           `env:"WS_SEND_QUEUE"`
	MaxMessageSize *int64         `env:"WS_MAX_MESSAGE_SIZE"`
	MetricsEnabled *bool          `env:"METRICS_ENABLED"`
}

// UserRelayConfig 用户中继核心配置
type UserRelayConfig struct {
	DedupTTL       *time.Duration `env:"EXTERNALS_CACHE_TTL"`
	DedupEnforce   *bool          `env:"DEDUP_ENFORCE"`
	DedupBackend   *string        `env:"DEDUP_BACKEND"` // memory | redis
	InlineEviction *bool          `env:"DEDUP_INLINE_EVICTION"`
	RedisAddr      *string        `env:"REDIS_ADDR"`
	RedisPassword  *string        `env:"REDIS_PASSWORD"`
	RedisDB        *int           `env:"REDIS_DB"`
	ProgressEvery  *uint64        `env:"PROGRESS_LOG_EVERY"`
}

// UserOverlayConfig 用户覆盖网络配置
type UserOverlayConfig struct {
	Network           *string  `env:"NETWORK"` // mainnet | testnet | 自定义
	Workchain         *int32   `env:"WORKCHAIN"`
	ZeroStateFileHash *string  `env:"ZERO_STATE_FILE_HASH"`
	KeyFile           *string  `env:"KEY_FILE"`
	ListenAddresses   []string `env:"OVERLAY_LISTEN" envSeparator:","`
	BootstrapPeers    []string `env:"OVERLAY_BOOTSTRAP" envSeparator:","`
	MinPeers          *int     `env:"MIN_PEERS"`
	EnableDHT         *bool    `env:"OVERLAY_DHT"`

	Backend      *string `env:"OVERLAY_BACKEND"`   // ton | libp2p
	GlobalConfig *string `env:"TON_GLOBAL_CONFIG"` // 全局配置 URL 或文件路径
	ADNLListen   *string `env:"ADNL_LISTEN"`       // 空表示仅客户端模式
	MaxPeers     *int    `env:"OVERLAY_MAX_PEERS"`
}
