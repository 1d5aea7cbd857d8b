package overlay

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/weisyn/tonrelay/pkg/types"
)

// 内置网络名称
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

// 覆盖网络后端
const (
	// BackendTON TON 分片公共覆盖网络（ADNL + DHT）
	BackendTON = "ton"
	// BackendLibp2p libp2p GossipSub 主题，用于私有中继集群
	BackendLibp2p = "libp2p"
)

var (
	// ErrZeroStateRequired 自定义网络缺少零状态文件哈希
	ErrZeroStateRequired = errors.New("custom network requires ZERO_STATE_FILE_HASH")
	// ErrGlobalConfigRequired 自定义网络在 TON 后端下缺少全局配置
	ErrGlobalConfigRequired = errors.New("custom network requires TON_GLOBAL_CONFIG")
	// ErrInvalidZeroState 零状态文件哈希不是 32 字节的 hex 或 base64
	ErrInvalidZeroState = errors.New("invalid ZERO_STATE_FILE_HASH")
	// ErrUnknownBackend 未知的覆盖网络后端
	ErrUnknownBackend = errors.New("unknown overlay backend")
)

// OverlayOptions 覆盖网络配置选项
type OverlayOptions struct {
	// 网络标识
	Network           string `json:"network"`              // mainnet | testnet | 自定义名称
	Workchain         int32  `json:"workchain"`            // 订阅的工作链
	ZeroStateFileHash string `json:"zero_state_file_hash"` // 自定义网络必填

	// 后端选择
	Backend string `json:"backend"` // ton | libp2p

	// 节点身份
	KeyFile string `json:"key_file"`

	// TON 后端
	GlobalConfig string `json:"global_config"` // 全局配置 URL 或文件路径，提供 DHT 静态节点与零状态
	ADNLListen   string `json:"adnl_listen"`   // UDP 监听地址，空表示仅客户端模式
	MaxPeers     int    `json:"max_peers"`     // 覆盖网络邻居上限

	// libp2p 后端
	ListenAddresses []string `json:"listen_addresses"`
	BootstrapPeers  []string `json:"bootstrap_peers"`
	EnableDHT       bool     `json:"enable_dht"`

	// 启动门槛
	MinPeers         int           `json:"min_peers"`
	PeerPollInterval time.Duration `json:"peer_poll_interval"`

	InboundBuffer int `json:"inbound_buffer"`
}

// Config 覆盖网络配置实现
type Config struct {
	options *OverlayOptions
}

// New 创建覆盖网络配置实现
func New(userConfig *types.UserOverlayConfig) *Config {
	options := createDefaultOverlayOptions()
	if userConfig != nil {
		applyUserOverlayConfig(options, userConfig)
	}
	return &Config{options: options}
}

func createDefaultOverlayOptions() *OverlayOptions {
	return &OverlayOptions{
		Network:          defaultNetwork,
		Workchain:        defaultWorkchain,
		Backend:          defaultBackend,
		KeyFile:          defaultKeyFile,
		MaxPeers:         defaultMaxPeers,
		ListenAddresses:  append([]string(nil), defaultListenAddresses...),
		EnableDHT:        defaultEnableDHT,
		MinPeers:         defaultMinPeers,
		PeerPollInterval: defaultPeerPollInterval,
		InboundBuffer:    defaultInboundBuffer,
	}
}

func applyUserOverlayConfig(options *OverlayOptions, userConfig *types.UserOverlayConfig) {
	if userConfig.Network != nil && *userConfig.Network != "" {
		options.Network = strings.ToLower(*userConfig.Network)
	}
	if userConfig.Workchain != nil {
		options.Workchain = *userConfig.Workchain
	}
	if userConfig.ZeroStateFileHash != nil {
		options.ZeroStateFileHash = strings.TrimSpace(*userConfig.ZeroStateFileHash)
	}
	if userConfig.KeyFile != nil && *userConfig.KeyFile != "" {
		options.KeyFile = *userConfig.KeyFile
	}
	if len(userConfig.ListenAddresses) > 0 {
		options.ListenAddresses = userConfig.ListenAddresses
	}
	if len(userConfig.BootstrapPeers) > 0 {
		options.BootstrapPeers = userConfig.BootstrapPeers
	}
	if userConfig.MinPeers != nil && *userConfig.MinPeers >= 0 {
		options.MinPeers = *userConfig.MinPeers
	}
	if userConfig.EnableDHT != nil {
		options.EnableDHT = *userConfig.EnableDHT
	}
	if userConfig.Backend != nil && *userConfig.Backend != "" {
		options.Backend = strings.ToLower(strings.TrimSpace(*userConfig.Backend))
	}
	if userConfig.GlobalConfig != nil {
		options.GlobalConfig = strings.TrimSpace(*userConfig.GlobalConfig)
	}
	if userConfig.ADNLListen != nil {
		options.ADNLListen = strings.TrimSpace(*userConfig.ADNLListen)
	}
	if userConfig.MaxPeers != nil && *userConfig.MaxPeers > 0 {
		options.MaxPeers = *userConfig.MaxPeers
	}
}

// GetOptions 获取完整的覆盖网络配置选项
func (c *Config) GetOptions() *OverlayOptions {
	return c.options
}

// IsCustomNetwork 非 mainnet/testnet 的网络
func (o *OverlayOptions) IsCustomNetwork() bool {
	return o.Network != NetworkMainnet && o.Network != NetworkTestnet
}

// Validate 校验后端与网络标识组合
func (o *OverlayOptions) Validate() error {
	if o.Backend != BackendTON && o.Backend != BackendLibp2p {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, o.Backend)
	}
	if o.IsCustomNetwork() && o.ZeroStateFileHash == "" {
		return fmt.Errorf("network %q: %w", o.Network, ErrZeroStateRequired)
	}
	if o.ZeroStateFileHash != "" {
		if _, err := o.ZeroStateHash(); err != nil {
			return err
		}
	}
	if o.Backend == BackendTON && o.IsCustomNetwork() && o.GlobalConfig == "" {
		return fmt.Errorf("network %q: %w", o.Network, ErrGlobalConfigRequired)
	}
	return nil
}

// GlobalConfigSource 全局配置来源，未显式配置时按网络取官方地址
func (o *OverlayOptions) GlobalConfigSource() string {
	if o.GlobalConfig != "" {
		return o.GlobalConfig
	}
	switch o.Network {
	case NetworkMainnet:
		return mainnetGlobalConfigURL
	case NetworkTestnet:
		return testnetGlobalConfigURL
	}
	return ""
}

// ZeroStateHash 解析显式配置的零状态文件哈希（hex 或 base64），未配置时返回 nil
func (o *OverlayOptions) ZeroStateHash() ([]byte, error) {
	raw := o.ZeroStateFileHash
	if raw == "" {
		return nil, nil
	}
	if b, err := hex.DecodeString(raw); err == nil && len(b) == 32 {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil && len(b) == 32 {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidZeroState, raw)
}

// TopicName 由网络与工作链推导出的订阅主题
//
// 自定义网络以零状态文件哈希区分，避免不同私链串流
func (o *OverlayOptions) TopicName() string {
	network := o.Network
	if o.IsCustomNetwork() {
		network = "custom-" + strings.ToLower(o.ZeroStateFileHash)
	}
	return fmt.Sprintf("/ton/%s/wc%d/externals/1.0.0", network, o.Workchain)
}
