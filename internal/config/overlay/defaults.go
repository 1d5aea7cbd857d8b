package overlay

import "time"

// 覆盖网络默认值
const (
	// defaultNetwork 主网
	defaultNetwork = NetworkMainnet

	// defaultWorkchain 基础工作链
	defaultWorkchain int32 = 0

	// defaultBackend 直接加入 TON 分片公共覆盖网络
	defaultBackend = BackendTON

	// defaultMaxPeers 覆盖网络邻居上限
	defaultMaxPeers = 30

	// 官方全局配置
	mainnetGlobalConfigURL = "https://ton.org/global.config.json"
	testnetGlobalConfigURL = "https://ton.org/testnet-global.config.json"

	// defaultKeyFile 节点身份私钥文件
	defaultKeyFile = "key.txt"

	// defaultMinPeers 不等待对等节点即开始服务
	defaultMinPeers = 0

	// defaultEnableDHT 启用 Kademlia 发现
	defaultEnableDHT = true

	// defaultPeerPollInterval 等待对等节点时的轮询间隔
	defaultPeerPollInterval = 2 * time.Second

	// defaultInboundBuffer 入站消息通道容量
	defaultInboundBuffer = 1024
)

// defaultListenAddresses 默认监听地址，端口由系统分配
var defaultListenAddresses = []string{
	"/ip4/0.0.0.0/tcp/0",
	"/ip4/0.0.0.0/udp/0/quic-v1",
}
