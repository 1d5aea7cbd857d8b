// Package overlay 定义上游覆盖网络的公共接口
package overlay

import "context"

// Overlay 上游点对点覆盖网络
type Overlay interface {
	// Inject 把外部消息注入覆盖网络
	Inject(ctx context.Context, payload []byte) error

	// PeerCount 当前覆盖网络中的对等节点数
	PeerCount() int

	// Messages 入站外部消息流；覆盖网络停止后关闭
	Messages() <-chan []byte

	// WaitForPeers 阻塞直到对等节点数达到 min 或 ctx 取消
	WaitForPeers(ctx context.Context, min int) error
}
