// Package relay 定义外部消息中继核心的公共接口
//
// 🔗 **组件关系**
// - Registry：订阅者注册表（谁想要哪些消息）
// - DedupCache：去重缓存（时间窗口内抑制重复投递）
// - Router：广播路由（一条消息 → 零个或多个订阅者）
// - Codec：外部消息解码（仅提取源/目标地址哈希）
package relay

import (
	"context"

	"github.com/weisyn/tonrelay/pkg/types"
)

// Subscriber 一个在线订阅连接
// Send 必须是非阻塞的：实现方把帧放入自己的发送队列；连接关闭后返回错误而不是 panic
type Subscriber interface {
	ID() types.HandleID
	Send(frame []byte) error
}

// Registry 监听注册表
type Registry interface {
	// Subscribe 为订阅者添加过滤器（集合语义，重复订阅不会重复投递）
	Subscribe(filter types.Filter, sub Subscriber)

	// Unsubscribe 撤销订阅者的单个过滤器
	Unsubscribe(filter types.Filter, id types.HandleID)

	// UnsubscribeAll 从所有映射和通配集合中移除订阅者，可重复调用
	UnsubscribeAll(id types.HandleID)

	// Match 返回通配订阅者 ∪ 源地址订阅者 ∪ 目标地址订阅者，每个订阅者最多出现一次
	Match(source, destination *types.AddressHash) []Subscriber
}

// DedupCache 去重缓存
type DedupCache interface {
	// SeenOrRecord 原子地检查指纹是否已记录（且未过期），未记录则以当前时间记录
	// 返回 true 表示重复
	SeenOrRecord(ctx context.Context, fp types.Fingerprint) (bool, error)

	// EvictExpired 删除所有超过 TTL 的条目，返回删除数量
	EvictExpired(ctx context.Context) (int, error)

	// Len 当前条目数（近似值，仅用于观测）
	Len() int

	// Close 释放资源
	Close() error
}

// Router 广播路由
type Router interface {
	// Route 把消息投递给所有匹配的订阅者，返回成功入队的数量
	Route(msg *types.ExternalMessage) int
}

// Codec 外部消息解码器
type Codec interface {
	// Parse 从原始字节中提取源/目标地址哈希，格式错误时返回错误
	Parse(raw []byte) (*types.ExternalMessage, error)

	// ParseAddress 解析客户端提交的地址字符串（用户友好格式或原始格式）
	ParseAddress(s string) (types.RawAddress, error)
}
