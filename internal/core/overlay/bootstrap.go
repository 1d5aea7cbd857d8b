package overlay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	lphost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
)

// bootstrapMaxElapsed 单个引导节点的最长重试时间
const bootstrapMaxElapsed = 2 * time.Minute

// parseBootstrapPeers 解析 /ip4/.../tcp/.../p2p/<id> 形式的引导节点地址
// 同一节点的多个地址会被合并
func parseBootstrapPeers(addrs []string) ([]peer.AddrInfo, error) {
	byID := make(map[peer.ID]*peer.AddrInfo)
	var order []peer.ID
	for _, s := range addrs {
		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("解析引导节点地址 %q 失败: %w", s, err)
		}
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			return nil, fmt.Errorf("引导节点地址 %q 缺少 /p2p 部分: %w", s, err)
		}
		if existing, ok := byID[info.ID]; ok {
			existing.Addrs = append(existing.Addrs, info.Addrs...)
			continue
		}
		byID[info.ID] = info
		order = append(order, info.ID)
	}

	out := make([]peer.AddrInfo, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// connectBootstrap 并发连接所有引导节点，失败时指数退避重试
// 返回成功连接的数量
func connectBootstrap(ctx context.Context, h lphost.Host, peers []peer.AddrInfo, logger log.Logger) int {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		connected int
	)
	for _, info := range peers {
		if info.ID == h.ID() {
			continue
		}
		wg.Add(1)
		go func(info peer.AddrInfo) {
			defer wg.Done()

			policy := backoff.NewExponentialBackOff()
			policy.InitialInterval = 500 * time.Millisecond
			policy.MaxElapsedTime = bootstrapMaxElapsed

			err := backoff.RetryNotify(func() error {
				return h.Connect(ctx, info)
			}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
				logger.Debugf("连接引导节点 %s 失败，%s 后重试: %v", info.ID, wait, err)
			})
			if err != nil {
				logger.Warnf("放弃连接引导节点 %s: %v", info.ID, err)
				return
			}
			logger.Infof("已连接引导节点 %s", info.ID)
			mu.Lock()
			connected++
			mu.Unlock()
		}(info)
	}
	wg.Wait()
	return connected
}
