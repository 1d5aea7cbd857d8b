package overlay

import (
	"context"
	"fmt"

	ds "github.com/ipfs/go-datastore"
	dsync "github.com/ipfs/go-datastore/sync"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/discovery"
	lphost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	routdisc "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"

	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
)

// dhtProtocolPrefix 中继专属的 DHT 协议前缀，只与其他中继节点交互
const dhtProtocolPrefix = "/tonrelay"

// startDiscovery 创建 Kademlia DHT 并在 namespace 下持续广播自己
//
// 返回的 Discovery 交给 GossipSub，用于寻找同一主题下的对等节点
func startDiscovery(ctx context.Context, h lphost.Host, namespace string, bootstrap []peer.AddrInfo, logger log.Logger) (*dht.IpfsDHT, discovery.Discovery, error) {
	kdht, err := dht.New(ctx, h,
		dht.Mode(dht.ModeAutoServer),
		dht.Datastore(dsync.MutexWrap(ds.NewMapDatastore())),
		dht.ProtocolPrefix(dhtProtocolPrefix),
		dht.BootstrapPeers(bootstrap...),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create dht: %w", err)
	}
	if err := kdht.Bootstrap(ctx); err != nil {
		_ = kdht.Close()
		return nil, nil, fmt.Errorf("bootstrap dht: %w", err)
	}

	rd := routdisc.NewRoutingDiscovery(kdht)
	// Advertise 在后台持续广播，直到 ctx 取消
	dutil.Advertise(ctx, rd, namespace)
	logger.Infof("DHT 已启动，广播命名空间 %s", namespace)

	return kdht, rd, nil
}
