// Package overlay 实现上游点对点覆盖网络
//
// 两种后端：
//   - ton（默认）：加入 TON 工作链的分片公共覆盖网络（ADNL + DHT），
//     收发 tonNode.externalMessageBroadcast，见 TONService
//   - libp2p：私有 GossipSub 主题，每个 (网络, 工作链) 对应一个主题，
//     载荷就是外部消息的原始 BOC，只能与同样运行本中继的节点互通，见 Service
//
// 🔄 **libp2p 生命周期**
//   - Start：加载身份 → 创建 Host → (可选) DHT 发现 → GossipSub → 加入主题并订阅 → 连接引导节点
//   - Stop：取消后台循环与 GossipSub → 关闭 DHT/Host → 关闭入站通道
package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	lphost "github.com/libp2p/go-libp2p/core/host"

	overlayconfig "github.com/weisyn/tonrelay/internal/config/overlay"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
	iface "github.com/weisyn/tonrelay/pkg/interfaces/overlay"
)

// ErrNotStarted 覆盖网络尚未启动或已停止
var ErrNotStarted = errors.New("overlay not started")

// Service 覆盖网络服务
type Service struct {
	opts   *overlayconfig.OverlayOptions
	logger log.Logger

	mu      sync.RWMutex
	host    lphost.Host
	kdht    *dht.IpfsDHT
	ps      *pubsub.PubSub
	topic   *pubsub.Topic
	started bool

	inbound chan []byte
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ iface.Overlay = (*Service)(nil)

// NewService 创建服务，调用 Start 之后才会联网
func NewService(opts *overlayconfig.OverlayOptions, logger log.Logger) *Service {
	buffer := opts.InboundBuffer
	if buffer <= 0 {
		buffer = 1
	}
	return &Service{
		opts:    opts,
		logger:  logger,
		inbound: make(chan []byte, buffer),
	}
}

// Start 启动覆盖网络
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	priv, created, err := LoadOrCreateIdentity(s.opts.KeyFile)
	if err != nil {
		return err
	}
	if created {
		s.logger.Infof("已生成新的节点身份密钥: %s", s.opts.KeyFile)
	}

	bootstrap, err := parseBootstrapPeers(s.opts.BootstrapPeers)
	if err != nil {
		return err
	}

	h, err := newHost(s.opts, priv)
	if err != nil {
		return fmt.Errorf("创建 libp2p Host 失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cleanup := func() {
		cancel()
		if s.kdht != nil {
			_ = s.kdht.Close()
			s.kdht = nil
		}
		_ = h.Close()
	}

	topicName := s.opts.TopicName()
	psOpts := []pubsub.Option{
		pubsub.WithPeerExchange(true),                          // 启用peer交换
		pubsub.WithFloodPublish(true),                          // 启用洪泛发布，支持小网络
		pubsub.WithMessageSignaturePolicy(pubsub.StrictNoSign), // 外部消息自带签名，传输层无需再签
	}
	if s.opts.EnableDHT {
		kdht, disc, err := startDiscovery(ctx, h, topicName, bootstrap, s.logger)
		if err != nil {
			cleanup()
			return err
		}
		s.kdht = kdht
		psOpts = append(psOpts, pubsub.WithDiscovery(disc))
	}

	ps, err := pubsub.NewGossipSub(ctx, h, psOpts...)
	if err != nil {
		cleanup()
		return fmt.Errorf("创建 GossipSub 失败: %w", err)
	}
	topic, err := ps.Join(topicName)
	if err != nil {
		cleanup()
		return fmt.Errorf("加入主题 %s 失败: %w", topicName, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		_ = topic.Close()
		cleanup()
		return fmt.Errorf("订阅主题 %s 失败: %w", topicName, err)
	}

	s.host, s.ps, s.topic = h, ps, topic
	s.cancel = cancel
	s.started = true

	s.wg.Add(1)
	go s.readLoop(ctx, sub)

	if len(bootstrap) > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			n := connectBootstrap(ctx, h, bootstrap, s.logger)
			s.logger.Infof("引导完成: %d/%d 个节点已连接", n, len(bootstrap))
		}()
	}

	s.logger.Infof("覆盖网络已启动: peer=%s topic=%s addrs=%v", h.ID(), topicName, h.Addrs())
	return nil
}

// Stop 停止覆盖网络并关闭入站通道，可重复调用
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	// GossipSub 随 ctx 一起退出，主题无需单独关闭
	var errs []error
	if s.kdht != nil {
		if err := s.kdht.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dht: %w", err))
		}
	}
	if err := s.host.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close host: %w", err))
	}
	close(s.inbound)
	s.topic, s.ps, s.kdht = nil, nil, nil

	s.logger.Info("覆盖网络已停止")
	return errors.Join(errs...)
}

// Inject 把载荷发布到主题
func (s *Service) Inject(ctx context.Context, payload []byte) error {
	s.mu.RLock()
	topic := s.topic
	s.mu.RUnlock()
	if topic == nil {
		return ErrNotStarted
	}
	if err := topic.Publish(ctx, payload); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PeerCount 主题内的对等节点数
func (s *Service) PeerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.topic == nil {
		return 0
	}
	return len(s.topic.ListPeers())
}

// Messages 入站消息流
func (s *Service) Messages() <-chan []byte {
	return s.inbound
}

// WaitForPeers 按固定间隔轮询直到对等节点数达到 min
func (s *Service) WaitForPeers(ctx context.Context, min int) error {
	return waitForPeers(ctx, s, min, s.opts.PeerPollInterval, s.logger)
}

// waitForPeers 两种覆盖网络实现共用的轮询等待
func waitForPeers(ctx context.Context, o iface.Overlay, min int, interval time.Duration, logger log.Logger) error {
	if min <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n := o.PeerCount()
		if n >= min {
			logger.Infof("对等节点数 %d 已达到 %d", n, min)
			return nil
		}
		logger.Infof("等待对等节点: %d/%d", n, min)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Host 底层 libp2p Host（未启动时为 nil）
func (s *Service) Host() lphost.Host {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.host
}

// readLoop 把订阅到的消息转发到入站通道
//
// 订阅意外结束时按指数退避重新订阅；本节点自己发布的消息不回流
func (s *Service) readLoop(ctx context.Context, sub *pubsub.Subscription) {
	defer s.wg.Done()
	defer func() {
		if sub != nil {
			sub.Cancel()
		}
	}()

	self := s.host.ID()
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0

	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			sub.Cancel()
			sub = nil
			for sub == nil {
				wait := policy.NextBackOff()
				s.logger.Warnf("订阅中断，%s 后重新订阅: %v", wait, err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
				sub, err = s.topic.Subscribe()
			}
			continue
		}
		policy.Reset()

		if msg.ReceivedFrom == self {
			continue
		}
		select {
		case s.inbound <- msg.GetData():
		case <-ctx.Done():
			return
		}
	}
}
