package overlay

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xssnick/tonutils-go/adnl"
	"github.com/xssnick/tonutils-go/adnl/address"
	"github.com/xssnick/tonutils-go/adnl/dht"
	"github.com/xssnick/tonutils-go/adnl/keys"
	tonoverlay "github.com/xssnick/tonutils-go/adnl/overlay"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tl"

	overlayconfig "github.com/weisyn/tonrelay/internal/config/overlay"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
	iface "github.com/weisyn/tonrelay/pkg/interfaces/overlay"
)

const (
	// tonQueryTimeout 单次 DHT / overlay 查询超时
	tonQueryTimeout = 5 * time.Second

	// tonDiscoveryInterval 邻居数充足时的发现间隔
	tonDiscoveryInterval = 30 * time.Second

	// tonSeenTTL 普通广播去重窗口
	tonSeenTTL = 2 * time.Minute

	// tonSampleSize 回答 getRandomPeers 时返回的节点数
	tonSampleSize = 8
)

// ErrNoPeers 没有可用的覆盖网络邻居
var ErrNoPeers = errors.New("no overlay peers")

// overlayDHT DHT 客户端中覆盖网络用到的部分
type overlayDHT interface {
	FindOverlayNodes(ctx context.Context, overlayKey []byte, continuation ...*dht.Continuation) (*tonoverlay.NodesList, *dht.Continuation, error)
	FindAddresses(ctx context.Context, key []byte) (*address.List, ed25519.PublicKey, error)
	Close()
}

// overlayPeer ADNL 对端中覆盖网络用到的部分
type overlayPeer interface {
	SetCustomMessageHandler(handler func(msg *adnl.MessageCustom) error)
	SetQueryHandler(handler func(msg *adnl.MessageQuery) error)
	SetDisconnectHandler(handler func(addr string, key ed25519.PublicKey))
	SendCustomMessage(ctx context.Context, req tl.Serializable) error
	Query(ctx context.Context, req, result tl.Serializable) error
	Answer(ctx context.Context, queryID []byte, result tl.Serializable) error
	GetID() []byte
	Close()
}

// TONService TON 分片公共覆盖网络
//
// 📋 **流程**
//   - Start：加载身份 → 读取全局配置 → 计算覆盖网络 ID → 启动 ADNL 网关与 DHT → 后台发现邻居
//   - 发现：DHT 查找覆盖网络节点 → 查找其 ADNL 地址 → 连接并以 getRandomPeers 宣告自身
//   - 入站：校验 overlay.broadcast / overlay.broadcastFec 签名，取出 tonNode.externalMessageBroadcast
//   - Inject：签名广播发给全部邻居，至少一个邻居接受即成功
type TONService struct {
	opts   *overlayconfig.OverlayOptions
	logger log.Logger

	mu         sync.RWMutex
	started    bool
	key        ed25519.PrivateKey
	selfID     []byte
	overlayKey []byte
	overlayID  []byte
	self       *tonoverlay.Node
	gate       *adnl.Gateway
	dht        overlayDHT
	peers      map[string]overlayPeer
	known      map[string]tonoverlay.Node

	seenMu sync.Mutex
	seen   map[string]time.Time
	fec    *fecAssembler

	inbound chan []byte
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ iface.Overlay = (*TONService)(nil)

// NewTONService 创建服务，调用 Start 之后才会联网
func NewTONService(opts *overlayconfig.OverlayOptions, logger log.Logger) *TONService {
	buffer := opts.InboundBuffer
	if buffer <= 0 {
		buffer = 1
	}
	return &TONService{
		opts:    opts,
		logger:  logger,
		peers:   make(map[string]overlayPeer),
		known:   make(map[string]tonoverlay.Node),
		seen:    make(map[string]time.Time),
		fec:     newFECAssembler(time.Now),
		inbound: make(chan []byte, buffer),
	}
}

// Start 启动覆盖网络
func (s *TONService) Start() error {
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
	key, err := ADNLKey(priv)
	if err != nil {
		return err
	}

	cfg, err := loadGlobalConfig(s.opts.GlobalConfigSource())
	if err != nil {
		return err
	}
	zeroState, err := s.opts.ZeroStateHash()
	if err != nil {
		return err
	}
	if zeroState == nil {
		zeroState = cfg.Validator.ZeroState.FileHash
	}
	if err := s.setIdentity(key, zeroState); err != nil {
		return err
	}

	// DHT 客户端关闭时会一并关闭网关，因此使用独立的临时身份
	_, dhtKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("生成 DHT 身份失败: %w", err)
	}
	dhtGate := adnl.NewGateway(dhtKey)
	if err := dhtGate.StartClient(); err != nil {
		return fmt.Errorf("启动 DHT 网关失败: %w", err)
	}
	dhtClient, err := dht.NewClientFromConfig(dhtGate, cfg)
	if err != nil {
		_ = dhtGate.Close()
		return fmt.Errorf("创建 DHT 客户端失败: %w", err)
	}

	gate := adnl.NewGateway(key)
	if s.opts.ADNLListen != "" {
		err = gate.StartServer(s.opts.ADNLListen)
	} else {
		err = gate.StartClient()
	}
	if err != nil {
		dhtClient.Close()
		return fmt.Errorf("启动 ADNL 网关失败: %w", err)
	}
	gate.SetConnectionHandler(func(p adnl.Peer) error {
		s.attach(p)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.gate = gate
	s.dht = dhtClient
	s.cancel = cancel
	s.started = true

	s.wg.Add(1)
	go s.discoverLoop(ctx)

	s.logger.Infof("TON 覆盖网络已启动: adnl=%s overlay=%s workchain=%d",
		hex.EncodeToString(s.selfID), hex.EncodeToString(s.overlayID), s.opts.Workchain)
	return nil
}

// setIdentity 计算覆盖网络标识与本节点的签名节点记录，调用方持有 mu
func (s *TONService) setIdentity(key ed25519.PrivateKey, zeroState []byte) error {
	overlayKey, err := ShardOverlayKey(s.opts.Workchain, zeroState)
	if err != nil {
		return err
	}
	overlayID, err := ShardOverlayID(overlayKey)
	if err != nil {
		return err
	}
	self, err := tonoverlay.NewNode(overlayKey, key)
	if err != nil {
		return fmt.Errorf("签名覆盖网络节点失败: %w", err)
	}
	selfID, err := ADNLID(key)
	if err != nil {
		return err
	}
	s.key, s.selfID, s.overlayKey, s.overlayID, s.self = key, selfID, overlayKey, overlayID, self
	return nil
}

// Stop 停止覆盖网络并关闭入站通道，可重复调用
func (s *TONService) Stop() error {
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
	peers := make([]overlayPeer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.peers = make(map[string]overlayPeer)
	gate, dhtClient := s.gate, s.dht
	s.gate, s.dht = nil, nil
	s.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
	var errs []error
	if dhtClient != nil {
		dhtClient.Close()
	}
	if gate != nil {
		if err := gate.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close adnl gateway: %w", err))
		}
	}

	// 入站回调与关闭互斥，关闭之后的广播直接丢弃
	s.seenMu.Lock()
	close(s.inbound)
	s.inbound = nil
	s.seenMu.Unlock()

	s.logger.Info("TON 覆盖网络已停止")
	return errors.Join(errs...)
}

// Inject 把外部消息作为签名广播发给全部邻居
func (s *TONService) Inject(ctx context.Context, payload []byte) error {
	s.mu.RLock()
	started, key, overlayID := s.started, s.key, s.overlayID
	peers := make([]overlayPeer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	if len(peers) == 0 {
		return ErrNoPeers
	}

	data, err := externalBroadcastData(payload)
	if err != nil {
		return fmt.Errorf("serialize external broadcast: %w", err)
	}
	msgs, err := buildBroadcasts(key, data, time.Now())
	if err != nil {
		return fmt.Errorf("build broadcast: %w", err)
	}

	delivered := 0
	var lastErr error
	for _, p := range peers {
		ok := true
		for _, m := range msgs {
			if err := p.SendCustomMessage(ctx, tonoverlay.WrapMessage(overlayID, m)); err != nil {
				lastErr, ok = err, false
				break
			}
		}
		if ok {
			delivered++
		}
	}
	if delivered == 0 {
		return fmt.Errorf("broadcast to %d peers failed: %w", len(peers), lastErr)
	}
	s.logger.Debugf("外部消息已广播给 %d/%d 个邻居", delivered, len(peers))
	return nil
}

// PeerCount 已连接的覆盖网络邻居数
func (s *TONService) PeerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// Messages 入站消息流
func (s *TONService) Messages() <-chan []byte {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	return s.inbound
}

// WaitForPeers 按固定间隔轮询直到邻居数达到 min
func (s *TONService) WaitForPeers(ctx context.Context, min int) error {
	return waitForPeers(ctx, s, min, s.opts.PeerPollInterval, s.logger)
}

// ==================== 邻居管理 ====================

// attach 为新连接挂载覆盖网络处理器，重复调用为空操作
func (s *TONService) attach(p overlayPeer) {
	id := hex.EncodeToString(p.GetID())

	s.mu.Lock()
	if !s.started || s.peers[id] != nil || id == hex.EncodeToString(s.selfID) {
		s.mu.Unlock()
		return
	}
	s.peers[id] = p
	s.mu.Unlock()

	p.SetCustomMessageHandler(func(msg *adnl.MessageCustom) error {
		return s.onMessage(msg.Data)
	})
	p.SetQueryHandler(func(msg *adnl.MessageQuery) error {
		return s.onQuery(p, msg)
	})
	p.SetDisconnectHandler(func(string, ed25519.PublicKey) {
		s.detach(id)
	})
	s.logger.Debugf("覆盖网络邻居已连接: %s", id)
}

func (s *TONService) detach(id string) {
	s.mu.Lock()
	_, ok := s.peers[id]
	delete(s.peers, id)
	s.mu.Unlock()
	if ok {
		s.logger.Debugf("覆盖网络邻居已断开: %s", id)
	}
}

// learn 记录签名有效的覆盖网络节点，供后续连接
func (s *TONService) learn(nodes []tonoverlay.Node) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, n := range nodes {
		if !bytes.Equal(n.Overlay, s.self.Overlay) || n.CheckSignature() != nil {
			continue
		}
		id, err := tl.Hash(n.ID)
		if err != nil || bytes.Equal(id, s.selfID) {
			continue
		}
		key := hex.EncodeToString(id)
		if _, ok := s.known[key]; !ok {
			added++
		}
		s.known[key] = n
	}
	return added
}

// candidates 已知但尚未连接的节点
func (s *TONService) candidates(limit int) []tonoverlay.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tonoverlay.Node, 0, limit)
	for id, n := range s.known {
		if len(out) >= limit {
			break
		}
		if _, connected := s.peers[id]; !connected {
			out = append(out, n)
		}
	}
	return out
}

// sample 回答 getRandomPeers：本节点加上若干已知节点
func (s *TONService) sample() tonoverlay.NodesList {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := []tonoverlay.Node{*s.self}
	for _, n := range s.known {
		if len(list) >= tonSampleSize {
			break
		}
		list = append(list, n)
	}
	return tonoverlay.NodesList{List: list}
}

// discoverLoop 邻居不足时持续通过 DHT 与邻居交换发现新节点，失败按指数退避
func (s *TONService) discoverLoop(ctx context.Context) {
	defer s.wg.Done()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = tonDiscoveryInterval
	policy.MaxElapsedTime = 0

	for {
		wait := tonDiscoveryInterval
		if s.PeerCount() < s.opts.MaxPeers {
			if err := s.discover(ctx); err != nil {
				wait = policy.NextBackOff()
				s.logger.Warnf("覆盖网络发现失败，%s 后重试: %v", wait, err)
			} else {
				policy.Reset()
				if s.PeerCount() < s.opts.MaxPeers {
					wait = policy.InitialInterval
				}
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *TONService) discover(ctx context.Context) error {
	s.mu.RLock()
	dhtClient, overlayKey := s.dht, s.overlayKey
	s.mu.RUnlock()

	qctx, cancel := context.WithTimeout(ctx, tonQueryTimeout)
	list, _, err := dhtClient.FindOverlayNodes(qctx, overlayKey)
	cancel()
	if err != nil && len(s.candidates(1)) == 0 {
		return fmt.Errorf("find overlay nodes: %w", err)
	}
	if list != nil {
		s.learn(list.List)
	}

	need := s.opts.MaxPeers - s.PeerCount()
	connected := 0
	for _, n := range s.candidates(need) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.connect(ctx, n); err != nil {
			s.logger.Debugf("连接覆盖网络节点失败: %v", err)
			s.forget(n)
			continue
		}
		connected++
	}
	if connected > 0 {
		s.logger.Infof("覆盖网络邻居: %d (+%d)", s.PeerCount(), connected)
	}
	return nil
}

// connect 解析节点地址、建立 ADNL 连接并宣告自身
func (s *TONService) connect(ctx context.Context, n tonoverlay.Node) error {
	pub, ok := n.ID.(keys.PublicKeyED25519)
	if !ok {
		return fmt.Errorf("unsupported node key")
	}
	id, err := tl.Hash(n.ID)
	if err != nil {
		return err
	}

	s.mu.RLock()
	dhtClient, gate, overlayID := s.dht, s.gate, s.overlayID
	s.mu.RUnlock()
	if gate == nil {
		return ErrNotStarted
	}

	qctx, cancel := context.WithTimeout(ctx, tonQueryTimeout)
	defer cancel()
	addrs, _, err := dhtClient.FindAddresses(qctx, id)
	if err != nil {
		return fmt.Errorf("find address: %w", err)
	}
	addr, err := firstUDPAddress(addrs)
	if err != nil {
		return err
	}

	p, err := gate.RegisterClient(addr, pub.Key)
	if err != nil {
		return fmt.Errorf("register %s: %w", addr, err)
	}
	s.attach(p)

	var res tonoverlay.NodesList
	announce := tonoverlay.GetRandomPeers{List: s.sample()}
	if err := p.Query(qctx, tonoverlay.WrapQuery(overlayID, announce), &res); err != nil {
		p.Close()
		return fmt.Errorf("announce to %s: %w", addr, err)
	}
	s.learn(res.List)
	return nil
}

func (s *TONService) forget(n tonoverlay.Node) {
	id, err := tl.Hash(n.ID)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.known, hex.EncodeToString(id))
	s.mu.Unlock()
}

// ==================== 入站 ====================

// onQuery 只回答本覆盖网络的 getRandomPeers
func (s *TONService) onQuery(p overlayPeer, msg *adnl.MessageQuery) error {
	obj, overlayID := tonoverlay.UnwrapQuery(msg.Data)
	if overlayID == nil || !bytes.Equal(overlayID, s.currentOverlayID()) {
		return nil
	}
	q, ok := obj.(tonoverlay.GetRandomPeers)
	if !ok {
		return nil
	}
	s.learn(q.List.List)

	ctx, cancel := context.WithTimeout(context.Background(), tonQueryTimeout)
	defer cancel()
	return p.Answer(ctx, msg.ID, s.sample())
}

// onMessage 处理 overlay.message 包装的广播
func (s *TONService) onMessage(data tl.Serializable) error {
	obj, overlayID := tonoverlay.UnwrapMessage(data)
	if overlayID == nil || !bytes.Equal(overlayID, s.currentOverlayID()) {
		return nil
	}

	switch b := obj.(type) {
	case tonoverlay.Broadcast:
		return s.onSimpleBroadcast(&b)
	case tonoverlay.BroadcastFEC:
		return s.onFECBroadcast(&b)
	}
	return nil
}

func (s *TONService) onSimpleBroadcast(b *tonoverlay.Broadcast) error {
	hash, err := verifySimpleBroadcast(b)
	if err != nil {
		return err
	}
	if s.fromSelf(b.Source) || !s.firstSight(hash) {
		return nil
	}
	s.deliver(b.Data)
	return nil
}

func (s *TONService) onFECBroadcast(b *tonoverlay.BroadcastFEC) error {
	if s.fromSelf(b.Source) {
		return nil
	}
	data, complete, err := s.fec.add(b)
	if err != nil || !complete {
		return err
	}
	s.deliver(data)
	return nil
}

// deliver 非外部消息的广播（区块等）被忽略；入站通道满时丢弃并告警，不阻塞 ADNL 处理协程
func (s *TONService) deliver(data []byte) {
	payload, ok := externalFromBroadcastData(data)
	if !ok || len(payload) == 0 {
		return
	}

	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	if s.inbound == nil {
		return
	}
	select {
	case s.inbound <- payload:
	default:
		s.logger.Warnf("入站通道已满(%d)，丢弃外部消息", cap(s.inbound))
	}
}

// firstSight 普通广播的短期去重，多个邻居转发的同一广播只交付一次
func (s *TONService) firstSight(hash []byte) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()

	now := time.Now()
	key := string(hash)
	if at, ok := s.seen[key]; ok && now.Sub(at) < tonSeenTTL {
		return false
	}
	if len(s.seen) >= maxFECStreams {
		for k, at := range s.seen {
			if now.Sub(at) >= tonSeenTTL {
				delete(s.seen, k)
			}
		}
	}
	s.seen[key] = now
	return true
}

func (s *TONService) fromSelf(source any) bool {
	src, ok := source.(keys.PublicKeyED25519)
	if !ok {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != nil && bytes.Equal(src.Key, s.key.Public().(ed25519.PublicKey))
}

func (s *TONService) currentOverlayID() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlayID
}

// ==================== 辅助 ====================

// loadGlobalConfig 按来源是 URL 还是文件路径读取全局配置
func loadGlobalConfig(source string) (*liteclient.GlobalConfig, error) {
	if source == "" {
		return nil, overlayconfig.ErrGlobalConfigRequired
	}
	var (
		cfg *liteclient.GlobalConfig
		err error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		cfg, err = liteclient.GetConfigFromUrl(ctx, source)
	} else {
		cfg, err = liteclient.GetConfigFromFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("读取 TON 全局配置 %s 失败: %w", source, err)
	}
	return cfg, nil
}

func firstUDPAddress(list *address.List) (string, error) {
	if list == nil {
		return "", fmt.Errorf("empty address list")
	}
	for _, a := range list.Addresses {
		if a != nil && a.IP != nil && !a.IP.IsUnspecified() {
			return fmt.Sprintf("%s:%d", a.IP.String(), a.Port), nil
		}
	}
	return "", fmt.Errorf("no usable udp address")
}
