// Package pipeline 实现入站外部消息处理管线
//
// 🔄 **处理步骤**
//  1. 解码：提取源/目标地址哈希，失败则丢弃并记录
//  2. 去重：计算指纹并原子地检查 + 记录，TTL 内的重复消息被丢弃
//  3. 路由：交给 Router 广播
//  4. 计数：每处理 ProgressEvery 条输出一次进度日志
//
// Run 串行消费覆盖网络的入站通道，一条消息路由完成后才处理下一条，
// 同一订阅者收到的消息顺序与入站顺序一致。
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	sysclock "github.com/weisyn/tonrelay/internal/core/infrastructure/clock"
	"github.com/weisyn/tonrelay/internal/core/relay/metrics"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/tonrelay/pkg/interfaces/relay"
	"github.com/weisyn/tonrelay/pkg/types"
)

// defaultEvictionInterval 顺带清理的最小间隔
const defaultEvictionInterval = time.Second

// Outcome 单条消息的处理结果
type Outcome int

const (
	// OutcomeRouted 已交给路由
	OutcomeRouted Outcome = iota
	// OutcomeDuplicate TTL 内重复，已丢弃
	OutcomeDuplicate
	// OutcomeMalformed 无法解码，已丢弃
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRouted:
		return "routed"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeMalformed:
		return "malformed"
	}
	return "unknown"
}

// Options 管线行为开关
type Options struct {
	// EnforceDedup 为 false 时重复消息仍会被路由，只更新指标
	EnforceDedup bool
	// InlineEviction 消息路由后顺带清理过期指纹
	//
	// 内存后端的清理要遍历整个缓存，因此两次清理至少间隔 EvictionInterval
	InlineEviction bool
	// EvictionInterval 顺带清理的最小间隔，0 表示 1s
	EvictionInterval time.Duration
	// Clock 为 nil 时使用系统时钟
	Clock clock.Clock
	// ProgressEvery 进度日志间隔，0 表示不输出
	ProgressEvery uint64
}

// Pipeline 入站消息管线
type Pipeline struct {
	codec   relay.Codec
	dedup   relay.DedupCache
	router  relay.Router
	logger  log.Logger
	metrics *metrics.Metrics
	opts    Options

	processed atomic.Uint64
	// lastEviction 上次顺带清理的时间（UnixNano），0 表示尚未清理
	lastEviction atomic.Int64
}

// New 创建管线
func New(codec relay.Codec, dedup relay.DedupCache, router relay.Router, logger log.Logger, m *metrics.Metrics, opts Options) *Pipeline {
	if opts.EvictionInterval <= 0 {
		opts.EvictionInterval = defaultEvictionInterval
	}
	if opts.Clock == nil {
		opts.Clock = sysclock.NewSystemClock()
	}
	return &Pipeline{
		codec:   codec,
		dedup:   dedup,
		router:  router,
		logger:  logger,
		metrics: m,
		opts:    opts,
	}
}

// Run 消费入站通道直到通道关闭或 ctx 取消
func (p *Pipeline) Run(ctx context.Context, inbound <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-inbound:
			if !ok {
				p.logger.Info("入站消息流已关闭，管线退出")
				return nil
			}
			p.OnInbound(ctx, raw)
		}
	}
}

// OnInbound 处理一条入站消息
func (p *Pipeline) OnInbound(ctx context.Context, raw []byte) Outcome {
	p.metrics.Received.Inc()
	defer p.advance()

	msg, err := p.codec.Parse(raw)
	if err != nil {
		p.metrics.ParseFailures.Inc()
		p.logger.Warnf("丢弃无法解码的外部消息 (%d 字节): %v", len(raw), err)
		return OutcomeMalformed
	}

	dup, err := p.dedup.SeenOrRecord(ctx, types.FingerprintOf(raw))
	if err != nil {
		// 去重后端不可用时放行，宁可重复投递也不丢消息
		p.metrics.DedupErrors.Inc()
		p.logger.Warnf("去重检查失败，按首次出现处理: %v", err)
		dup = false
	}
	if dup {
		p.metrics.Duplicates.Inc()
		if p.opts.EnforceDedup {
			return OutcomeDuplicate
		}
	}

	p.router.Route(msg)
	p.metrics.Routed.Inc()

	if p.opts.InlineEviction && p.evictionDue() {
		if removed, err := p.dedup.EvictExpired(ctx); err == nil && removed > 0 {
			p.metrics.Evictions.Add(float64(removed))
		}
	}
	return OutcomeRouted
}

// evictionDue 距上次清理已满 EvictionInterval 时占用本次清理
func (p *Pipeline) evictionDue() bool {
	now := p.opts.Clock.Now().UnixNano()
	last := p.lastEviction.Load()
	if last != 0 && now-last < int64(p.opts.EvictionInterval) {
		return false
	}
	return p.lastEviction.CompareAndSwap(last, now)
}

// Processed 已处理的消息总数（含被丢弃的）
func (p *Pipeline) Processed() uint64 {
	return p.processed.Load()
}

func (p *Pipeline) advance() {
	n := p.processed.Add(1)
	if p.opts.ProgressEvery > 0 && n%p.opts.ProgressEvery == 0 {
		p.logger.Infof("已收到 %d 条外部消息", n)
	}
}
