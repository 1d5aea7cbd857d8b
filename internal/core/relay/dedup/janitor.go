package dedup

import (
	"context"
	"errors"
	"time"

	"github.com/weisyn/tonrelay/internal/core/relay/metrics"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/tonrelay/pkg/interfaces/relay"
)

// Janitor 周期性清理过期指纹
type Janitor struct {
	cache    relay.DedupCache
	interval time.Duration
	logger   log.Logger
	metrics  *metrics.Metrics
}

// NewJanitor 创建清理器，interval 通常等于 TTL
func NewJanitor(cache relay.DedupCache, interval time.Duration, logger log.Logger, m *metrics.Metrics) *Janitor {
	return &Janitor{cache: cache, interval: interval, logger: logger, metrics: m}
}

// Run 阻塞运行直到 ctx 取消
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep 执行一次清理，错误只记录日志
func (j *Janitor) Sweep(ctx context.Context) int {
	removed, err := j.cache.EvictExpired(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, ErrClosed) {
			j.logger.Warnf("清理过期指纹失败: %v", err)
		}
		return 0
	}
	if removed > 0 {
		j.metrics.Evictions.Add(float64(removed))
		j.logger.Debugf("清理过期指纹 %d 条，剩余 %d 条", removed, j.cache.Len())
	}
	return removed
}
