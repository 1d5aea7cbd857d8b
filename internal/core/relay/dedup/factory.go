package dedup

import (
	"context"
	"fmt"

	relayconfig "github.com/weisyn/tonrelay/internal/config/relay"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/tonrelay/pkg/interfaces/relay"
)

// New 按配置创建去重缓存
func New(ctx context.Context, options *relayconfig.RelayOptions, clk clock.Clock, logger log.Logger) (relay.DedupCache, error) {
	switch options.DedupBackend {
	case relayconfig.BackendMemory, "":
		return NewMemoryCache(options.DedupTTL, clk, logger)
	case relayconfig.BackendRedis:
		cache, err := NewRedisCache(ctx, RedisOptions{
			Addr:     options.RedisAddr,
			Password: options.RedisPassword,
			DB:       options.RedisDB,
		}, options.DedupTTL, clk)
		if err != nil {
			return nil, err
		}
		logger.Infof("去重缓存使用 Redis 后端: %s", options.RedisAddr)
		return cache, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, options.DedupBackend)
	}
}
