package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/tonrelay/pkg/interfaces/relay"
	"github.com/weisyn/tonrelay/pkg/types"
)

// keyPrefix 去重键前缀，便于和同库中的其他数据区分
const keyPrefix = "tonrelay:seen:"

// redisClient Redis 客户端接口，便于测试替换
type redisClient interface {
	// SetNX 键不存在时写入并设置过期时间，返回是否写入
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	// Ping 测试连接
	Ping(ctx context.Context) error
	// Close 关闭连接
	Close() error
}

// goRedisClient go-redis 客户端实现
type goRedisClient struct {
	client *redis.Client
}

var _ redisClient = (*goRedisClient)(nil)

// RedisOptions Redis 连接参数
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// newGoRedisClient 创建并探测 go-redis 客户端
func newGoRedisClient(ctx context.Context, opts RedisOptions) (redisClient, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &goRedisClient{client: client}, nil
}

func (c *goRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, expiration).Result()
}

func (c *goRedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *goRedisClient) Close() error {
	return c.client.Close()
}

// RedisCache 基于 Redis 的共享去重缓存
//
// 多个中继实例连接同一个 Redis 时，同一条消息只会被其中一个实例判定为首次出现
type RedisCache struct {
	client redisClient
	clock  clock.Clock
	ttl    time.Duration
}

var _ relay.DedupCache = (*RedisCache)(nil)

// NewRedisCache 连接 Redis 并创建去重缓存
func NewRedisCache(ctx context.Context, opts RedisOptions, ttl time.Duration, clk clock.Clock) (*RedisCache, error) {
	client, err := newGoRedisClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	return newRedisCacheWithClient(client, ttl, clk), nil
}

func newRedisCacheWithClient(client redisClient, ttl time.Duration, clk clock.Clock) *RedisCache {
	return &RedisCache{client: client, clock: clk, ttl: ttl}
}

// SeenOrRecord 原子 SET NX PX，写入失败说明键已存在
func (c *RedisCache) SeenOrRecord(ctx context.Context, fp types.Fingerprint) (bool, error) {
	created, err := c.client.SetNX(ctx, keyPrefix+fp.String(), c.clock.Now().UnixNano(), c.ttl)
	if err != nil {
		return false, fmt.Errorf("redis SETNX: %w", err)
	}
	return !created, nil
}

// EvictExpired 过期由 Redis 负责，这里不做任何事
func (c *RedisCache) EvictExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// Len Redis 后端不维护本地计数
func (c *RedisCache) Len() int {
	return 0
}

// Close 关闭连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}
