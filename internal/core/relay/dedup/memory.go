// Package dedup 实现外部消息去重缓存
//
// 📦 **后端**
// - memory：进程内 BigCache，值为首次出现时间（unix 纳秒，8 字节大端）
// - redis：多个中继实例共享的 SET NX PX，过期由 Redis 负责
//
// TTL 从指纹首次记录的时间开始计算，之后的重复出现不会续期。
package dedup

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/tonrelay/pkg/interfaces/relay"
	"github.com/weisyn/tonrelay/pkg/types"
)

// MemoryCache 基于 BigCache 的去重缓存
//
// BigCache 本身并发安全，但"检查 + 插入"必须原子完成，因此外层再加一把互斥锁。
type MemoryCache struct {
	mu     sync.Mutex
	cache  *bigcache.BigCache
	clock  clock.Clock
	ttl    time.Duration
	logger log.Logger
	closed bool
}

var _ relay.DedupCache = (*MemoryCache)(nil)

// NewMemoryCache 创建进程内去重缓存
func NewMemoryCache(ttl time.Duration, clk clock.Clock, logger log.Logger) (*MemoryCache, error) {
	// BigCache 的生命周期窗口只作兜底，过期以本地时钟为准，由 Janitor 负责清理
	cfg := bigcache.DefaultConfig(2 * ttl)
	cfg.CleanWindow = 0
	cfg.MaxEntrySize = 64
	cfg.MaxEntriesInWindow = 1 << 14
	cfg.Verbose = false

	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("创建BigCache实例失败: %w", err)
	}

	return &MemoryCache{
		cache:  cache,
		clock:  clk,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// SeenOrRecord 检查并记录指纹
//
// 已过期但尚未被清理的条目视为不存在，并以当前时间重新记录
func (c *MemoryCache) SeenOrRecord(ctx context.Context, fp types.Fingerprint) (bool, error) {
	key := string(fp[:])
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClosed
	}

	value, err := c.cache.Get(key)
	switch {
	case err == nil:
		if !c.expired(value, now) {
			return true, nil
		}
	case !errors.Is(err, bigcache.ErrEntryNotFound):
		return false, fmt.Errorf("读取指纹失败: %w", err)
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(now.UnixNano()))
	if err := c.cache.Set(key, buf[:]); err != nil {
		return false, fmt.Errorf("记录指纹失败: %w", err)
	}
	return false, nil
}

// EvictExpired 删除所有超过 TTL 的条目
func (c *MemoryCache) EvictExpired(ctx context.Context) (int, error) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}

	var expiredKeys []string
	it := c.cache.Iterator()
	for it.SetNext() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		entry, err := it.Value()
		if err != nil {
			// 迭代期间条目被替换，跳过即可
			continue
		}
		if c.expired(entry.Value(), now) {
			expiredKeys = append(expiredKeys, entry.Key())
		}
	}

	removed := 0
	for _, key := range expiredKeys {
		if err := c.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			c.logger.Warnf("删除过期指纹失败: %v", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Len 当前条目数（含已过期未清理的条目）
func (c *MemoryCache) Len() int {
	return c.cache.Len()
}

// Close 关闭缓存并释放资源，可重复调用
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.cache.Close()
}

func (c *MemoryCache) expired(value []byte, now time.Time) bool {
	if len(value) != 8 {
		return true
	}
	recorded := time.Unix(0, int64(binary.BigEndian.Uint64(value)))
	return now.Sub(recorded) >= c.ttl
}
