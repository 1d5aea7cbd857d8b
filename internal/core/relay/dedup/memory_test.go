package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/tonrelay/internal/core/infrastructure/clock"
	"github.com/weisyn/tonrelay/internal/testutil"
	"github.com/weisyn/tonrelay/pkg/types"
)

// ==================== 辅助函数 ====================

func newTestMemoryCache(t *testing.T, ttl time.Duration) (*MemoryCache, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cache, err := NewMemoryCache(ttl, clk, &testutil.MockLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, clk
}

// ==================== SeenOrRecord ====================

func TestMemoryCache_SeenOrRecord_FirstSighting_NotDuplicate(t *testing.T) {
	cache, _ := newTestMemoryCache(t, time.Minute)
	fp := types.FingerprintOf([]byte("M"))

	dup, err := cache.SeenOrRecord(context.Background(), fp)

	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, 1, cache.Len())
}

func TestMemoryCache_SeenOrRecord_WithinTTL_Duplicate(t *testing.T) {
	// Arrange
	cache, clk := newTestMemoryCache(t, time.Minute)
	fp := types.FingerprintOf([]byte("M"))
	_, err := cache.SeenOrRecord(context.Background(), fp)
	require.NoError(t, err)

	// Act
	clk.Advance(30 * time.Second)
	dup, err := cache.SeenOrRecord(context.Background(), fp)

	// Assert
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestMemoryCache_SeenOrRecord_AfterTTLWithoutEviction_RecordedAgain(t *testing.T) {
	cache, clk := newTestMemoryCache(t, time.Minute)
	fp := types.FingerprintOf([]byte("M"))
	_, _ = cache.SeenOrRecord(context.Background(), fp)

	clk.Advance(61 * time.Second)
	dup, err := cache.SeenOrRecord(context.Background(), fp)

	require.NoError(t, err)
	assert.False(t, dup, "过期条目视为不存在")

	clk.Advance(time.Second)
	dup, _ = cache.SeenOrRecord(context.Background(), fp)
	assert.True(t, dup, "重新记录后应从新的时间点计算 TTL")
}

func TestMemoryCache_SeenOrRecord_RepeatDoesNotExtendTTL(t *testing.T) {
	cache, clk := newTestMemoryCache(t, time.Minute)
	fp := types.FingerprintOf([]byte("M"))
	_, _ = cache.SeenOrRecord(context.Background(), fp)

	clk.Advance(40 * time.Second)
	dup, _ := cache.SeenOrRecord(context.Background(), fp)
	require.True(t, dup)

	clk.Advance(21 * time.Second)
	dup, _ = cache.SeenOrRecord(context.Background(), fp)
	assert.False(t, dup, "TTL 从首次记录开始计算")
}

func TestMemoryCache_SeenOrRecord_Concurrent_ExactlyOneFirst(t *testing.T) {
	// 并发提交同一指纹，只有一个调用者看到"首次出现"
	cache, _ := newTestMemoryCache(t, time.Minute)
	fp := types.FingerprintOf([]byte("race"))

	var firsts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dup, err := cache.SeenOrRecord(context.Background(), fp)
			if err == nil && !dup {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), firsts.Load())
}

// ==================== EvictExpired ====================

func TestMemoryCache_EvictExpired_RemovesOnlyOldEntries(t *testing.T) {
	// Arrange
	cache, clk := newTestMemoryCache(t, time.Minute)
	ctx := context.Background()
	old := types.FingerprintOf([]byte("old"))
	fresh := types.FingerprintOf([]byte("fresh"))
	_, _ = cache.SeenOrRecord(ctx, old)
	clk.Advance(45 * time.Second)
	_, _ = cache.SeenOrRecord(ctx, fresh)
	clk.Advance(20 * time.Second)

	// Act
	removed, err := cache.EvictExpired(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, cache.Len())
	dup, _ := cache.SeenOrRecord(ctx, fresh)
	assert.True(t, dup)
}

func TestMemoryCache_EvictExpired_Empty_ReturnsZero(t *testing.T) {
	cache, _ := newTestMemoryCache(t, time.Minute)

	removed, err := cache.EvictExpired(context.Background())

	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestMemoryCache_Close_SubsequentCallsFail(t *testing.T) {
	cache, _ := newTestMemoryCache(t, time.Minute)
	require.NoError(t, cache.Close())
	require.NoError(t, cache.Close())

	_, err := cache.SeenOrRecord(context.Background(), types.FingerprintOf([]byte("x")))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = cache.EvictExpired(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
