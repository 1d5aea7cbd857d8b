package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/tonrelay/internal/core/relay/metrics"
	mocks "github.com/weisyn/tonrelay/internal/testutil"
	"github.com/weisyn/tonrelay/pkg/types"
)

func TestJanitor_Sweep_EvictsAndCounts(t *testing.T) {
	// Arrange
	cache, clk := newTestMemoryCache(t, time.Minute)
	m := metrics.New()
	janitor := NewJanitor(cache, time.Minute, &mocks.MockLogger{}, m)
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c"} {
		_, err := cache.SeenOrRecord(ctx, types.FingerprintOf([]byte(s)))
		require.NoError(t, err)
	}
	clk.Advance(2 * time.Minute)

	// Act
	removed := janitor.Sweep(ctx)

	// Assert
	assert.Equal(t, 3, removed)
	assert.Zero(t, cache.Len())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Evictions))
}

func TestJanitor_Run_TicksUntilCancelled(t *testing.T) {
	// Arrange
	cache, clk := newTestMemoryCache(t, time.Minute)
	janitor := NewJanitor(cache, 10*time.Millisecond, &mocks.MockLogger{}, metrics.New())
	_, err := cache.SeenOrRecord(context.Background(), types.FingerprintOf([]byte("a")))
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		janitor.Run(ctx)
		close(done)
	}()

	// Assert
	require.Eventually(t, func() bool { return cache.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run 未在取消后退出")
	}
}

func TestJanitor_Sweep_ClosedCache_ReturnsZero(t *testing.T) {
	cache, _ := newTestMemoryCache(t, time.Minute)
	require.NoError(t, cache.Close())
	janitor := NewJanitor(cache, time.Minute, &mocks.MockLogger{}, metrics.New())

	assert.Zero(t, janitor.Sweep(context.Background()))
}
