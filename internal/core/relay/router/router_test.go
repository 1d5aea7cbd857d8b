package router

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/tonrelay/internal/core/relay/metrics"
	"github.com/weisyn/tonrelay/internal/core/relay/registry"
	mocks "github.com/weisyn/tonrelay/internal/testutil"
	"github.com/weisyn/tonrelay/pkg/types"
)

func newTestRouter() (*Router, *registry.Registry, *metrics.Metrics) {
	reg := registry.New()
	m := metrics.New()
	return New(reg, &mocks.MockLogger{}, m), reg, m
}

func TestRouter_Route_DeliversFrameToMatchingSubscribers(t *testing.T) {
	// Arrange
	r, reg, m := newTestRouter()
	wildcard := mocks.NewMockSubscriber()
	bySource := mocks.NewMockSubscriber()
	other := mocks.NewMockSubscriber()
	reg.Subscribe(types.AllFilter(), wildcard)
	reg.Subscribe(types.SourceFilter(mocks.Hash(0xA1)), bySource)
	reg.Subscribe(types.SourceFilter(mocks.Hash(0xFF)), other)
	msg := &types.ExternalMessage{Raw: []byte{0xDE, 0xAD}, Source: mocks.HashPtr(0xA1)}

	// Act
	delivered := r.Route(msg)

	// Assert
	assert.Equal(t, 2, delivered)
	require.Len(t, wildcard.Frames(), 1)
	require.Len(t, bySource.Frames(), 1)
	assert.Empty(t, other.Frames())

	var frame map[string]string
	require.NoError(t, json.Unmarshal(wildcard.Frames()[0], &frame))
	assert.Equal(t, map[string]string{"type": "external", "data": "dead"}, frame)
	assert.Equal(t, wildcard.Frames()[0], bySource.Frames()[0])
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Deliveries))
}

func TestRouter_Route_FailingSubscriber_DoesNotAffectOthers(t *testing.T) {
	r, reg, m := newTestRouter()
	closed := mocks.NewMockSubscriber()
	closed.Close()
	healthy := mocks.NewMockSubscriber()
	reg.Subscribe(types.AllFilter(), closed)
	reg.Subscribe(types.AllFilter(), healthy)

	delivered := r.Route(&types.ExternalMessage{Raw: []byte{0x01}})

	assert.Equal(t, 1, delivered)
	assert.Len(t, healthy.Frames(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryFailures))
}

func TestRouter_Route_NoRecipients_ReturnsZero(t *testing.T) {
	r, _, _ := newTestRouter()

	assert.Zero(t, r.Route(&types.ExternalMessage{Raw: []byte{0x01}, Destination: mocks.HashPtr(0x02)}))
}

func TestRouter_Route_EmptyPayload_FrameHasEmptyData(t *testing.T) {
	r, reg, _ := newTestRouter()
	sub := mocks.NewMockSubscriber()
	reg.Subscribe(types.AllFilter(), sub)

	r.Route(&types.ExternalMessage{Raw: nil})

	require.Len(t, sub.Frames(), 1)
	assert.JSONEq(t, `{"type":"external","data":""}`, string(sub.Frames()[0]))
}
