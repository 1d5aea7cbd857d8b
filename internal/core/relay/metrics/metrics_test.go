package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Handler_ExposesRelayCounters(t *testing.T) {
	// Arrange
	m := New()
	m.Received.Add(3)
	require.NoError(t, m.RegisterGaugeFunc("overlay", "peers", "Number of overlay peers", func() float64 { return 7 }))

	// Act
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "tonrelay_pipeline_received_total 3"))
	assert.True(t, strings.Contains(body, "tonrelay_overlay_peers 7"))
}

func TestMetrics_RegisterGaugeFunc_Duplicate_ReturnsError(t *testing.T) {
	m := New()
	require.NoError(t, m.RegisterGaugeFunc("registry", "handles", "h", func() float64 { return 0 }))
	assert.Error(t, m.RegisterGaugeFunc("registry", "handles", "h", func() float64 { return 0 }))
}

func TestMetrics_Commands_LabelledByTypeAndStatus(t *testing.T) {
	m := New()
	m.Commands.WithLabelValues("subscribe", "ok").Inc()
	m.Commands.WithLabelValues("subscribe", "error").Inc()
	m.Commands.WithLabelValues("subscribe", "ok").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commands.WithLabelValues("subscribe", "ok")))
}
