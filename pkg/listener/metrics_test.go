package listener

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetricsCollector_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	c, err := GetMetricsCollector(testLogger())
	require.NoError(t, err)
	require.NotNil(t, c)

	ctx := context.Background()
	c.RecordAccept(ctx, acceptOutcomeAccepted)
	c.RecordReload(ctx, true)
	c.RecordReload(ctx, false)
	c.RecordHandshakeStart(ctx)
	c.RecordHandshakeResult(ctx, 5*time.Millisecond, "h2", nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["tls_accepts_total"])
	assert.True(t, names["tls_config_reloads_total"])
	assert.True(t, names["tls_handshakes_total"])
	assert.True(t, names["tls_handshakes_active"])
	assert.True(t, names["tls_handshake_duration_seconds"])
}

func TestMetricsCollector_NilReceiver(t *testing.T) {
	var c *MetricsCollector

	// The listener must keep working without metrics.
	assert.NotPanics(t, func() {
		ctx := context.Background()
		c.RecordAccept(ctx, acceptOutcomeAccepted)
		c.RecordReload(ctx, true)
		c.RecordHandshakeStart(ctx)
		c.RecordHandshakeResult(ctx, time.Millisecond, "", nil)
	})
}
