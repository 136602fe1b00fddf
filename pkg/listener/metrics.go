package listener

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type acceptOutcome string

const (
	acceptOutcomeAccepted       acceptOutcome = "accepted"
	acceptOutcomeConfigMissing  acceptOutcome = "config_missing"
	acceptOutcomeTransportError acceptOutcome = "transport_error"
)

var (
	metricsOnce     sync.Once
	metricsInitErr  error
	metricsInstance *MetricsCollector
)

// MetricsCollector records listener and handshake metrics through the global
// OpenTelemetry meter provider. All methods are safe on a nil receiver so the
// listener keeps working when metric registration failed.
type MetricsCollector struct {
	acceptsTotal      metric.Int64Counter
	reloadsTotal      metric.Int64Counter
	handshakesTotal   metric.Int64Counter
	handshakesActive  metric.Int64UpDownCounter
	handshakeDuration metric.Float64Histogram

	logger *slog.Logger
}

// GetMetricsCollector returns the process-wide listener metrics collector.
func GetMetricsCollector(logger *slog.Logger) (*MetricsCollector, error) {
	metricsOnce.Do(func() {
		metricsInstance, metricsInitErr = newMetricsCollector(logger)
	})
	return metricsInstance, metricsInitErr
}

func newMetricsCollector(logger *slog.Logger) (*MetricsCollector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	meter := otel.GetMeterProvider().Meter("certgate.listener")
	c := &MetricsCollector{logger: logger}

	var err error
	c.acceptsTotal, err = meter.Int64Counter(
		"tls_accepts_total",
		metric.WithDescription("Accept results by outcome"),
		metric.WithUnit("{accept}"),
	)
	if err != nil {
		return nil, err
	}

	c.reloadsTotal, err = meter.Int64Counter(
		"tls_config_reloads_total",
		metric.WithDescription("Configuration snapshot installs by result"),
		metric.WithUnit("{reload}"),
	)
	if err != nil {
		return nil, err
	}

	c.handshakesTotal, err = meter.Int64Counter(
		"tls_handshakes_total",
		metric.WithDescription("Completed TLS handshakes by result"),
		metric.WithUnit("{handshake}"),
	)
	if err != nil {
		return nil, err
	}

	c.handshakesActive, err = meter.Int64UpDownCounter(
		"tls_handshakes_active",
		metric.WithDescription("Handshakes currently in flight"),
		metric.WithUnit("{handshake}"),
	)
	if err != nil {
		return nil, err
	}

	c.handshakeDuration, err = meter.Float64Histogram(
		"tls_handshake_duration_seconds",
		metric.WithDescription("TLS handshake duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// RecordAccept counts one Accept result.
func (c *MetricsCollector) RecordAccept(ctx context.Context, outcome acceptOutcome) {
	if c == nil {
		return
	}
	c.acceptsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(outcome)),
	))
}

// RecordReload counts one snapshot install attempt.
func (c *MetricsCollector) RecordReload(ctx context.Context, success bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !success {
		result = "invalid"
	}
	c.reloadsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordHandshakeStart marks a handshake entering flight.
func (c *MetricsCollector) RecordHandshakeStart(ctx context.Context) {
	if c == nil {
		return
	}
	c.handshakesActive.Add(ctx, 1)
}

// RecordHandshakeResult records a terminal handshake outcome.
func (c *MetricsCollector) RecordHandshakeResult(ctx context.Context, duration time.Duration, negotiatedProtocol string, err error) {
	if c == nil {
		return
	}
	c.handshakesActive.Add(ctx, -1)

	attrs := []attribute.KeyValue{}
	if err != nil {
		attrs = append(attrs, attribute.String("result", "error"))
	} else {
		attrs = append(attrs, attribute.String("result", "ok"))
		if negotiatedProtocol != "" {
			attrs = append(attrs, attribute.String("negotiated_protocol", negotiatedProtocol))
		}
	}
	c.handshakesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	c.handshakeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
