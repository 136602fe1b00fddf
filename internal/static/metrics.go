package static

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// Metrics tracks static file serving activity.
type Metrics struct {
	requests *prometheus.CounterVec
	bytes    prometheus.Counter
}

// GetMetrics returns the process-wide static metrics, registering the
// collectors on first use.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "certgate_static_requests_total",
				Help: "Static file requests by response status.",
			}, []string{"status"}),
			bytes: promauto.NewCounter(prometheus.CounterOpts{
				Name: "certgate_static_bytes_served_total",
				Help: "Bytes served from static file responses.",
			}),
		}
	})
	return metricsInstance
}

// RecordRequest counts one request with the given response status.
func (m *Metrics) RecordRequest(status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// RecordBytes counts bytes written for a file response.
func (m *Metrics) RecordBytes(n int64) {
	if m == nil {
		return
	}
	m.bytes.Add(float64(n))
}
