package http //nolint:revive // intentional naming for domain clarity

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts remote range traffic. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	retries  prometheus.Counter
	bytes    prometheus.Counter
}

// NewMetrics registers the range-source collectors with reg.
// Several Sources may share one Metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rangezip",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests issued by range sources, by method and status code.",
		}, []string{"method", "code"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rangezip",
			Subsystem: "http",
			Name:      "retries_total",
			Help:      "Reads resumed after a transient network failure.",
		}),
		bytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rangezip",
			Subsystem: "http",
			Name:      "received_bytes_total",
			Help:      "Response body bytes copied into caller buffers.",
		}),
	}
}

func (m *Metrics) request(method string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func (m *Metrics) retried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) received(n int) {
	if m == nil {
		return
	}
	m.bytes.Add(float64(n))
}
