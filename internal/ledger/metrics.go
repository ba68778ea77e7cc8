package ledger

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iliyamo/pharmatrace/internal/apperror"
)

// Metrics counts gateway calls per operation and outcome.
type Metrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewMetrics registers the gateway collectors on reg. A nil reg gives
// unregistered collectors, which tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmatrace",
			Subsystem: "ledger",
			Name:      "calls_total",
			Help:      "Ledger gateway calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pharmatrace",
			Subsystem: "ledger",
			Name:      "call_duration_seconds",
			Help:      "Ledger gateway call latency.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),
	}
	if reg != nil {
		reg.MustRegister(m.calls, m.latency)
	}
	return m
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(apperror.CodeOf(err)))
	}
	m.calls.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
