package connection

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes statement activity of a gateway
type Metrics struct {
	running  prometheus.Gauge
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the gateway collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lazyvar",
			Subsystem: "gateway",
			Name:      "running_statements",
			Help:      "Number of SELECT statements currently executing.",
		}),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lazyvar",
			Subsystem: "gateway",
			Name:      "statements_total",
			Help:      "Finished statements by schema and outcome.",
		}, []string{"schema", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lazyvar",
			Subsystem: "gateway",
			Name:      "statement_duration_seconds",
			Help:      "Wall time from submission to cursor close.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"schema"}),
	}
	if reg != nil {
		reg.MustRegister(m.running, m.total, m.duration)
	}
	return m
}

func (m *Metrics) started() {
	m.running.Inc()
}

func (m *Metrics) finished(exec Execution) {
	m.running.Dec()

	outcome := "ok"
	switch {
	case exec.Outcome == Cancelled || IsCancelled(exec.Err):
		outcome = "cancelled"
	case exec.Err != nil:
		outcome = "error"
	}
	m.total.WithLabelValues(string(exec.Schema), outcome).Inc()
	m.duration.WithLabelValues(string(exec.Schema)).Observe(exec.Duration.Seconds())
}
