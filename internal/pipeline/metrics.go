package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for pipeline runs. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	toolDuration *prometheus.HistogramVec
	toolFailures *prometheus.CounterVec
	runsActive   prometheus.Gauge
}

// MustNewMetrics registers the pipeline collectors with reg. Collectors that
// are already registered are reused, so several runners may share one
// registry. Other registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	toolDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "optspipe",
			Subsystem: "pipeline",
			Name:      "tool_duration_seconds",
			Help:      "Time spent invoking each pipeline tool.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool", "status"},
	)
	toolFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optspipe",
			Subsystem: "pipeline",
			Name:      "tool_failures_total",
			Help:      "Tool invocations that stopped a pipeline.",
		},
		[]string{"tool", "reason"},
	)
	runsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "optspipe",
			Subsystem: "pipeline",
			Name:      "runs_active",
			Help:      "Pipelines currently running.",
		},
	)

	collectors := []prometheus.Collector{toolDuration, toolFailures, runsActive}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				panic(err)
			}
			switch collector.(type) {
			case *prometheus.HistogramVec:
				toolDuration = already.ExistingCollector.(*prometheus.HistogramVec)
			case *prometheus.CounterVec:
				toolFailures = already.ExistingCollector.(*prometheus.CounterVec)
			case prometheus.Gauge:
				runsActive = already.ExistingCollector.(prometheus.Gauge)
			}
		}
	}
	return &Metrics{
		toolDuration: toolDuration,
		toolFailures: toolFailures,
		runsActive:   runsActive,
	}
}

func (m *Metrics) observeTool(tool, status string, d time.Duration) {
	if m == nil || m.toolDuration == nil {
		return
	}
	m.toolDuration.WithLabelValues(tool, status).Observe(d.Seconds())
}

func (m *Metrics) incFailure(tool, reason string) {
	if m == nil || m.toolFailures == nil {
		return
	}
	m.toolFailures.WithLabelValues(tool, reason).Inc()
}

func (m *Metrics) runStarted() {
	if m == nil || m.runsActive == nil {
		return
	}
	m.runsActive.Inc()
}

func (m *Metrics) runFinished() {
	if m == nil || m.runsActive == nil {
		return
	}
	m.runsActive.Dec()
}
