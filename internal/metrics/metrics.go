package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records per-engine analysis outcomes.
type Collector interface {
	RecordAnalysis(engine string, success bool, duration time.Duration)
}

// NoOp discards all observations. Useful in tests.
type NoOp struct{}

func (NoOp) RecordAnalysis(string, bool, time.Duration) {}

// PrometheusCollector exposes analysis counters and latency histograms.
type PrometheusCollector struct {
	analyses *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusCollector creates the collector with unregistered metrics.
// Call Register before serving.
func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "insight",
			Name:      "analyses_total",
			Help:      "Total analysis requests by engine and outcome.",
		}, []string{"engine", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "insight",
			Name:      "analysis_duration_seconds",
			Help:      "Analysis latency by engine.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"engine"}),
	}
}

// Register registers the collector's metrics with the given registerer.
func (c *PrometheusCollector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.analyses, c.duration} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

func (c *PrometheusCollector) RecordAnalysis(engine string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	c.analyses.WithLabelValues(engine, outcome).Inc()
	c.duration.WithLabelValues(engine).Observe(duration.Seconds())
}
