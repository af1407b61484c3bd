package txn

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives one observation per commit attempt.
type MetricsRecorder interface {
	ObserveCommit(kind string, fastPath, conflicted bool)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

// ObserveCommit implements MetricsRecorder.
func (NopMetrics) ObserveCommit(string, bool, bool) {}

// PrometheusMetrics counts commit attempts by kind, path and outcome.
type PrometheusMetrics struct {
	attempts *prometheus.CounterVec
}

// NewPrometheusMetrics builds and registers the collector on reg; nil reg
// uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "miningspice",
			Subsystem: "txn",
			Name:      "commit_attempts_total",
			Help:      "Commit attempts by kind, lock path and conflict outcome.",
		}, []string{"kind", "fast_path", "conflicted"}),
	}
	if err := reg.Register(m.attempts); err != nil {
		return nil, fmt.Errorf("register commit counter: %w", err)
	}
	return m, nil
}

// ObserveCommit implements MetricsRecorder.
func (m *PrometheusMetrics) ObserveCommit(kind string, fastPath, conflicted bool) {
	if kind == "" {
		kind = "default"
	}
	m.attempts.WithLabelValues(kind, strconv.FormatBool(fastPath), strconv.FormatBool(conflicted)).Inc()
}
