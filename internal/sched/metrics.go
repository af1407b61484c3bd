package sched

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

// MetricsRecorder receives one observation per terminal task outcome.
// Implementations must be safe for concurrent use.
type MetricsRecorder interface {
	ObserveTask(kind string, status domain.TaskStatus, duration time.Duration)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

// ObserveTask implements MetricsRecorder.
func (NopMetrics) ObserveTask(string, domain.TaskStatus, time.Duration) {}

var expvarSeq uint64

// ExpvarMetrics publishes per-kind outcome counters and cumulative
// durations via expvar, for deployments preferring process-local metrics
// without external dependencies.
type ExpvarMetrics struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	outcomes  map[string]map[string]int64
}

// ExpvarMetricsSnapshot is a read-only copy of the recorded values.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Outcomes    map[string]map[string]int64 `json:"outcomes_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarMetrics constructs an expvar-backed recorder published under
// name; an empty name gets a generated unique one.
func NewExpvarMetrics(name string) *ExpvarMetrics {
	if name == "" {
		name = fmt.Sprintf("sched_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	m := &ExpvarMetrics{
		name:      name,
		durations: make(map[string]float64),
		outcomes:  make(map[string]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any { return m.Snapshot() }))
	return m
}

// Name returns the expvar export name.
func (m *ExpvarMetrics) Name() string { return m.name }

// ObserveTask implements MetricsRecorder.
func (m *ExpvarMetrics) ObserveTask(kind string, status domain.TaskStatus, d time.Duration) {
	if kind == "" {
		kind = "default"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[kind] += float64(d) / float64(time.Millisecond)
	if _, ok := m.outcomes[kind]; !ok {
		m.outcomes[kind] = make(map[string]int64, 3)
	}
	m.outcomes[kind][status.String()]++
}

// Snapshot returns an immutable copy of the aggregates.
func (m *ExpvarMetrics) Snapshot() ExpvarMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	durations := make(map[string]float64, len(m.durations))
	for k, v := range m.durations {
		durations[k] = v
	}
	outcomes := make(map[string]map[string]int64, len(m.outcomes))
	for k, counts := range m.outcomes {
		cp := make(map[string]int64, len(counts))
		for status, n := range counts {
			cp[status] = n
		}
		outcomes[k] = cp
	}
	return ExpvarMetricsSnapshot{DurationsMS: durations, Outcomes: outcomes, RecordedAt: time.Now().UTC()}
}

// PrometheusMetrics records task outcomes into Prometheus collectors.
type PrometheusMetrics struct {
	outcomes  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPrometheusMetrics builds and registers the collectors on reg; nil reg
// uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "miningspice",
			Subsystem: "sched",
			Name:      "task_outcomes_total",
			Help:      "Terminal task outcomes by kind and status.",
		}, []string{"kind", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "miningspice",
			Subsystem: "sched",
			Name:      "task_duration_seconds",
			Help:      "Submit-to-terminal task latency by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"kind"}),
	}
	if err := reg.Register(m.outcomes); err != nil {
		return nil, fmt.Errorf("register task outcome counter: %w", err)
	}
	if err := reg.Register(m.durations); err != nil {
		return nil, fmt.Errorf("register task duration histogram: %w", err)
	}
	return m, nil
}

// ObserveTask implements MetricsRecorder.
func (m *PrometheusMetrics) ObserveTask(kind string, status domain.TaskStatus, d time.Duration) {
	if kind == "" {
		kind = "default"
	}
	m.outcomes.WithLabelValues(kind, status.String()).Inc()
	m.durations.WithLabelValues(kind).Observe(d.Seconds())
}
