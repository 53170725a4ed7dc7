package orchestrator

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report pipeline activity.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	actionResults *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runsActive    prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level metrics instance registered with the
// global Prometheus registry. The collectors are created only once so several
// orchestrators in one process share them.
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Collectors that are already registered are reused; any other registration
// error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		stageDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "meetflow",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration spent in each pipeline stage.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage", "status"},
		)),
		stageFailures: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meetflow",
				Subsystem: "pipeline",
				Name:      "stage_failures_total",
				Help:      "Total number of stage executions that halted a run.",
			},
			[]string{"stage", "reason"},
		)),
		actionResults: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meetflow",
				Subsystem: "pipeline",
				Name:      "action_results_total",
				Help:      "Executed calendar actions by kind and outcome.",
			},
			[]string{"kind", "status"},
		)),
		runs: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meetflow",
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Completed pipeline runs by outcome.",
			},
			[]string{"status"},
		)),
		runsActive: register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "meetflow",
				Subsystem: "pipeline",
				Name:      "runs_active",
				Help:      "Number of pipeline runs currently executing.",
			},
		)),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveStageDuration records the time spent in a stage with the provided status label.
func (m *Metrics) ObserveStageDuration(stage string, status string, duration time.Duration) {
	if m == nil || m.stageDuration == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// IncStageFailure increments the failure counter for the given stage and reason.
func (m *Metrics) IncStageFailure(stage string, reason string) {
	if m == nil || m.stageFailures == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage, reason).Inc()
}

// IncActionResult counts one executed action.
func (m *Metrics) IncActionResult(kind string, status string) {
	if m == nil || m.actionResults == nil {
		return
	}
	m.actionResults.WithLabelValues(kind, status).Inc()
}

// IncRun counts a finished run.
func (m *Metrics) IncRun(status string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

// IncActiveRuns marks a run as active.
func (m *Metrics) IncActiveRuns() {
	if m == nil || m.runsActive == nil {
		return
	}
	m.runsActive.Inc()
}

// DecActiveRuns marks a run as finished.
func (m *Metrics) DecActiveRuns() {
	if m == nil || m.runsActive == nil {
		return
	}
	m.runsActive.Dec()
}
