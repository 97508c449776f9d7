package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/metric"
	"github.com/c360/visionflow/operation"
)

// engineMetrics holds the engine-level Prometheus metrics. Per-operation
// metrics live in operation.Metrics.
type engineMetrics struct {
	// Lifecycle commands
	starts *prometheus.CounterVec // By status (success/failure)
	stops  *prometheus.CounterVec // By status

	startDuration prometheus.Histogram
	stopDuration  prometheus.Histogram

	// Observed child transitions
	transitions *prometheus.CounterVec // By target state
	failures    *prometheus.CounterVec // By error class

	running prometheus.Gauge
}

// newEngineMetrics creates and registers engine metrics. A nil registry
// disables them.
func newEngineMetrics(registry *metric.MetricsRegistry, engine string) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"engine": engine}
	m := &engineMetrics{
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "visionflow",
			Subsystem:   "engine",
			Name:        "starts_total",
			Help:        "Total number of engine start commands",
			ConstLabels: labels,
		}, []string{"status"}),

		stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "visionflow",
			Subsystem:   "engine",
			Name:        "stops_total",
			Help:        "Total number of engine stop commands",
			ConstLabels: labels,
		}, []string{"status"}),

		startDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "visionflow",
			Subsystem:   "engine",
			Name:        "start_duration_seconds",
			Help:        "Engine check and start duration in seconds",
			Buckets:     []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0},
			ConstLabels: labels,
		}),

		stopDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "visionflow",
			Subsystem:   "engine",
			Name:        "stop_duration_seconds",
			Help:        "Engine stop-and-wait duration in seconds",
			Buckets:     []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0},
			ConstLabels: labels,
		}),

		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "visionflow",
			Subsystem:   "engine",
			Name:        "transitions_total",
			Help:        "Operation state transitions observed by the engine",
			ConstLabels: labels,
		}, []string{"to"}),

		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "visionflow",
			Subsystem:   "engine",
			Name:        "failures_total",
			Help:        "Operations stopped by an error, by error class",
			ConstLabels: labels,
		}, []string{"class"}),

		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "visionflow",
			Subsystem:   "engine",
			Name:        "running_operations",
			Help:        "Current number of running operations",
			ConstLabels: labels,
		}),
	}

	if err := registry.RegisterCounterVec(engine, "engine_starts", m.starts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(engine, "engine_stops", m.stops); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram(engine, "engine_start_duration", m.startDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram(engine, "engine_stop_duration", m.stopDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(engine, "engine_transitions", m.transitions); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(engine, "engine_failures", m.failures); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(engine, "engine_running_operations", m.running); err != nil {
		return nil, err
	}

	return m, nil
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// recordStart records an engine start command.
func (m *engineMetrics) recordStart(success bool, seconds float64) {
	if m == nil {
		return
	}
	m.starts.WithLabelValues(status(success)).Inc()
	m.startDuration.Observe(seconds)
}

// recordStop records an engine stop command.
func (m *engineMetrics) recordStop(success bool, seconds float64) {
	if m == nil {
		return
	}
	m.stops.WithLabelValues(status(success)).Inc()
	m.stopDuration.Observe(seconds)
}

func (m *engineMetrics) recordTransition(to operation.State, running int) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to.String()).Inc()
	m.running.Set(float64(running))
}

func (m *engineMetrics) recordFailure(err error) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(errors.Classify(err).String()).Inc()
}
