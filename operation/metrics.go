package operation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/metric"
)

// Metrics holds the per-operation Prometheus metrics of one engine. A nil
// *Metrics records nothing.
type Metrics struct {
	cycles      *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

// NewMetrics creates and registers operation metrics for owner. A nil
// registry returns nil metrics.
func NewMetrics(registry *metric.MetricsRegistry, owner string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"engine": owner}
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "visionflow",
			Subsystem:   "operation",
			Name:        "cycles_total",
			Help:        "Total number of completed process cycles",
			ConstLabels: labels,
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "visionflow",
			Subsystem:   "operation",
			Name:        "failures_total",
			Help:        "Total number of runs ended by an error, by error class",
			ConstLabels: labels,
		}, []string{"operation", "class"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "visionflow",
			Subsystem:   "operation",
			Name:        "cycle_duration_seconds",
			Help:        "Duration of process cycles",
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
			ConstLabels: labels,
		}, []string{"operation"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "visionflow",
			Subsystem:   "operation",
			Name:        "state",
			Help:        "Current lifecycle state (0=stopped 1=starting 2=running 3=pausing 4=paused 5=stopping)",
			ConstLabels: labels,
		}, []string{"operation"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "visionflow",
			Subsystem:   "operation",
			Name:        "transitions_total",
			Help:        "Total number of lifecycle transitions by target state",
			ConstLabels: labels,
		}, []string{"operation", "to"}),
	}

	if err := registry.RegisterCounterVec(owner, "operation_cycles", m.cycles); err != nil {
		return nil, errors.Wrap(err, "Metrics", "NewMetrics", "register cycles")
	}
	if err := registry.RegisterCounterVec(owner, "operation_failures", m.failures); err != nil {
		return nil, errors.Wrap(err, "Metrics", "NewMetrics", "register failures")
	}
	if err := registry.RegisterHistogramVec(owner, "operation_cycle_duration", m.duration); err != nil {
		return nil, errors.Wrap(err, "Metrics", "NewMetrics", "register duration")
	}
	if err := registry.RegisterGaugeVec(owner, "operation_state", m.state); err != nil {
		return nil, errors.Wrap(err, "Metrics", "NewMetrics", "register state")
	}
	if err := registry.RegisterCounterVec(owner, "operation_transitions", m.transitions); err != nil {
		return nil, errors.Wrap(err, "Metrics", "NewMetrics", "register transitions")
	}
	return m, nil
}

func (m *Metrics) recordCycle(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(op).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) recordFailure(op string, err error) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(op, errors.Classify(err).String()).Inc()
}

// RecordTransition updates the state gauge and transition counter.
func (m *Metrics) RecordTransition(op string, to State) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(op).Set(float64(to))
	m.transitions.WithLabelValues(op, to.String()).Inc()
}
