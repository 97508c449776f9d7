package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the platform-level metrics that exist once per process.
// Per-operation metrics are registered by their owners.
type Metrics struct {
	BuildInfo       *prometheus.GaugeVec
	HealthStatus    *prometheus.GaugeVec
	EventsPublished *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	NATSConnected   prometheus.Gauge
}

// NewMetrics creates the platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "visionflow",
				Name:      "build_info",
				Help:      "Build information, always 1",
			},
			[]string{"version"},
		),
		HealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "visionflow",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health per component (0=unhealthy, 1=healthy, 2=degraded)",
			},
			[]string{"component"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "visionflow",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "State change events published to NATS",
			},
			[]string{"engine"},
		),
		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "visionflow",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "State change events that could not be published",
			},
			[]string{"engine"},
		),
		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "visionflow",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.BuildInfo, c.HealthStatus, c.EventsPublished, c.EventsDropped, c.NATSConnected,
	}
}

// RecordBuildInfo sets the build info gauge
func (c *Metrics) RecordBuildInfo(version string) {
	c.BuildInfo.WithLabelValues(version).Set(1)
}

// RecordHealthStatus records a component's health
func (c *Metrics) RecordHealthStatus(component string, healthy, degraded bool) {
	value := 0.0
	switch {
	case healthy && degraded:
		value = 2
	case healthy:
		value = 1
	}
	c.HealthStatus.WithLabelValues(component).Set(value)
}

// RecordEventPublished counts a published or dropped event
func (c *Metrics) RecordEventPublished(engine string, ok bool) {
	if ok {
		c.EventsPublished.WithLabelValues(engine).Inc()
		return
	}
	c.EventsDropped.WithLabelValues(engine).Inc()
}

// RecordNATSStatus records NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
