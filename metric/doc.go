// Package metric owns the Prometheus registry shared by the engine, its
// operations and their input queues, and serves it over HTTP.
//
// Collectors are registered under an owner and a metric name. The pair must
// be unique, so two engines in one process cannot silently share a counter:
//
//	registry := metric.NewMetricsRegistry()
//	err := registry.RegisterCounterVec("pipeline", "engine_starts", starts)
//
// CoreMetrics returns process-wide gauges and counters (build info, health,
// NATS status, published events). NewServer exposes the registry on a
// metrics path next to a /health endpoint.
package metric
