// Package health reports the health of running operations.
//
// Each operation maps to a Status derived from its lifecycle state:
//   - Running, or Stopped without an error: healthy
//   - Starting, Pausing, Paused or Stopping: degraded
//   - Stopped with an error: unhealthy
//
// A Monitor follows state changes as an operation.Observer and aggregates
// them into one engine-wide Status. Error messages are sanitized before they
// reach a Status, since health is served over HTTP.
//
//	monitor := health.NewMonitor()
//	op.AddObserver(monitor)
//	...
//	status := monitor.AggregateHealth("engine")
//	if status.IsUnhealthy() {
//	    log.Printf("engine unhealthy: %s", status.Message)
//	}
package health
