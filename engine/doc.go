// Package engine runs an operation graph.
//
// # Overview
//
// An Engine is the root compound of a graph. It owns the operations, derives
// one aggregate state from them, and serializes the lifecycle commands that
// move them: Check, Start, Pause, Stop and Close. The first operation failure
// of a run stops every other operation and is reported by Err; later failures
// are counted but do not replace it.
//
// Every start from Stopped begins a run with a new UUID run ID. The ID is
// attached to engine logs and to published state events.
//
// # Building from documents
//
// Build turns a config.Graph into an engine through an explicit
// operation.Registry, and Document turns a built engine back into a graph
// with its current property values:
//
//	g, err := config.Load("graph.yaml")
//	if err != nil {
//		return err
//	}
//	registry, err := opregistry.NewRegistry()
//	if err != nil {
//		return err
//	}
//	e, err := engine.Build(g, registry, operation.Dependencies{Logger: logger})
//	if err != nil {
//		return err
//	}
//	return e.Run(ctx)
//
// Run returns when ctx is done, when an operation fails, or when every source
// has finished and nothing is left queued anywhere in the graph.
//
// # Observability
//
// The engine observes each top-level operation:
//
//   - transitions are logged at debug level and failures at error level;
//   - engine metrics count transitions and failures and track the number of
//     running operations, next to the per-operation metrics of
//     operation.Metrics;
//   - Health aggregates a health.Status per operation;
//   - with WithPublisher, every transition is published as a JSON Event on
//     visionflow.events.<engine>.<operation>.
package engine
