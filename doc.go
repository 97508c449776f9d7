// Package visionflow is a machine-vision dataflow engine.
//
// # Philosophy
//
// Independent operations exchange typed values through sockets. Each
// operation runs its own worker and is driven by one lifecycle:
//
//	Stopped -> Starting -> Running <-> Pausing -> Paused
//	   ^                      |
//	   +----- Stopping <------+
//
// Lifecycle commands flow top-down from the engine; data flows along
// connections; failures flow bottom-up as state events.
//
// # Architecture
//
//	                   ┌──────────────────────────────┐
//	graph.yaml ──────> │ config: schema + Validate     │
//	                   └──────────────┬───────────────┘
//	                                  │ engine.Build (operation.Registry)
//	                                  ▼
//	┌───────────────────────────────────────────────────────────────┐
//	│ engine.Engine (root operation.Compound)                        │
//	│                                                               │
//	│  frame-source ──frame──> threshold ──image──> collector       │
//	│        │                                                      │
//	│        └─ state events ─> logs, metrics, health, NATS         │
//	└───────────────────────────────────────────────────────────────┘
//
// Packages:
//
//   - variant: tagged payload values, images, round markers and decoders;
//   - socket: input queues, output fan-out and proxy sockets;
//   - operation: Base, Compound, properties, factories and metrics;
//   - flowcontrol: group and object capturers that merge parallel branches;
//   - input, processor, output: leaf operations;
//   - opregistry: registers every built-in operation;
//   - config: YAML and JSON graph documents;
//   - engine: the root graph with run IDs, health and event publishing;
//   - flowgraph: connectivity analysis of a live graph;
//   - health, metric, natsclient, errors: ambient services;
//   - pkg/buffer, pkg/waitsignal, pkg/retry: building blocks.
//
// # Errors
//
// Errors are classified as transient, invalid or fatal by the errors
// package. An operation that fails stops itself; the first failure of a run
// stops the rest of the graph and is reported by the engine. Nothing in the
// core retries.
//
// # Running
//
//	visionflow --config=configs/example.yaml --log-format=text
//
// The command serves /metrics and /health, optionally publishes state
// events to NATS, and exits when every source has finished.
package visionflow
