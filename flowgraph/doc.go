// Package flowgraph provides connectivity analysis over a live operation graph.
//
// A FlowGraph is a snapshot of the operations in one container (a compound or
// the engine) and the socket connections between them. Connections that
// cross the container boundary, through exposed proxy sockets, are not edges
// but still count as wiring for the operation they reach.
package flowgraph
