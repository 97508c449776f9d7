// Package buffer provides the bounded FIFO queues that back input sockets.
//
// A queue is a fixed-capacity circular buffer with an overflow policy:
//   - Reject refuses new items while full, so the producer can apply backpressure
//   - DropOldest evicts the oldest item, suited to live frame inputs
//   - DropNewest silently discards the incoming item
//
// Statistics are always collected. Prometheus metrics are optional via
// WithMetrics.
package buffer
