// Package collector provides a sink operation that keeps the values it
// receives in memory. It is the end point of demo graphs and the usual way
// to observe a graph's output in tests.
package collector
