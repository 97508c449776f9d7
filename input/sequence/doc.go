// Package sequence provides a source operation that emits a configured list
// of values, optionally framed into bursts by round markers.
package sequence
