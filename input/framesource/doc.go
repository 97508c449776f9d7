// Package framesource provides a source operation that renders synthetic
// image frames at a fixed rate.
//
// Each frame is emitted on output "frame" and its sequence number on output
// "index", so the index stream can drive the sync input of a capturer
// downstream. With max_frames set the source finishes after that many
// frames.
package framesource
