package buffer

import (
	"github.com/c360/visionflow/errors"
)

// ErrBufferFull is returned by Write under the Reject policy.
var ErrBufferFull = errors.New("buffer full")

// ErrBufferClosed is returned by Write after Close.
var ErrBufferClosed = errors.New("buffer closed")

// Buffer is a thread-safe bounded FIFO parameterized by item type.
type Buffer[T any] interface {
	// Write appends an item, applying the overflow policy when full.
	Write(item T) error

	// Read removes and returns the oldest item.
	Read() (T, bool)

	// Peek returns the oldest item without removing it.
	Peek() (T, bool)

	Size() int
	Capacity() int
	IsFull() bool
	IsEmpty() bool

	// Clear removes all items, invoking the drop callback for each.
	Clear()

	Stats() *Statistics
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// Reject refuses writes while the buffer is full.
	Reject OverflowPolicy = iota

	// DropOldest removes the oldest item to make room for new items.
	DropOldest

	// DropNewest drops new items when the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case Reject:
		return "reject"
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy maps a configuration string to a policy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "reject", "block":
		return Reject, nil
	case "drop_oldest", "latest":
		return DropOldest, nil
	case "drop_newest":
		return DropNewest, nil
	}
	return Reject, errors.WrapInvalid(errors.ErrInvalidConfig, "buffer", "ParseOverflowPolicy", "policy "+s)
}

// DropCallback is called when an item is dropped due to overflow or Clear.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a circular buffer with the given capacity.
// Returns an error if metrics registration fails when metrics are requested.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
