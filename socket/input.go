package socket

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/metric"
	"github.com/c360/visionflow/pkg/buffer"
	"github.com/c360/visionflow/variant"
)

// DefaultCapacity is the queue capacity of an input socket unless
// configured otherwise.
const DefaultCapacity = 8

type entry struct {
	seq uint64
	v   variant.Variant
}

// InputSocket queues values for its owning operation.
type InputSocket struct {
	name     string
	optional bool
	group    int
	policy   buffer.OverflowPolicy
	queue    buffer.Buffer[entry]

	mu         sync.Mutex
	owner      string
	source     Output
	current    variant.Variant
	hasCurrent bool
	clock      *atomic.Uint64
	notify     func()
	guard      Guard
}

type inputOptions struct {
	optional   bool
	group      int
	capacity   int
	policy     buffer.OverflowPolicy
	metricsReg *metric.MetricsRegistry
	metricsKey string
}

// InputOption configures an InputSocket.
type InputOption func(*inputOptions)

// Optional marks the input as not required for Check.
func Optional() InputOption {
	return func(o *inputOptions) { o.optional = true }
}

// WithGroup assigns the input to a sync group.
func WithGroup(group int) InputOption {
	return func(o *inputOptions) { o.group = group }
}

// WithCapacity sets the queue capacity.
func WithCapacity(n int) InputOption {
	return func(o *inputOptions) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithOverflow sets the queue overflow policy. Any policy other than
// buffer.Reject makes the input lossy: it never refuses a value.
func WithOverflow(p buffer.OverflowPolicy) InputOption {
	return func(o *inputOptions) { o.policy = p }
}

// WithQueueMetrics exports queue statistics under key.
func WithQueueMetrics(reg *metric.MetricsRegistry, key string) InputOption {
	return func(o *inputOptions) {
		o.metricsReg = reg
		o.metricsKey = key
	}
}

// NewInput creates an input socket.
func NewInput(name string, opts ...InputOption) (*InputSocket, error) {
	o := &inputOptions{capacity: DefaultCapacity, policy: buffer.Reject}
	for _, opt := range opts {
		opt(o)
	}

	queue, err := buffer.NewCircularBuffer[entry](o.capacity,
		buffer.WithOverflowPolicy[entry](o.policy),
		buffer.WithMetrics[entry](o.metricsReg, o.metricsKey),
	)
	if err != nil {
		return nil, errors.Wrap(err, "InputSocket", "NewInput", fmt.Sprintf("create queue for %s", name))
	}

	return &InputSocket{
		name:     name,
		optional: o.optional,
		group:    o.group,
		policy:   o.policy,
		queue:    queue,
		clock:    new(atomic.Uint64),
	}, nil
}

// Bind attaches the socket to its owning operation. clock stamps arrival
// order across the owner's inputs, notify wakes the owner's worker and guard
// vetoes rewiring.
func (in *InputSocket) Bind(owner string, clock *atomic.Uint64, notify func(), guard Guard) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.owner = owner
	if clock != nil {
		in.clock = clock
	}
	in.notify = notify
	in.guard = guard
}

func (in *InputSocket) Name() string         { return in.name }
func (in *InputSocket) Direction() Direction { return DirectionInput }
func (in *InputSocket) Optional() bool       { return in.optional }
func (in *InputSocket) Group() int           { return in.group }
func (in *InputSocket) Lossy() bool          { return in.policy != buffer.Reject }

func (in *InputSocket) Owner() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.owner
}

func (in *InputSocket) checkGuard() error {
	in.mu.Lock()
	g := in.guard
	in.mu.Unlock()
	if g == nil {
		return nil
	}
	return g()
}

// Source returns the directly connected producer.
func (in *InputSocket) Source() Output {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.source
}

// RootOutput returns the real output feeding this input, following proxies,
// or nil when the chain ends unconnected.
func (in *InputSocket) RootOutput() *OutputSocket {
	return rootOf(in.Source())
}

// IsConnected reports whether a real output feeds this input.
func (in *InputSocket) IsConnected() bool {
	return in.RootOutput() != nil
}

func (in *InputSocket) setSource(src Output) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.source != nil {
		return errors.WrapInvalid(errors.ErrAlreadyConnected, "InputSocket", "Connect", qualifiedLocked(in))
	}
	in.source = src
	return nil
}

func (in *InputSocket) clearSource(src Output) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.source != src {
		return errors.WrapInvalid(errors.ErrNotConnected, "InputSocket", "Disconnect", qualifiedLocked(in))
	}
	in.source = nil
	return nil
}

func (in *InputSocket) resetRound() {}

// TryToReceive queues v. It returns false only when the queue is full and
// the input is not lossy.
func (in *InputSocket) TryToReceive(v variant.Variant) bool {
	in.mu.Lock()
	if in.policy == buffer.Reject && in.queue.IsFull() {
		in.mu.Unlock()
		return false
	}
	err := in.queue.Write(entry{seq: in.clock.Add(1), v: v})
	notify := in.notify
	in.mu.Unlock()

	if err != nil {
		return false
	}
	if notify != nil {
		notify()
	}
	return true
}

// Pending returns the number of queued values.
func (in *InputSocket) Pending() int {
	return in.queue.Size()
}

// HeadSeq returns the arrival stamp of the oldest queued value.
func (in *InputSocket) HeadSeq() (uint64, bool) {
	e, ok := in.queue.Peek()
	return e.seq, ok
}

// Fetch moves the oldest queued value into the current slot and tells the
// producer chain that capacity is available.
func (in *InputSocket) Fetch() bool {
	e, ok := in.queue.Read()
	if !ok {
		return false
	}

	in.mu.Lock()
	in.current = e.v
	in.hasCurrent = true
	src := in.source
	in.mu.Unlock()

	if src != nil {
		src.inputReady()
	}
	return true
}

// Value returns the current value, or an invalid Variant when none is held.
func (in *InputSocket) Value() variant.Variant {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.current
}

// HasValue reports whether a current value is held.
func (in *InputSocket) HasValue() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.hasCurrent
}

// Release drops the current value.
func (in *InputSocket) Release() {
	in.mu.Lock()
	in.current = variant.Variant{}
	in.hasCurrent = false
	in.mu.Unlock()
}

// Clear drops the current value and everything queued.
func (in *InputSocket) Clear() {
	in.queue.Clear()
	in.Release()

	if src := in.Source(); src != nil {
		src.inputReady()
	}
}

// Stats returns the queue statistics.
func (in *InputSocket) Stats() buffer.StatsSummary {
	return in.queue.Stats().Summary()
}

func qualifiedLocked(in *InputSocket) string {
	if in.owner == "" {
		return in.name
	}
	return in.owner + "." + in.name
}

func rootOf(src Output) *OutputSocket {
	seen := make(map[*ProxySocket]bool)
	for src != nil {
		switch s := src.(type) {
		case *OutputSocket:
			return s
		case *ProxySocket:
			if seen[s] {
				return nil
			}
			seen[s] = true
			src = s.Source()
		default:
			return nil
		}
	}
	return nil
}
