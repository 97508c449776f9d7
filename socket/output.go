package socket

import (
	"sync"
	"sync/atomic"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/pkg/waitsignal"
	"github.com/c360/visionflow/variant"
)

// OutputSocket pushes values to its connected inputs.
type OutputSocket struct {
	name string

	mu      sync.Mutex
	owner   string
	targets []Input
	guard   Guard

	ready       *waitsignal.Cond
	interrupted atomic.Bool
	emitted     atomic.Uint64
}

// NewOutput creates an output socket.
func NewOutput(name string) *OutputSocket {
	return &OutputSocket{
		name:  name,
		ready: waitsignal.New(waitsignal.LatestOnly),
	}
}

// Bind attaches the socket to its owning operation.
func (o *OutputSocket) Bind(owner string, guard Guard) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.owner = owner
	o.guard = guard
}

func (o *OutputSocket) Name() string         { return o.name }
func (o *OutputSocket) Direction() Direction { return DirectionOutput }

func (o *OutputSocket) Owner() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.owner
}

func (o *OutputSocket) checkGuard() error {
	o.mu.Lock()
	g := o.guard
	o.mu.Unlock()
	if g == nil {
		return nil
	}
	return g()
}

// Connect adds in to the fan-out set. It fails with ErrAlreadyConnected if
// in already has a source.
func (o *OutputSocket) Connect(in Input) error {
	if in == nil {
		return errors.WrapInvalid(errors.ErrSocketNotFound, "OutputSocket", "Connect", "nil input")
	}
	if err := guarded(o, in); err != nil {
		return err
	}
	if err := in.setSource(o); err != nil {
		return err
	}

	o.mu.Lock()
	o.targets = with(o.targets, in)
	o.mu.Unlock()
	return nil
}

// Disconnect removes in from the fan-out set.
func (o *OutputSocket) Disconnect(in Input) error {
	if err := guarded(o, in); err != nil {
		return err
	}

	o.mu.Lock()
	targets, found := without(o.targets, in)
	o.targets = targets
	o.mu.Unlock()

	if !found {
		return errors.WrapInvalid(errors.ErrNotConnected, "OutputSocket", "Disconnect", qualified(o))
	}
	return in.clearSource(o)
}

// DisconnectAll removes every target.
func (o *OutputSocket) DisconnectAll() error {
	for _, in := range o.Targets() {
		if err := o.Disconnect(in); err != nil {
			return err
		}
	}
	return nil
}

// Targets returns a snapshot of the fan-out set.
func (o *OutputSocket) Targets() []Input {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Input, len(o.targets))
	copy(out, o.targets)
	return out
}

// IsConnected reports whether any path reaches a real input.
func (o *OutputSocket) IsConnected() bool {
	return o.reaches(make(map[Socket]bool))
}

func (o *OutputSocket) reaches(seen map[Socket]bool) bool {
	for _, t := range o.Targets() {
		switch s := t.(type) {
		case *InputSocket:
			return true
		case *ProxySocket:
			if !seen[s] {
				seen[s] = true
				if s.reaches(seen) {
					return true
				}
			}
		}
	}
	return false
}

// Emit delivers v to every target and returns once all have accepted it.
// Targets that refuse are retried whenever a downstream input frees
// capacity; accepted targets are never offered v again. An unconnected
// output discards v.
func (o *OutputSocket) Emit(v variant.Variant) error {
	o.mu.Lock()
	targets := o.targets
	o.mu.Unlock()

	if len(targets) == 0 {
		return nil
	}

	done := make([]bool, len(targets))
	remaining := len(targets)

	for {
		if o.interrupted.Load() {
			for i, t := range targets {
				if !done[i] {
					t.resetRound()
				}
			}
			return ErrInterrupted
		}

		for i, t := range targets {
			if !done[i] && t.TryToReceive(v) {
				done[i] = true
				remaining--
			}
		}
		if remaining == 0 {
			o.emitted.Add(1)
			return nil
		}

		o.ready.Wait(-1)
	}
}

// StartMany opens a round on every target edge.
func (o *OutputSocket) StartMany() error {
	return o.Emit(variant.StartMarker())
}

// EndMany closes a round on every target edge.
func (o *OutputSocket) EndMany() error {
	return o.Emit(variant.EndMarker())
}

// Interrupt makes a pending or future Emit return ErrInterrupted until
// Resume is called.
func (o *OutputSocket) Interrupt() {
	o.interrupted.Store(true)
	o.ready.SignalOne()
}

// Resume clears a previous Interrupt.
func (o *OutputSocket) Resume() {
	o.interrupted.Store(false)
	o.ready.Reset()
}

// Emitted returns the number of completed deliveries.
func (o *OutputSocket) Emitted() uint64 {
	return o.emitted.Load()
}

func (o *OutputSocket) inputReady() {
	o.ready.SignalOne()
}
