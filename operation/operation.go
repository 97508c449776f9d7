package operation

import (
	"context"
	"time"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/socket"
)

// ErrFinished is returned from Process by a source that has nothing more to
// produce. The operation stops normally.
var ErrFinished = errors.New("operation finished")

// Operation is a graph node with its own goroutine and lifecycle.
type Operation interface {
	Name() string

	// Input and Output return nil when no socket has that name.
	Input(name string) socket.Input
	Output(name string) socket.Output
	InputNames() []string
	OutputNames() []string

	// Check validates wiring and configuration. With reset it also clears
	// counters and queued input.
	Check(reset bool) error

	// Start spawns the worker from Stopped, or resumes it from Paused.
	Start() error

	// Pause requests the worker to park at its next checkpoint.
	Pause() error

	// Stop requests the worker to exit. It does not wait; see Wait.
	Stop() error

	// Wait blocks until the worker has exited or timeout elapses. A negative
	// timeout waits forever.
	Wait(timeout time.Duration) bool

	State() State

	// Err returns the error that stopped the last run, if any.
	Err() error

	AddObserver(o Observer)
	RemoveObserver(o Observer)
}

// Processor is the per-cycle work of a concrete operation.
type Processor interface {
	Process(ctx context.Context) error
}

// Checker is implemented by operations with configuration to validate.
type Checker interface {
	CheckConfig(reset bool) error
}

// Resetter is implemented by operations with state to clear on Check(true).
type Resetter interface {
	Reset()
}

// MarkerAware is implemented by operations that want round markers
// delivered to Process instead of being forwarded automatically.
type MarkerAware interface {
	AcceptsMarkers() bool
}

// Configurable exposes string-keyed access to typed properties.
type Configurable interface {
	SetProperty(name string, value any) error
	Property(name string) (any, error)
	Properties() []PropertyInfo
}

// Instrumentable operations record Prometheus metrics once instrumented.
type Instrumentable interface {
	Instrument(m *Metrics)
}

// Idler reports whether an operation has drained its pending work.
type Idler interface {
	Idle() bool
}

// StateEvent describes one lifecycle transition.
type StateEvent struct {
	Operation string
	From      State
	To        State
	Err       error
	Time      time.Time
}

// Observer receives lifecycle transitions. Events for one operation arrive in
// transition order. Observers must not call lifecycle methods of the
// notifying operation synchronously.
type Observer interface {
	StateChanged(ev StateEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev StateEvent)

// StateChanged calls f(ev).
func (f ObserverFunc) StateChanged(ev StateEvent) { f(ev) }
