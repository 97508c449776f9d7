package operation

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/pkg/buffer"
	"github.com/c360/visionflow/pkg/waitsignal"
	"github.com/c360/visionflow/socket"
)

// InputSpec declares an input socket
type InputSpec struct {
	Name     string
	Optional bool
	// Group is the sync group. Inputs of one group are consumed together.
	Group    int
	Capacity int
	Overflow buffer.OverflowPolicy
}

// OutputSpec declares an output socket
type OutputSpec struct {
	Name string
}

// Base implements the lifecycle, sockets and properties shared by all
// operations. Concrete operations embed *Base and pass themselves as the
// Processor.
type Base struct {
	name   string
	impl   Processor
	logger *slog.Logger
	deps   Dependencies

	inputs   []*socket.InputSocket
	outputs  []*socket.OutputSocket
	inIndex  map[string]*socket.InputSocket
	outIndex map[string]*socket.OutputSocket

	propMu    sync.RWMutex
	props     map[string]*property
	propOrder []string

	// cfgMu is held for reading during Process and for writing by SetProperty
	cfgMu sync.RWMutex

	clock  atomic.Uint64
	wake   *waitsignal.Cond
	resume *waitsignal.Cond

	mu      sync.Mutex
	state   State
	err     error
	done    chan struct{}
	cancel  context.CancelFunc
	groups  [][]*socket.InputSocket
	metrics *Metrics

	notifyMu  sync.Mutex
	obsMu     sync.RWMutex
	observers []Observer

	cycles atomic.Uint64
	busy   atomic.Bool
}

// NewBase creates the shared part of an operation. impl receives the process
// cycles and is usually the embedding struct.
func NewBase(name string, impl Processor, deps Dependencies) *Base {
	return &Base{
		name:     name,
		impl:     impl,
		deps:     deps,
		logger:   deps.GetLoggerWithComponent(name),
		inIndex:  make(map[string]*socket.InputSocket),
		outIndex: make(map[string]*socket.OutputSocket),
		wake:     waitsignal.New(waitsignal.LatestOnly),
		resume:   waitsignal.New(waitsignal.Queue),
	}
}

// Name returns the operation name
func (b *Base) Name() string { return b.name }

// Logger returns the operation's logger
func (b *Base) Logger() *slog.Logger { return b.logger }

// Cycles returns the number of completed process cycles
func (b *Base) Cycles() uint64 { return b.cycles.Load() }

// AddInput declares an input socket. Sockets must be declared before the
// operation is wired.
func (b *Base) AddInput(spec InputSpec) (*socket.InputSocket, error) {
	if err := ValidateName(spec.Name); err != nil {
		return nil, errors.Wrap(err, b.name, "AddInput", "socket name validation")
	}
	if _, exists := b.inIndex[spec.Name]; exists {
		return nil, errors.WrapInvalid(fmt.Errorf("duplicate input %q", spec.Name), b.name, "AddInput", "socket name check")
	}

	opts := []socket.InputOption{
		socket.WithGroup(spec.Group),
		socket.WithCapacity(spec.Capacity),
		socket.WithOverflow(spec.Overflow),
	}
	if spec.Optional {
		opts = append(opts, socket.Optional())
	}
	if b.deps.MetricsRegistry != nil {
		opts = append(opts, socket.WithQueueMetrics(b.deps.MetricsRegistry, b.name+"."+spec.Name))
	}

	in, err := socket.NewInput(spec.Name, opts...)
	if err != nil {
		return nil, errors.Wrap(err, b.name, "AddInput", spec.Name)
	}
	in.Bind(b.name, &b.clock, b.wake.SignalOne, b.guard)

	b.inputs = append(b.inputs, in)
	b.inIndex[spec.Name] = in
	return in, nil
}

// AddOutput declares an output socket
func (b *Base) AddOutput(spec OutputSpec) (*socket.OutputSocket, error) {
	name := spec.Name
	if err := ValidateName(name); err != nil {
		return nil, errors.Wrap(err, b.name, "AddOutput", "socket name validation")
	}
	if _, exists := b.outIndex[name]; exists {
		return nil, errors.WrapInvalid(fmt.Errorf("duplicate output %q", name), b.name, "AddOutput", "socket name check")
	}

	out := socket.NewOutput(name)
	out.Bind(b.name, b.guard)

	b.outputs = append(b.outputs, out)
	b.outIndex[name] = out
	return out, nil
}

func (b *Base) guard() error {
	if st := b.State(); !st.Rewirable() {
		return errors.WrapInvalid(fmt.Errorf("%w: %s is %s", errors.ErrInvalidState, b.name, st),
			b.name, "Connect", "rewiring check")
	}
	return nil
}

// Input returns the named input, or nil
func (b *Base) Input(name string) socket.Input {
	if in, ok := b.inIndex[name]; ok {
		return in
	}
	return nil
}

// Output returns the named output, or nil
func (b *Base) Output(name string) socket.Output {
	if out, ok := b.outIndex[name]; ok {
		return out
	}
	return nil
}

// InputSocket returns the concrete named input, or nil
func (b *Base) InputSocket(name string) *socket.InputSocket { return b.inIndex[name] }

// OutputSocket returns the concrete named output, or nil
func (b *Base) OutputSocket(name string) *socket.OutputSocket { return b.outIndex[name] }

// Inputs returns the inputs in declaration order
func (b *Base) Inputs() []*socket.InputSocket { return slices.Clone(b.inputs) }

// Outputs returns the outputs in declaration order
func (b *Base) Outputs() []*socket.OutputSocket { return slices.Clone(b.outputs) }

// InputNames returns the input names in declaration order
func (b *Base) InputNames() []string {
	names := make([]string, len(b.inputs))
	for i, in := range b.inputs {
		names[i] = in.Name()
	}
	return names
}

// OutputNames returns the output names in declaration order
func (b *Base) OutputNames() []string {
	names := make([]string, len(b.outputs))
	for i, out := range b.outputs {
		names[i] = out.Name()
	}
	return names
}

// Instrument attaches engine metrics
func (b *Base) Instrument(m *Metrics) {
	b.mu.Lock()
	b.metrics = m
	b.mu.Unlock()
}

// State returns the current lifecycle state
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Idle reports whether the operation has nothing left to do: it is not inside
// a process cycle and no input holds a queued or fetched value. Stopped
// operations are always idle.
func (b *Base) Idle() bool {
	if b.State() == Stopped {
		return true
	}
	if b.busy.Load() {
		return false
	}
	for _, in := range b.inputs {
		if in.Pending() > 0 || in.HasValue() {
			return false
		}
	}
	return true
}

// Err returns the error that ended the last run
func (b *Base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// AddObserver registers o for lifecycle transitions
func (b *Base) AddObserver(o Observer) {
	if o == nil {
		return
	}
	b.obsMu.Lock()
	b.observers = append(b.observers, o)
	b.obsMu.Unlock()
}

// RemoveObserver unregisters o. Only comparable observers can be removed.
func (b *Base) RemoveObserver(o Observer) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	b.observers = removeObserver(b.observers, o)
}

func removeObserver(list []Observer, o Observer) []Observer {
	if o == nil || !reflect.TypeOf(o).Comparable() {
		return list
	}
	return slices.DeleteFunc(slices.Clone(list), func(x Observer) bool {
		return reflect.TypeOf(x) == reflect.TypeOf(o) && x == o
	})
}

func notifyAll(list []Observer, ev StateEvent) {
	for _, o := range list {
		o.StateChanged(ev)
	}
}

// setState moves to `to` when the current state is one of from (or always
// when from is empty) and notifies observers in transition order.
func (b *Base) setState(to State, err error, from ...State) (State, bool) {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	prev := b.state
	if len(from) > 0 && !slices.Contains(from, prev) {
		b.mu.Unlock()
		return prev, false
	}
	b.state = to
	if err != nil {
		b.err = err
	}
	metrics := b.metrics
	b.mu.Unlock()

	if prev != to {
		b.announce(metrics, prev, to, err)
	}
	return prev, true
}

// announce must be called with notifyMu held
func (b *Base) announce(metrics *Metrics, from, to State, err error) {
	metrics.RecordTransition(b.name, to)
	b.logger.Debug("State changed", "from", from.String(), "to", to.String())

	b.obsMu.RLock()
	observers := slices.Clone(b.observers)
	b.obsMu.RUnlock()
	notifyAll(observers, StateEvent{Operation: b.name, From: from, To: to, Err: err, Time: time.Now()})
}

// Check verifies that every required input is connected and runs the
// operation's own configuration check. With reset it also clears queued
// input and the operation's internal state, but only once all checks pass.
func (b *Base) Check(reset bool) error {
	if st := b.State(); st != Stopped && st != Paused {
		return errors.WrapInvalid(fmt.Errorf("%w: %s is %s", errors.ErrInvalidState, b.name, st),
			b.name, "Check", "state check")
	}

	for _, in := range b.inputs {
		if !in.Optional() && !in.IsConnected() {
			return errors.WrapInvalid(fmt.Errorf("%w: %s.%s", errors.ErrUnconnectedInput, b.name, in.Name()),
				b.name, "Check", "input wiring")
		}
	}

	if c, ok := b.impl.(Checker); ok {
		b.cfgMu.RLock()
		err := c.CheckConfig(reset)
		b.cfgMu.RUnlock()
		if err != nil {
			var ce *errors.ClassifiedError
			if errors.As(err, &ce) {
				return err
			}
			return errors.WrapInvalid(err, b.name, "Check", "configuration")
		}
	}

	if reset {
		for _, in := range b.inputs {
			in.Clear()
		}
		b.cycles.Store(0)
		if r, ok := b.impl.(Resetter); ok {
			b.cfgMu.Lock()
			r.Reset()
			b.cfgMu.Unlock()
		}
	}
	return nil
}

// Start spawns the worker from Stopped, or resumes a paused worker.
func (b *Base) Start() error {
	if _, ok := b.setState(Running, nil, Paused); ok {
		b.resume.SignalOne()
		return nil
	}

	b.notifyMu.Lock()
	b.mu.Lock()
	if b.state != Stopped {
		st := b.state
		b.mu.Unlock()
		b.notifyMu.Unlock()
		if st == Running || st == Starting {
			return nil
		}
		return errors.WrapInvalid(fmt.Errorf("%w: %s is %s", errors.ErrInvalidState, b.name, st),
			b.name, "Start", "state check")
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.state = Starting
	b.err = nil
	b.cancel = cancel
	b.done = done
	b.groups = b.connectedGroups()
	metrics := b.metrics
	b.mu.Unlock()
	b.announce(metrics, Stopped, Starting, nil)
	b.notifyMu.Unlock()

	b.wake.Reset()
	b.resume.Reset()
	for _, out := range b.outputs {
		out.Resume()
	}

	go b.run(ctx, done)

	b.setState(Running, nil, Starting)
	return nil
}

// Pause asks the worker to park at its next checkpoint. Pausing a pausing
// or paused operation does nothing.
func (b *Base) Pause() error {
	if _, ok := b.setState(Pausing, nil, Running, Starting); ok {
		b.wake.SignalOne()
		return nil
	}
	switch st := b.State(); st {
	case Pausing, Paused:
		return nil
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: %s is %s", errors.ErrInvalidState, b.name, st),
			b.name, "Pause", "state check")
	}
}

// Stop asks the worker to exit and interrupts pending emits. It does not
// wait for the worker.
func (b *Base) Stop() error {
	b.notifyMu.Lock()
	b.mu.Lock()
	prev := b.state
	if prev == Stopped || prev == Stopping {
		b.mu.Unlock()
		b.notifyMu.Unlock()
		return nil
	}
	b.state = Stopping
	cancel := b.cancel
	metrics := b.metrics
	b.mu.Unlock()
	b.announce(metrics, prev, Stopping, nil)
	b.notifyMu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, out := range b.outputs {
		out.Interrupt()
	}
	b.wake.SignalOne()
	b.resume.SignalOne()
	return nil
}

// Wait blocks until the worker exits or timeout elapses
func (b *Base) Wait(timeout time.Duration) bool {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done == nil {
		return true
	}

	if timeout < 0 {
		<-done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// StopAndWait stops the operation and waits up to timeout for the worker.
func (b *Base) StopAndWait(timeout time.Duration) error {
	if err := b.Stop(); err != nil {
		return err
	}
	if !b.Wait(timeout) {
		return errors.WrapTransient(errors.ErrStopTimeout, b.name, "StopAndWait", "wait for worker")
	}
	return nil
}

// connectedGroups snapshots the connected inputs by sync group, in order of
// first declaration. Must be called with mu held.
func (b *Base) connectedGroups() [][]*socket.InputSocket {
	var order []int
	byGroup := make(map[int][]*socket.InputSocket)
	for _, in := range b.inputs {
		if !in.IsConnected() {
			continue
		}
		if _, seen := byGroup[in.Group()]; !seen {
			order = append(order, in.Group())
		}
		byGroup[in.Group()] = append(byGroup[in.Group()], in)
	}

	groups := make([][]*socket.InputSocket, 0, len(order))
	for _, g := range order {
		groups = append(groups, byGroup[g])
	}
	return groups
}
