package operation

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/socket"
)

// Compound groups operations into one. Its state is derived from its
// children, the first child failure stops the remaining children, and its
// own sockets are proxies onto child sockets.
type Compound struct {
	name   string
	logger *slog.Logger
	watch  *childWatch

	mu       sync.RWMutex
	ops      []Operation
	index    map[string]Operation
	inputs   []*socket.ProxySocket
	outputs  []*socket.ProxySocket
	inIndex  map[string]*socket.ProxySocket
	outIndex map[string]*socket.ProxySocket

	lifecycle sync.Mutex
	starting  atomic.Bool

	// notifyMu orders compound notifications and guards last
	notifyMu sync.Mutex
	last     State

	errMu    sync.Mutex
	firstErr error

	doneMu     sync.Mutex
	done       chan struct{}
	doneClosed bool

	obsMu     sync.RWMutex
	observers []Observer
}

type childWatch struct{ c *Compound }

func (w *childWatch) StateChanged(ev StateEvent) { w.c.childChanged(ev) }

// NewCompound creates an empty compound operation
func NewCompound(name string, deps Dependencies) *Compound {
	c := &Compound{
		name:     name,
		logger:   deps.GetLoggerWithComponent(name),
		index:    make(map[string]Operation),
		inIndex:  make(map[string]*socket.ProxySocket),
		outIndex: make(map[string]*socket.ProxySocket),
	}
	c.watch = &childWatch{c: c}
	return c
}

// Name returns the compound name
func (c *Compound) Name() string { return c.name }

// Logger returns the compound's logger
func (c *Compound) Logger() *slog.Logger { return c.logger }

func (c *Compound) guard() error {
	if st := c.State(); !st.Rewirable() {
		return errors.WrapInvalid(fmt.Errorf("%w: %s is %s", errors.ErrInvalidState, c.name, st),
			c.name, "Connect", "rewiring check")
	}
	return nil
}

// Add makes op a child. The compound must be stopped.
func (c *Compound) Add(op Operation) error {
	if op == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, c.name, "Add", "nil operation")
	}
	if st := c.State(); st != Stopped {
		return errors.WrapInvalid(fmt.Errorf("%w: %s is %s", errors.ErrInvalidState, c.name, st),
			c.name, "Add", "state check")
	}

	c.mu.Lock()
	if _, exists := c.index[op.Name()]; exists {
		c.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrDuplicateOperation, op.Name()),
			c.name, "Add", "name check")
	}
	c.ops = append(c.ops, op)
	c.index[op.Name()] = op
	c.mu.Unlock()

	op.AddObserver(c.watch)
	return nil
}

// Remove detaches a child and all of its connections
func (c *Compound) Remove(name string) error {
	if st := c.State(); st != Stopped {
		return errors.WrapInvalid(fmt.Errorf("%w: %s is %s", errors.ErrInvalidState, c.name, st),
			c.name, "Remove", "state check")
	}
	op, err := c.lookup(name, "Remove")
	if err != nil {
		return err
	}

	if err := DisconnectAll(op); err != nil {
		return errors.Wrap(err, c.name, "Remove", name)
	}

	c.mu.Lock()
	delete(c.index, name)
	c.ops = slices.DeleteFunc(c.ops, func(o Operation) bool { return o == op })
	c.mu.Unlock()

	op.RemoveObserver(c.watch)
	return nil
}

// DisconnectAll removes every connection touching op's sockets
func DisconnectAll(op Operation) error {
	for _, name := range op.InputNames() {
		in := op.Input(name)
		if src := in.Source(); src != nil {
			if err := src.Disconnect(in); err != nil {
				return err
			}
		}
	}
	for _, name := range op.OutputNames() {
		out := op.Output(name)
		for _, t := range out.Targets() {
			if err := out.Disconnect(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// Operation returns the named child
func (c *Compound) Operation(name string) (Operation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	op, ok := c.index[name]
	return op, ok
}

// Operations returns the children in insertion order
func (c *Compound) Operations() []Operation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.ops)
}

func (c *Compound) lookup(name, method string) (Operation, error) {
	op, ok := c.Operation(name)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrOperationNotFound, name),
			c.name, method, "operation lookup")
	}
	return op, nil
}

// ResolveOutput finds a child's output socket
func (c *Compound) ResolveOutput(op, name string) (socket.Output, error) {
	child, err := c.lookup(op, "ResolveOutput")
	if err != nil {
		return nil, err
	}
	out := child.Output(name)
	if out == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: output %s.%s", errors.ErrSocketNotFound, op, name),
			c.name, "ResolveOutput", "socket lookup")
	}
	return out, nil
}

// ResolveInput finds a child's input socket
func (c *Compound) ResolveInput(op, name string) (socket.Input, error) {
	child, err := c.lookup(op, "ResolveInput")
	if err != nil {
		return nil, err
	}
	in := child.Input(name)
	if in == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: input %s.%s", errors.ErrSocketNotFound, op, name),
			c.name, "ResolveInput", "socket lookup")
	}
	return in, nil
}

// Connect wires a child output to a child input
func (c *Compound) Connect(fromOp, fromSocket, toOp, toSocket string) error {
	out, err := c.ResolveOutput(fromOp, fromSocket)
	if err != nil {
		return err
	}
	in, err := c.ResolveInput(toOp, toSocket)
	if err != nil {
		return err
	}
	return out.Connect(in)
}

// Disconnect removes a connection between two children
func (c *Compound) Disconnect(fromOp, fromSocket, toOp, toSocket string) error {
	out, err := c.ResolveOutput(fromOp, fromSocket)
	if err != nil {
		return err
	}
	in, err := c.ResolveInput(toOp, toSocket)
	if err != nil {
		return err
	}
	return out.Disconnect(in)
}

// ExposeInput creates a compound input that forwards to targets
func (c *Compound) ExposeInput(name string, targets ...socket.Input) (*socket.ProxySocket, error) {
	if err := ValidateName(name); err != nil {
		return nil, errors.Wrap(err, c.name, "ExposeInput", "socket name validation")
	}
	if err := c.checkExposed(c.inIndex, name, "ExposeInput"); err != nil {
		return nil, err
	}

	// Connecting consults c.guard, which reads c.mu, so wire before locking.
	p := socket.NewProxy(name)
	p.Bind(c.name, c.guard)
	if err := p.ConnectAll(targets...); err != nil {
		c.unexposeInput(p)
		return nil, errors.Wrap(err, c.name, "ExposeInput", name)
	}

	c.mu.Lock()
	if _, exists := c.inIndex[name]; exists {
		c.mu.Unlock()
		c.unexposeInput(p)
		return nil, c.duplicateExposed(name, "ExposeInput")
	}
	c.inputs = append(c.inputs, p)
	c.inIndex[name] = p
	c.mu.Unlock()
	return p, nil
}

// ExposeOutput creates a compound output fed by source
func (c *Compound) ExposeOutput(name string, source socket.Output) (*socket.ProxySocket, error) {
	if err := ValidateName(name); err != nil {
		return nil, errors.Wrap(err, c.name, "ExposeOutput", "socket name validation")
	}
	if err := c.checkExposed(c.outIndex, name, "ExposeOutput"); err != nil {
		return nil, err
	}

	p := socket.NewProxy(name)
	p.Bind(c.name, c.guard)
	if source != nil {
		if err := source.Connect(p); err != nil {
			return nil, errors.Wrap(err, c.name, "ExposeOutput", name)
		}
	}

	c.mu.Lock()
	if _, exists := c.outIndex[name]; exists {
		c.mu.Unlock()
		if source != nil {
			_ = source.Disconnect(p)
		}
		return nil, c.duplicateExposed(name, "ExposeOutput")
	}
	c.outputs = append(c.outputs, p)
	c.outIndex[name] = p
	c.mu.Unlock()
	return p, nil
}

func (c *Compound) checkExposed(index map[string]*socket.ProxySocket, name, method string) error {
	c.mu.RLock()
	_, exists := index[name]
	c.mu.RUnlock()
	if exists {
		return c.duplicateExposed(name, method)
	}
	return nil
}

func (c *Compound) duplicateExposed(name, method string) error {
	return errors.WrapInvalid(fmt.Errorf("duplicate socket %q", name), c.name, method, "socket name check")
}

// unexposeInput undoes the target connections of a proxy that was never published
func (c *Compound) unexposeInput(p *socket.ProxySocket) {
	for _, t := range p.Targets() {
		_ = p.Disconnect(t)
	}
}

// Input returns the exposed input proxy, or nil
func (c *Compound) Input(name string) socket.Input {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.inIndex[name]; ok {
		return p
	}
	return nil
}

// Output returns the exposed output proxy, or nil
func (c *Compound) Output(name string) socket.Output {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.outIndex[name]; ok {
		return p
	}
	return nil
}

// InputNames returns exposed input names in creation order
func (c *Compound) InputNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.inputs))
	for i, p := range c.inputs {
		names[i] = p.Name()
	}
	return names
}

// OutputNames returns exposed output names in creation order
func (c *Compound) OutputNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.outputs))
	for i, p := range c.outputs {
		names[i] = p.Name()
	}
	return names
}

// Check checks every child in insertion order. Children are only reset once
// all of them pass.
func (c *Compound) Check(reset bool) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if st := c.State(); !st.Rewirable() {
		return errors.WrapInvalid(fmt.Errorf("%w: %s is %s", errors.ErrInvalidState, c.name, st),
			c.name, "Check", "state check")
	}
	ops := c.Operations()
	for _, op := range ops {
		if err := op.Check(false); err != nil {
			return errors.Wrap(err, c.name, "Check", op.Name())
		}
	}
	if reset {
		// Reset only once every child has passed.
		for _, op := range ops {
			if err := op.Check(true); err != nil {
				return errors.Wrap(err, c.name, "Check", op.Name())
			}
		}
		c.mu.RLock()
		for _, p := range c.inputs {
			p.Reset()
		}
		for _, p := range c.outputs {
			p.Reset()
		}
		c.mu.RUnlock()
	}
	return nil
}

// Start starts every child, or resumes paused children. If a child fails to
// start, the children already started are stopped again.
func (c *Compound) Start() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	switch st := c.State(); st {
	case Paused:
		for _, op := range c.Operations() {
			if op.State() != Paused {
				continue
			}
			if err := op.Start(); err != nil {
				return errors.Wrap(err, c.name, "Start", op.Name())
			}
		}
		return nil
	case Stopped:
	case Running, Starting:
		return nil
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: %s is %s", errors.ErrInvalidState, c.name, st),
			c.name, "Start", "state check")
	}

	c.errMu.Lock()
	c.firstErr = nil
	c.errMu.Unlock()
	c.doneMu.Lock()
	c.done = make(chan struct{})
	c.doneClosed = false
	c.doneMu.Unlock()
	c.starting.Store(true)
	c.refresh()

	var started []Operation
	for _, op := range c.Operations() {
		if c.Err() != nil {
			break
		}
		if err := op.Start(); err != nil {
			for _, s := range started {
				_ = s.Stop()
			}
			c.starting.Store(false)
			c.refresh()
			return errors.Wrap(err, c.name, "Start", op.Name())
		}
		started = append(started, op)
	}

	c.starting.Store(false)
	if c.Err() != nil {
		c.stopChildren()
	}
	c.refresh()
	return nil
}

// Pause pauses every running child
func (c *Compound) Pause() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	for _, op := range c.Operations() {
		switch op.State() {
		case Starting, Running:
			if err := op.Pause(); err != nil {
				return errors.Wrap(err, c.name, "Pause", op.Name())
			}
		}
	}
	return nil
}

// Stop asks every child to stop. It does not wait.
func (c *Compound) Stop() error {
	c.stopChildren()
	return nil
}

func (c *Compound) stopChildren() {
	for _, op := range c.Operations() {
		if err := op.Stop(); err != nil {
			c.logger.Warn("Stop failed", "child", op.Name(), "error", err)
		}
	}
}

// Wait waits for every child concurrently
func (c *Compound) Wait(timeout time.Duration) bool {
	var g errgroup.Group
	for _, op := range c.Operations() {
		g.Go(func() error {
			if !op.Wait(timeout) {
				return errors.WrapTransient(errors.ErrStopTimeout, c.name, "Wait", op.Name())
			}
			return nil
		})
	}
	return g.Wait() == nil
}

// StopAndWait stops every child and waits up to timeout
func (c *Compound) StopAndWait(timeout time.Duration) error {
	c.stopChildren()
	var g errgroup.Group
	for _, op := range c.Operations() {
		g.Go(func() error {
			if !op.Wait(timeout) {
				return errors.WrapTransient(fmt.Errorf("%w: %s", errors.ErrStopTimeout, op.Name()),
					c.name, "StopAndWait", "wait for child")
			}
			return nil
		})
	}
	return g.Wait()
}

// Done is closed when the compound reaches Stopped after a Start.
func (c *Compound) Done() <-chan struct{} {
	c.doneMu.Lock()
	defer c.doneMu.Unlock()
	if c.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}

// State derives the compound state from its children
func (c *Compound) State() State {
	if c.starting.Load() {
		return Starting
	}
	ops := c.Operations()
	states := make([]State, len(ops))
	for i, op := range ops {
		states[i] = op.State()
	}
	return Aggregate(states)
}

// Idle reports whether every child that can tell is idle
func (c *Compound) Idle() bool {
	for _, op := range c.Operations() {
		if i, ok := op.(Idler); ok && !i.Idle() {
			return false
		}
	}
	return true
}

// Err returns the first child failure of the current run
func (c *Compound) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.firstErr
}

// AddObserver registers o for compound-level transitions
func (c *Compound) AddObserver(o Observer) {
	if o == nil {
		return
	}
	c.obsMu.Lock()
	c.observers = append(c.observers, o)
	c.obsMu.Unlock()
}

// RemoveObserver unregisters o
func (c *Compound) RemoveObserver(o Observer) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = removeObserver(c.observers, o)
}

func (c *Compound) childChanged(ev StateEvent) {
	if _, ok := c.Operation(ev.Operation); !ok {
		return
	}

	if ev.To == Stopped && ev.Err != nil {
		c.errMu.Lock()
		first := c.firstErr == nil
		if first {
			c.firstErr = ev.Err
		}
		c.errMu.Unlock()

		if first {
			c.logger.Error("Child failed, stopping siblings", "child", ev.Operation, "error", ev.Err)
			go c.stopChildren()
		}
	}
	c.refresh()
}

func (c *Compound) refresh() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	agg := c.State()
	if agg == Stopped {
		c.doneMu.Lock()
		if c.done != nil && !c.doneClosed {
			close(c.done)
			c.doneClosed = true
		}
		c.doneMu.Unlock()
	}
	if agg == c.last {
		return
	}

	prev := c.last
	c.last = agg
	var err error
	if agg == Stopped {
		err = c.Err()
	}

	c.obsMu.RLock()
	observers := slices.Clone(c.observers)
	c.obsMu.RUnlock()
	notifyAll(observers, StateEvent{Operation: c.name, From: prev, To: agg, Err: err, Time: time.Now()})
}
