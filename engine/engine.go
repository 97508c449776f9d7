package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/visionflow/config"
	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/flowgraph"
	"github.com/c360/visionflow/health"
	"github.com/c360/visionflow/metric"
	"github.com/c360/visionflow/operation"
)

// DefaultName is used when a graph document does not name its engine
const DefaultName = "visionflow"

// drainInterval is how often Run checks for a drained graph once every
// source has finished.
const drainInterval = 10 * time.Millisecond

// Option configures an Engine
type Option func(*Engine)

// WithStopTimeout bounds how long Close and Run wait for operations to stop
func WithStopTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.stopTimeout = d
		}
	}
}

// WithPublisher publishes every operation state change through p
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// Engine is the root of an operation graph. It serializes lifecycle commands,
// assigns a run ID to every start from Stopped, and follows each operation
// for logging, metrics, health and event publishing.
type Engine struct {
	root   *operation.Compound
	name   string
	logger *slog.Logger
	deps   operation.Dependencies

	stopTimeout time.Duration
	publisher   Publisher
	events      *EventPublisher
	metrics     *engineMetrics
	opMetrics   *operation.Metrics
	core        *metric.Metrics
	monitor     *health.Monitor
	watch       *engineWatch

	// transMu serializes lifecycle commands
	transMu sync.Mutex

	mu       sync.RWMutex
	runID    string
	failures int
	states   map[string]operation.State
	types    map[string]string
	configs  map[string]json.RawMessage
}

// New creates an empty engine
func New(name string, deps operation.Dependencies, opts ...Option) (*Engine, error) {
	if err := operation.ValidateName(name); err != nil {
		return nil, errors.Wrap(err, "Engine", "New", "engine name")
	}

	e := &Engine{
		root:        operation.NewCompound(name, deps),
		name:        name,
		logger:      deps.GetLogger().With("engine", name),
		deps:        deps,
		stopTimeout: config.DefaultStopTimeout,
		monitor:     health.NewMonitor(),
		states:      make(map[string]operation.State),
		types:       make(map[string]string),
		configs:     make(map[string]json.RawMessage),
	}
	e.watch = &engineWatch{e: e}
	for _, opt := range opts {
		opt(e)
	}

	if reg := deps.MetricsRegistry; reg != nil {
		var err error
		if e.metrics, err = newEngineMetrics(reg, name); err != nil {
			return nil, errors.Wrap(err, "Engine", "New", "register engine metrics")
		}
		if e.opMetrics, err = operation.NewMetrics(reg, name); err != nil {
			return nil, errors.Wrap(err, "Engine", "New", "register operation metrics")
		}
		e.core = reg.CoreMetrics()
	}
	e.events = newEventPublisher(name, e.publisher, e.core, e.logger)
	return e, nil
}

// Name returns the engine name
func (e *Engine) Name() string { return e.name }

// RunID returns the ID of the current or most recent run. It is empty before
// the first start.
func (e *Engine) RunID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runID
}

// StopTimeout returns the configured stop timeout
func (e *Engine) StopTimeout() time.Duration { return e.stopTimeout }

// Add adds op to the graph. The engine must be stopped.
func (e *Engine) Add(op operation.Operation) error {
	if err := e.root.Add(op); err != nil {
		return errors.Wrap(err, "Engine", "Add", "add operation")
	}
	if inst, ok := op.(operation.Instrumentable); ok {
		inst.Instrument(e.opMetrics)
	}
	op.AddObserver(e.watch)

	e.mu.Lock()
	e.states[op.Name()] = op.State()
	e.mu.Unlock()
	e.monitor.Update(op.Name(), health.FromOperation(op))
	return nil
}

// Remove removes the named operation and all of its connections
func (e *Engine) Remove(name string) error {
	op, ok := e.root.Operation(name)
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrOperationNotFound, name),
			"Engine", "Remove", "lookup")
	}
	if err := e.root.Remove(name); err != nil {
		return errors.Wrap(err, "Engine", "Remove", name)
	}
	op.RemoveObserver(e.watch)

	e.mu.Lock()
	delete(e.states, name)
	delete(e.types, name)
	delete(e.configs, name)
	e.mu.Unlock()
	e.monitor.Remove(name)
	return nil
}

// Connect connects fromOp.fromSocket to toOp.toSocket
func (e *Engine) Connect(fromOp, fromSocket, toOp, toSocket string) error {
	return e.root.Connect(fromOp, fromSocket, toOp, toSocket)
}

// Disconnect removes the connection fromOp.fromSocket -> toOp.toSocket
func (e *Engine) Disconnect(fromOp, fromSocket, toOp, toSocket string) error {
	return e.root.Disconnect(fromOp, fromSocket, toOp, toSocket)
}

// Operation looks up an operation by name
func (e *Engine) Operation(name string) (operation.Operation, bool) {
	return e.root.Operation(name)
}

// Operations returns the operations in insertion order
func (e *Engine) Operations() []operation.Operation { return e.root.Operations() }

// Check checks every operation without starting anything
func (e *Engine) Check(reset bool) error {
	e.transMu.Lock()
	defer e.transMu.Unlock()
	return e.root.Check(reset)
}

// Start checks and starts every operation when stopped, or resumes paused
// operations. A start from Stopped begins a new run with a fresh run ID and
// clears the queues of the previous run.
func (e *Engine) Start() error {
	e.transMu.Lock()
	defer e.transMu.Unlock()

	if e.root.State() != operation.Stopped {
		return e.root.Start()
	}

	start := time.Now()
	runID := uuid.NewString()
	e.mu.Lock()
	e.runID = runID
	e.failures = 0
	e.mu.Unlock()

	err := e.root.Check(true)
	if err == nil {
		err = e.root.Start()
	}
	e.metrics.recordStart(err == nil, time.Since(start).Seconds())
	if err != nil {
		e.logger.Error("Engine start failed", "run_id", runID, "error", err)
		return errors.Wrap(err, "Engine", "Start", "start operations")
	}

	e.logger.Info("Engine started", "run_id", runID, "operations", len(e.root.Operations()))
	return nil
}

// Pause pauses every running operation
func (e *Engine) Pause() error {
	e.transMu.Lock()
	defer e.transMu.Unlock()
	return e.root.Pause()
}

// Stop asks every operation to stop without waiting
func (e *Engine) Stop() error {
	e.transMu.Lock()
	defer e.transMu.Unlock()
	return e.root.Stop()
}

// Wait waits up to timeout for every operation to stop. A negative timeout
// waits forever.
func (e *Engine) Wait(timeout time.Duration) bool { return e.root.Wait(timeout) }

// StopAndWait stops every operation and waits up to timeout
func (e *Engine) StopAndWait(timeout time.Duration) error {
	e.transMu.Lock()
	defer e.transMu.Unlock()

	start := time.Now()
	err := e.root.StopAndWait(timeout)
	e.metrics.recordStop(err == nil, time.Since(start).Seconds())
	if err != nil {
		e.logger.Warn("Engine stop timed out", "run_id", e.RunID(), "error", err)
		return err
	}
	e.logger.Info("Engine stopped", "run_id", e.RunID(), "duration", time.Since(start))
	return nil
}

// Close forces every operation to Stopped within the stop timeout
func (e *Engine) Close() error { return e.StopAndWait(e.stopTimeout) }

// Run starts the engine and blocks until ctx is done, an operation fails, or
// every source has finished and the graph has drained. It returns the first
// operation failure of the run, if any.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(); err != nil {
		return err
	}

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	idle := 0
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine run cancelled", "run_id", e.RunID())
			if err := e.Close(); err != nil {
				return err
			}
			return e.Err()
		case <-e.Done():
			return e.Err()
		case <-ticker.C:
			if !e.sourcesFinished() || !e.root.Idle() {
				idle = 0
				continue
			}
			// one check can miss a value between emit and fetch
			if idle++; idle < 2 {
				continue
			}
			e.logger.Info("Sources finished, graph drained", "run_id", e.RunID())
			if err := e.Close(); err != nil {
				return err
			}
			return e.Err()
		}
	}
}

// sourcesFinished reports whether the graph has at least one source and all
// of them have stopped.
func (e *Engine) sourcesFinished() bool {
	sources := 0
	for _, op := range e.root.Operations() {
		if len(op.InputNames()) > 0 {
			continue
		}
		sources++
		if op.State() != operation.Stopped {
			return false
		}
	}
	return sources > 0
}

// State returns the aggregate state of all operations
func (e *Engine) State() operation.State { return e.root.State() }

// Err returns the first operation failure of the current run
func (e *Engine) Err() error { return e.root.Err() }

// Done is closed when every operation has stopped after a start
func (e *Engine) Done() <-chan struct{} { return e.root.Done() }

// Failures returns how many operations of the current run stopped with an
// error. The first one is reported by Err.
func (e *Engine) Failures() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.failures
}

// Health aggregates the health of every operation
func (e *Engine) Health() health.Status {
	ops := e.root.Operations()
	subs := make([]health.Status, 0, len(ops))
	for _, op := range ops {
		st := health.FromOperation(op)
		if prev, ok := e.monitor.Get(op.Name()); ok && prev.State == st.State {
			st.Timestamp = prev.Timestamp
		}
		subs = append(subs, st)
	}
	agg := health.Aggregate(e.name, subs)
	agg.State = e.root.State().String()
	if e.core != nil {
		e.core.RecordHealthStatus(e.name, !agg.IsUnhealthy(), agg.IsDegraded())
	}
	return agg
}

// Analyze reports the connectivity of the live graph
func (e *Engine) Analyze() (*flowgraph.FlowAnalysisResult, error) {
	return flowgraph.Analyze(e)
}

// engineWatch follows every top-level operation
type engineWatch struct{ e *Engine }

func (w *engineWatch) StateChanged(ev operation.StateEvent) {
	e := w.e

	failed := ev.To == operation.Stopped && ev.Err != nil
	e.mu.Lock()
	e.states[ev.Operation] = ev.To
	running := 0
	for _, st := range e.states {
		if st == operation.Running {
			running++
		}
	}
	if failed {
		e.failures++
	}
	runID := e.runID
	e.mu.Unlock()

	e.metrics.recordTransition(ev.To, running)
	if failed {
		e.metrics.recordFailure(ev.Err)
		e.logger.Error("Operation failed", "operation", ev.Operation, "run_id", runID,
			"error", ev.Err, "class", errors.Classify(ev.Err).String())
	} else {
		e.logger.Debug("Operation state changed", "operation", ev.Operation, "run_id", runID,
			"from", ev.From.String(), "to", ev.To.String())
	}

	e.monitor.StateChanged(ev)
	if e.core != nil {
		if st, ok := e.monitor.Get(ev.Operation); ok {
			e.core.RecordHealthStatus(ev.Operation, !st.IsUnhealthy(), st.IsDegraded())
		}
	}
	e.events.publish(runID, ev)
}
