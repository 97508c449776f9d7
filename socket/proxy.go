package socket

import (
	"sync"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/variant"
)

// ProxySocket lets a compound operation present one socket while wiring
// internally to many. Its source sees a single input; its targets see a
// single output.
//
// completed holds one flag per target and is reallocated whenever the
// target set changes. A delivery round completes only once every flag is
// set, after which all flags are cleared.
type ProxySocket struct {
	name string

	mu        sync.Mutex
	owner     string
	source    Output
	targets   []Input
	completed []bool
	guard     Guard
}

// NewProxy creates a proxy socket.
func NewProxy(name string) *ProxySocket {
	return &ProxySocket{name: name}
}

// Bind attaches the proxy to its owning compound.
func (p *ProxySocket) Bind(owner string, guard Guard) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owner = owner
	p.guard = guard
}

func (p *ProxySocket) Name() string         { return p.name }
func (p *ProxySocket) Direction() Direction { return DirectionProxy }

func (p *ProxySocket) Owner() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owner
}

func (p *ProxySocket) checkGuard() error {
	p.mu.Lock()
	g := p.guard
	p.mu.Unlock()
	if g == nil {
		return nil
	}
	return g()
}

// Source returns the producer feeding the proxy.
func (p *ProxySocket) Source() Output {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// RootOutput walks the proxy chain to the real producer.
func (p *ProxySocket) RootOutput() *OutputSocket {
	return rootOf(p.Source())
}

// IsConnected reports whether the proxy's output side reaches a real input.
func (p *ProxySocket) IsConnected() bool {
	return p.reaches(map[Socket]bool{p: true})
}

func (p *ProxySocket) reaches(seen map[Socket]bool) bool {
	for _, t := range p.Targets() {
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

func (p *ProxySocket) setSource(src Output) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source != nil {
		return errors.WrapInvalid(errors.ErrAlreadyConnected, "ProxySocket", "Connect", p.name)
	}
	p.source = src
	return nil
}

func (p *ProxySocket) clearSource(src Output) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source != src {
		return errors.WrapInvalid(errors.ErrNotConnected, "ProxySocket", "Disconnect", p.name)
	}
	p.source = nil
	return nil
}

// Connect adds in to the fan-out set and resets completion tracking.
func (p *ProxySocket) Connect(in Input) error {
	if in == nil {
		return errors.WrapInvalid(errors.ErrSocketNotFound, "ProxySocket", "Connect", "nil input")
	}
	if err := guarded(p, in); err != nil {
		return err
	}
	if err := in.setSource(p); err != nil {
		return err
	}

	p.mu.Lock()
	p.targets = with(p.targets, in)
	p.reset()
	p.mu.Unlock()
	return nil
}

// ConnectAll connects every input in order, stopping at the first error.
func (p *ProxySocket) ConnectAll(ins ...Input) error {
	for _, in := range ins {
		if err := p.Connect(in); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect removes in from the fan-out set and resets completion tracking.
func (p *ProxySocket) Disconnect(in Input) error {
	if err := guarded(p, in); err != nil {
		return err
	}

	p.mu.Lock()
	targets, found := without(p.targets, in)
	p.targets = targets
	if found {
		p.reset()
	}
	p.mu.Unlock()

	if !found {
		return errors.WrapInvalid(errors.ErrNotConnected, "ProxySocket", "Disconnect", p.name)
	}
	return in.clearSource(p)
}

// Targets returns a snapshot of the fan-out set.
func (p *ProxySocket) Targets() []Input {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Input, len(p.targets))
	copy(out, p.targets)
	return out
}

// TryToReceive offers v to every target that has not yet accepted it in the
// current round. It returns true once all targets have accepted, clearing
// the round; otherwise the caller must offer v again.
func (p *ProxySocket) TryToReceive(v variant.Variant) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	complete := true
	for i, t := range p.targets {
		if p.completed[i] {
			continue
		}
		if t.TryToReceive(v) {
			p.completed[i] = true
		} else {
			complete = false
		}
	}

	if complete {
		clear(p.completed)
	}
	return complete
}

// Reset abandons the current round, here and in nested proxies.
func (p *ProxySocket) Reset() {
	p.mu.Lock()
	clear(p.completed)
	targets := p.targets
	p.mu.Unlock()

	for _, t := range targets {
		t.resetRound()
	}
}

// Completed returns a copy of the completion flags.
func (p *ProxySocket) Completed() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bool, len(p.completed))
	copy(out, p.completed)
	return out
}

func (p *ProxySocket) resetRound() { p.Reset() }

// reset reallocates the completion flags for the current target set.
// Callers hold p.mu.
func (p *ProxySocket) reset() {
	p.completed = make([]bool, len(p.targets))
}

func (p *ProxySocket) inputReady() {
	if src := p.Source(); src != nil {
		src.inputReady()
	}
}
