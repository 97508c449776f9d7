package operation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360/visionflow/socket"
	"github.com/c360/visionflow/variant"
)

// emitter emits a fixed list of values, then finishes.
type emitter struct {
	*Base
	out    *socket.OutputSocket
	values []variant.Variant
	next   int
}

func buildEmitter(name string, values ...variant.Variant) (*emitter, error) {
	e := &emitter{values: values}
	e.Base = NewBase(name, e, Dependencies{})
	out, err := e.AddOutput(OutputSpec{Name: "out"})
	if err != nil {
		return nil, err
	}
	e.out = out
	return e, nil
}

func newEmitter(t *testing.T, name string, values ...variant.Variant) *emitter {
	t.Helper()
	e, err := buildEmitter(name, values...)
	require.NoError(t, err)
	return e
}

func (e *emitter) Process(_ context.Context) error {
	if e.next >= len(e.values) {
		return ErrFinished
	}
	if err := e.out.Emit(e.values[e.next]); err != nil {
		return err
	}
	e.next++
	return nil
}

func (e *emitter) Reset() { e.next = 0 }

// ticker emits increasing integers until stopped.
type ticker struct {
	*Base
	out   *socket.OutputSocket
	count atomic.Int64
}

func newTicker(t *testing.T, name string) *ticker {
	t.Helper()
	tk := &ticker{}
	tk.Base = NewBase(name, tk, Dependencies{})
	out, err := tk.AddOutput(OutputSpec{Name: "out"})
	require.NoError(t, err)
	tk.out = out
	return tk
}

func (tk *ticker) Process(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Millisecond):
	}
	if err := tk.out.Emit(variant.Int(tk.count.Load())); err != nil {
		return err
	}
	tk.count.Add(1)
	return nil
}

// recorder stores every value it receives.
type recorder struct {
	*Base
	in      *socket.InputSocket
	markers bool
	fail    error
	panics  bool

	mu  sync.Mutex
	got []variant.Variant
}

func newRecorder(t *testing.T, name string, spec ...InputSpec) *recorder {
	t.Helper()
	r := &recorder{}
	r.Base = NewBase(name, r, Dependencies{})
	s := InputSpec{Name: "in"}
	if len(spec) > 0 {
		s = spec[0]
	}
	in, err := r.AddInput(s)
	require.NoError(t, err)
	r.in = in
	return r
}

func (r *recorder) AcceptsMarkers() bool { return r.markers }

func (r *recorder) Process(_ context.Context) error {
	if r.panics {
		panic("boom")
	}
	r.mu.Lock()
	r.got = append(r.got, r.in.Value())
	r.mu.Unlock()
	return r.fail
}

func (r *recorder) values() []variant.Variant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]variant.Variant(nil), r.got...)
}

func (r *recorder) ints() []int64 {
	var out []int64
	for _, v := range r.values() {
		if n, ok := v.AsInt(); ok {
			out = append(out, n)
		}
	}
	return out
}

// relay forwards its input unchanged.
type relay struct {
	*Base
	in    *socket.InputSocket
	out   *socket.OutputSocket
	calls atomic.Int32
}

func newRelay(t *testing.T, name string) *relay {
	t.Helper()
	r := &relay{}
	r.Base = NewBase(name, r, Dependencies{})
	var err error
	r.in, err = r.AddInput(InputSpec{Name: "in"})
	require.NoError(t, err)
	r.out, err = r.AddOutput(OutputSpec{Name: "out"})
	require.NoError(t, err)
	return r
}

func (r *relay) Process(_ context.Context) error {
	r.calls.Add(1)
	return r.out.Emit(r.in.Value())
}

// pair records which of its two inputs held a value in each cycle.
type pair struct {
	*Base
	a, b *socket.InputSocket

	mu   sync.Mutex
	seen []string
}

func newPair(t *testing.T, name string, groupA, groupB int) *pair {
	t.Helper()
	p := &pair{}
	p.Base = NewBase(name, p, Dependencies{})
	var err error
	p.a, err = p.AddInput(InputSpec{Name: "a", Group: groupA})
	require.NoError(t, err)
	p.b, err = p.AddInput(InputSpec{Name: "b", Group: groupB})
	require.NoError(t, err)
	return p
}

func (p *pair) Process(_ context.Context) error {
	entry := ""
	for _, in := range []*socket.InputSocket{p.a, p.b} {
		if !in.HasValue() {
			continue
		}
		if entry != "" {
			entry += ","
		}
		entry += in.Name() + "=" + in.Value().String()
	}
	p.mu.Lock()
	p.seen = append(p.seen, entry)
	p.mu.Unlock()
	return nil
}

func (p *pair) cycles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

// eventLog collects state events.
type eventLog struct {
	mu     sync.Mutex
	events []StateEvent
}

func (l *eventLog) StateChanged(ev StateEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []StateEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]StateEvent(nil), l.events...)
}

func stopAll(t *testing.T, ops ...Operation) {
	t.Helper()
	for _, op := range ops {
		require.NoError(t, op.Stop())
	}
	for _, op := range ops {
		require.True(t, op.Wait(2*time.Second), "%s did not stop", op.Name())
	}
}
