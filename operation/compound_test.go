package operation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/variant"
)

func TestCompound_Pipeline(t *testing.T) {
	c := NewCompound("pipeline", Dependencies{})
	src := newEmitter(t, "src", variant.Int(1), variant.Int(2))
	sink := newRecorder(t, "sink")

	require.NoError(t, c.Add(src))
	require.NoError(t, c.Add(sink))

	err := c.Add(newRecorder(t, "sink"))
	assert.True(t, errors.Is(err, errors.ErrDuplicateOperation))

	require.NoError(t, c.Connect("src", "out", "sink", "in"))
	assert.True(t, errors.Is(c.Connect("nope", "out", "sink", "in"), errors.ErrOperationNotFound))
	assert.True(t, errors.Is(c.Connect("src", "bogus", "sink", "in"), errors.ErrSocketNotFound))

	log := &eventLog{}
	c.AddObserver(log)

	require.NoError(t, c.Check(true))
	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return len(sink.ints()) == 2 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return src.State() == Stopped }, 2*time.Second, time.Millisecond)
	assert.Equal(t, Running, c.State(), "a finished source leaves the compound running")

	require.NoError(t, c.StopAndWait(2*time.Second))
	assert.Equal(t, Stopped, c.State())
	assert.NoError(t, c.Err())

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after stop")
	}

	events := log.all()
	require.NotEmpty(t, events)
	assert.Equal(t, Starting, events[0].To)
	assert.Equal(t, Stopped, events[len(events)-1].To)
	assert.Equal(t, []int64{1, 2}, sink.ints())
}

func TestCompound_FirstFailureStopsSiblings(t *testing.T) {
	c := NewCompound("pipeline", Dependencies{})
	src := newTicker(t, "src")
	bad := newRecorder(t, "bad")
	bad.fail = errors.WrapFatal(errors.ErrProcessingFailed, "bad", "Process", "corrupt frame")
	other := newTicker(t, "other")
	otherSink := newRecorder(t, "other-sink")

	for _, op := range []Operation{src, bad, other, otherSink} {
		require.NoError(t, c.Add(op))
	}
	require.NoError(t, c.Connect("src", "out", "bad", "in"))
	require.NoError(t, c.Connect("other", "out", "other-sink", "in"))

	require.NoError(t, c.Check(true))
	require.NoError(t, c.Start())

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("compound did not stop after a child failure")
	}
	require.True(t, c.Wait(2*time.Second))

	require.Error(t, c.Err())
	assert.True(t, errors.Is(c.Err(), errors.ErrProcessingFailed))
	for _, op := range c.Operations() {
		assert.Equal(t, Stopped, op.State(), op.Name())
	}
	assert.NoError(t, other.Err(), "siblings stop cleanly")
	assert.NoError(t, src.Err())
}

func TestCompound_ExposedSockets(t *testing.T) {
	inner := NewCompound("inner", Dependencies{})
	r := newRelay(t, "relay")
	require.NoError(t, inner.Add(r))
	_, err := inner.ExposeInput("in", r.in)
	require.NoError(t, err)
	_, err = inner.ExposeOutput("out", r.out)
	require.NoError(t, err)
	assert.Equal(t, []string{"in"}, inner.InputNames())
	assert.Equal(t, []string{"out"}, inner.OutputNames())

	err = inner.Check(false)
	assert.True(t, errors.Is(err, errors.ErrUnconnectedInput), "exposed input has no producer yet")

	outer := NewCompound("outer", Dependencies{})
	src := newEmitter(t, "src", variant.Int(1), variant.Int(2), variant.Int(3))
	sink := newRecorder(t, "sink")
	for _, op := range []Operation{src, inner, sink} {
		require.NoError(t, outer.Add(op))
	}
	require.NoError(t, outer.Connect("src", "out", "inner", "in"))
	require.NoError(t, outer.Connect("inner", "out", "sink", "in"))

	require.NoError(t, outer.Check(true))
	require.NoError(t, outer.Start())
	require.Eventually(t, func() bool { return len(sink.ints()) == 3 }, 2*time.Second, time.Millisecond)
	require.NoError(t, outer.StopAndWait(2*time.Second))

	assert.Equal(t, []int64{1, 2, 3}, sink.ints())
	assert.Equal(t, Stopped, inner.State())
}

func TestCompound_RemoveDisconnects(t *testing.T) {
	c := NewCompound("pipeline", Dependencies{})
	src := newEmitter(t, "src")
	sink := newRecorder(t, "sink")
	require.NoError(t, c.Add(src))
	require.NoError(t, c.Add(sink))
	require.NoError(t, c.Connect("src", "out", "sink", "in"))

	require.NoError(t, c.Remove("sink"))
	assert.False(t, sink.in.IsConnected())
	assert.Empty(t, src.out.Targets())
	_, ok := c.Operation("sink")
	assert.False(t, ok)

	assert.True(t, errors.Is(c.Remove("sink"), errors.ErrOperationNotFound))
}

func TestCompound_PauseResume(t *testing.T) {
	c := NewCompound("pipeline", Dependencies{})
	src := newTicker(t, "src")
	sink := newRecorder(t, "sink")
	require.NoError(t, c.Add(src))
	require.NoError(t, c.Add(sink))
	require.NoError(t, c.Connect("src", "out", "sink", "in"))

	require.NoError(t, c.Start())
	require.NoError(t, c.Pause())
	require.Eventually(t, func() bool { return c.State() == Paused }, 2*time.Second, time.Millisecond)

	require.NoError(t, c.Start())
	assert.Equal(t, Running, c.State())
	require.NoError(t, c.StopAndWait(2*time.Second))
}

func TestCompound_FailedCheckLeavesChildrenUntouched(t *testing.T) {
	c := NewCompound("pipeline", Dependencies{})
	src := newEmitter(t, "src", variant.Int(1), variant.Int(2))
	sink := newRecorder(t, "sink")
	orphan := newRecorder(t, "orphan")
	for _, op := range []Operation{src, sink, orphan} {
		require.NoError(t, c.Add(op))
	}
	require.NoError(t, c.Connect("src", "out", "sink", "in"))

	src.next = 1
	require.NoError(t, src.out.Emit(variant.Int(9)))
	require.Equal(t, 1, sink.in.Pending())

	err := c.Check(true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnconnectedInput))
	assert.Equal(t, 1, src.next, "src must not be reset")
	assert.Equal(t, 1, sink.in.Pending(), "sink queue must survive")

	require.NoError(t, c.Remove("orphan"))
	require.NoError(t, c.Check(true))
	assert.Equal(t, 0, src.next)
	assert.Equal(t, 0, sink.in.Pending())
}

func TestCompound_ExposedInputFansOut(t *testing.T) {
	inner := NewCompound("inner", Dependencies{})
	narrow := newRecorder(t, "narrow", InputSpec{Name: "in", Capacity: 1})
	wide := newRecorder(t, "wide", InputSpec{Name: "in", Capacity: 4})
	require.NoError(t, inner.Add(narrow))
	require.NoError(t, inner.Add(wide))
	proxy, err := inner.ExposeInput("in", narrow.in, wide.in)
	require.NoError(t, err)
	assert.Len(t, proxy.Targets(), 2)

	outer := NewCompound("outer", Dependencies{})
	values := []variant.Variant{variant.Int(1), variant.Int(2), variant.Int(3), variant.Int(4), variant.Int(5), variant.Int(6)}
	src := newEmitter(t, "src", values...)
	require.NoError(t, outer.Add(src))
	require.NoError(t, outer.Add(inner))
	require.NoError(t, outer.Connect("src", "out", "inner", "in"))

	require.NoError(t, outer.Check(true))
	require.NoError(t, outer.Start())
	require.Eventually(t, func() bool { return src.State() == Stopped }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return len(narrow.ints()) == 6 && len(wide.ints()) == 6
	}, 2*time.Second, time.Millisecond)
	require.Eventually(t, outer.Idle, 2*time.Second, time.Millisecond)
	require.NoError(t, outer.StopAndWait(2*time.Second))

	want := []int64{1, 2, 3, 4, 5, 6}
	assert.Equal(t, want, narrow.ints())
	assert.Equal(t, want, wide.ints())
	assert.NoError(t, outer.Err())
}

func TestCompound_ExposeRejectsDuplicatesAndRollsBack(t *testing.T) {
	c := NewCompound("inner", Dependencies{})
	a := newRecorder(t, "a")
	b := newRecorder(t, "b")
	r := newRelay(t, "relay")
	for _, op := range []Operation{a, b, r} {
		require.NoError(t, c.Add(op))
	}

	_, err := c.ExposeInput("in", a.in)
	require.NoError(t, err)

	_, err = c.ExposeInput("in", b.in)
	assert.True(t, errors.IsInvalid(err))
	assert.Nil(t, b.in.Source(), "rejected proxy must not keep b connected")

	_, err = c.ExposeInput("other", b.in, a.in)
	require.Error(t, err, "a already has a source")
	assert.Nil(t, b.in.Source(), "partial fan-out is rolled back")
	assert.Equal(t, []string{"in"}, c.InputNames())

	_, err = c.ExposeOutput("out", r.out)
	require.NoError(t, err)
	_, err = c.ExposeOutput("out", r.out)
	assert.True(t, errors.IsInvalid(err))
	assert.Len(t, r.out.Targets(), 1)
	assert.Equal(t, []string{"out"}, c.OutputNames())
}
