package operation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/socket"
	"github.com/c360/visionflow/variant"
)

func TestBase_SourceToSink(t *testing.T) {
	src := newEmitter(t, "src", variant.Int(1), variant.Int(2), variant.Int(3))
	sink := newRecorder(t, "sink")
	require.NoError(t, src.out.Connect(sink.in))

	log := &eventLog{}
	src.AddObserver(log)

	require.NoError(t, src.Check(true))
	require.NoError(t, sink.Check(true))
	require.NoError(t, sink.Start())
	require.NoError(t, src.Start())

	require.True(t, src.Wait(2*time.Second))
	require.Eventually(t, func() bool { return len(sink.ints()) == 3 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []int64{1, 2, 3}, sink.ints())
	assert.Equal(t, Stopped, src.State())
	assert.NoError(t, src.Err())
	assert.Equal(t, uint64(3), src.Cycles())

	stopAll(t, sink)
	assert.Equal(t, Stopped, sink.State())

	events := log.all()
	require.NotEmpty(t, events)
	assert.Equal(t, Stopped, events[0].From)
	assert.Equal(t, Starting, events[0].To)
	assert.Equal(t, Stopped, events[len(events)-1].To)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].To, events[i].From, "transitions must chain")
		assert.Equal(t, "src", events[i].Operation)
	}
}

func TestBase_CheckRequiresConnectedInputs(t *testing.T) {
	sink := newRecorder(t, "sink")

	err := sink.Check(false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnconnectedInput))
	assert.True(t, errors.IsInvalid(err))

	optional := newRecorder(t, "optional", InputSpec{Name: "in", Optional: true})
	assert.NoError(t, optional.Check(false))
}

func TestBase_CheckResetClearsQueue(t *testing.T) {
	src := socket.NewOutput("src")
	sink := newRecorder(t, "sink")
	require.NoError(t, src.Connect(sink.in))
	require.NoError(t, src.Emit(variant.Int(1)))
	require.Equal(t, 1, sink.in.Pending())

	require.NoError(t, sink.Check(false))
	assert.Equal(t, 1, sink.in.Pending())

	require.NoError(t, sink.Check(true))
	assert.Equal(t, 0, sink.in.Pending())
}

func TestBase_ProcessErrorStopsWithError(t *testing.T) {
	src := newEmitter(t, "src", variant.Int(1))
	sink := newRecorder(t, "sink")
	sink.fail = errors.WrapFatal(errors.ErrProcessingFailed, "sink", "Process", "decode frame")
	require.NoError(t, src.out.Connect(sink.in))

	log := &eventLog{}
	sink.AddObserver(log)

	require.NoError(t, sink.Start())
	require.NoError(t, src.Start())
	require.True(t, sink.Wait(2*time.Second))

	assert.Equal(t, Stopped, sink.State())
	require.Error(t, sink.Err())
	assert.True(t, errors.Is(sink.Err(), errors.ErrProcessingFailed))

	events := log.all()
	last := events[len(events)-1]
	assert.Equal(t, Running, last.From)
	assert.Equal(t, Stopped, last.To)
	assert.Error(t, last.Err)

	require.True(t, src.Wait(2*time.Second))
	assert.NoError(t, src.Err())
}

func TestBase_PanicIsFatal(t *testing.T) {
	src := newEmitter(t, "src", variant.Int(1))
	sink := newRecorder(t, "sink")
	sink.panics = true
	require.NoError(t, src.out.Connect(sink.in))

	require.NoError(t, sink.Start())
	require.NoError(t, src.Start())
	require.True(t, sink.Wait(2*time.Second))

	err := sink.Err()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.True(t, errors.Is(err, errors.ErrProcessingFailed))
	assert.Contains(t, err.Error(), "boom")
}

func TestBase_StopInterruptsBlockedEmit(t *testing.T) {
	src := newTicker(t, "src")
	sink := newRecorder(t, "sink", InputSpec{Name: "in", Capacity: 1})
	require.NoError(t, src.out.Connect(sink.in))

	require.NoError(t, src.Start())
	require.Eventually(t, func() bool { return sink.in.Pending() == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int64(1), src.count.Load())

	require.NoError(t, src.Stop())
	require.True(t, src.Wait(2*time.Second))
	assert.Equal(t, Stopped, src.State())
	assert.NoError(t, src.Err())
}

func TestBase_PauseAndResume(t *testing.T) {
	src := newTicker(t, "src")
	sink := newRecorder(t, "sink")
	require.NoError(t, src.out.Connect(sink.in))

	require.NoError(t, sink.Start())
	require.NoError(t, src.Start())
	require.Eventually(t, func() bool { return src.count.Load() > 3 }, 2*time.Second, time.Millisecond)

	require.NoError(t, src.Pause())
	require.Eventually(t, func() bool { return src.State() == Paused }, 2*time.Second, time.Millisecond)
	require.NoError(t, src.Pause(), "pausing a paused operation is a no-op")

	parked := src.count.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, parked, src.count.Load(), "no cycles while paused")

	require.NoError(t, src.Start())
	assert.Equal(t, Running, src.State())
	require.Eventually(t, func() bool { return src.count.Load() > parked }, 2*time.Second, time.Millisecond)

	stopAll(t, src, sink)
	assert.NoError(t, src.Err())
}

func TestBase_RewiringOnlyWhileStoppedOrPaused(t *testing.T) {
	src := newTicker(t, "src")
	sink := newRecorder(t, "sink")
	extra := newRecorder(t, "extra")
	require.NoError(t, src.out.Connect(sink.in))

	require.NoError(t, sink.Start())
	require.NoError(t, src.Start())

	err := src.out.Connect(extra.in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidState))

	require.NoError(t, src.Pause())
	require.Eventually(t, func() bool { return src.State() == Paused }, 2*time.Second, time.Millisecond)
	require.NoError(t, src.out.Connect(extra.in))

	stopAll(t, src, sink)
}

func TestBase_RepeatedLifecycleCalls(t *testing.T) {
	src := newTicker(t, "src")
	sink := newRecorder(t, "sink")
	require.NoError(t, src.out.Connect(sink.in))

	require.NoError(t, sink.Start())
	require.NoError(t, sink.Start())
	stopAll(t, sink)

	assert.Error(t, sink.Pause(), "cannot pause a stopped operation")
	assert.NoError(t, sink.Stop(), "stopping a stopped operation is a no-op")
}

func TestSyncGroups_EarliestCompleteGroupFirst(t *testing.T) {
	p := newPair(t, "pair", 0, 1)
	oa := socket.NewOutput("oa")
	ob := socket.NewOutput("ob")
	require.NoError(t, oa.Connect(p.a))
	require.NoError(t, ob.Connect(p.b))

	require.NoError(t, ob.Emit(variant.Int(1)))
	require.NoError(t, oa.Emit(variant.Int(2)))
	require.NoError(t, ob.Emit(variant.Int(3)))

	require.NoError(t, p.Start())
	require.Eventually(t, func() bool { return len(p.cycles()) == 3 }, 2*time.Second, time.Millisecond)
	stopAll(t, p)

	assert.Equal(t, []string{"b=1", "a=2", "b=3"}, p.cycles())
}

func TestSyncGroups_Lockstep(t *testing.T) {
	p := newPair(t, "pair", 0, 0)
	oa := socket.NewOutput("oa")
	ob := socket.NewOutput("ob")
	require.NoError(t, oa.Connect(p.a))
	require.NoError(t, ob.Connect(p.b))

	require.NoError(t, oa.Emit(variant.Int(1)))
	require.NoError(t, oa.Emit(variant.Int(2)))
	require.NoError(t, ob.Emit(variant.Int(10)))

	require.NoError(t, p.Start())
	require.Eventually(t, func() bool { return len(p.cycles()) == 1 }, 2*time.Second, time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	assert.Len(t, p.cycles(), 1, "a group waits for every member")

	require.NoError(t, ob.Emit(variant.Int(20)))
	require.Eventually(t, func() bool { return len(p.cycles()) == 2 }, 2*time.Second, time.Millisecond)
	stopAll(t, p)

	assert.Equal(t, []string{"a=1,b=10", "a=2,b=20"}, p.cycles())
}

func TestSyncGroups_UnconnectedOptionalInputIsAbsent(t *testing.T) {
	p := &pair{}
	p.Base = NewBase("pair", p, Dependencies{})
	var err error
	p.a, err = p.AddInput(InputSpec{Name: "a"})
	require.NoError(t, err)
	p.b, err = p.AddInput(InputSpec{Name: "b", Optional: true})
	require.NoError(t, err)

	oa := socket.NewOutput("oa")
	require.NoError(t, oa.Connect(p.a))
	require.NoError(t, oa.Emit(variant.Int(5)))

	require.NoError(t, p.Check(false))
	require.NoError(t, p.Start())
	require.Eventually(t, func() bool { return len(p.cycles()) == 1 }, 2*time.Second, time.Millisecond)
	stopAll(t, p)

	assert.Equal(t, []string{"a=5"}, p.cycles())
}

func TestMarkers_ForwardedAroundProcess(t *testing.T) {
	src := socket.NewOutput("src")
	r := newRelay(t, "relay")
	sink := newRecorder(t, "sink")
	sink.markers = true
	require.NoError(t, src.Connect(r.in))
	require.NoError(t, r.out.Connect(sink.in))

	require.NoError(t, src.StartMany())
	require.NoError(t, src.Emit(variant.Int(7)))
	require.NoError(t, src.EndMany())

	require.NoError(t, sink.Start())
	require.NoError(t, r.Start())
	require.Eventually(t, func() bool { return len(sink.values()) == 3 }, 2*time.Second, time.Millisecond)
	stopAll(t, r, sink)

	var tags []variant.Tag
	for _, v := range sink.values() {
		tags = append(tags, v.Tag())
	}
	assert.Equal(t, []variant.Tag{variant.TagRoundStart, variant.TagInt, variant.TagRoundEnd}, tags)
	assert.Equal(t, int32(1), r.calls.Load(), "markers bypass Process")
}

func TestMarkers_MixedWithDataIsProtocolViolation(t *testing.T) {
	p := newPair(t, "pair", 0, 0)
	oa := socket.NewOutput("oa")
	ob := socket.NewOutput("ob")
	require.NoError(t, oa.Connect(p.a))
	require.NoError(t, ob.Connect(p.b))

	require.NoError(t, oa.StartMany())
	require.NoError(t, ob.Emit(variant.Int(1)))

	require.NoError(t, p.Start())
	require.True(t, p.Wait(2*time.Second))

	err := p.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrProtocolViolation))
	assert.True(t, errors.IsFatal(err))
	assert.Empty(t, p.cycles())
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		states []State
		want   State
	}{
		{"empty", nil, Stopped},
		{"all stopped", []State{Stopped, Stopped}, Stopped},
		{"all running", []State{Running, Running}, Running},
		{"partly finished", []State{Running, Stopped}, Running},
		{"paused and stopped", []State{Paused, Stopped}, Paused},
		{"pausing dominates", []State{Running, Pausing, Paused}, Pausing},
		{"starting dominates", []State{Running, Starting}, Starting},
		{"stopping dominates", []State{Stopping, Starting, Running}, Stopping},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.states))
		})
	}
}

func TestErrFinishedIsNotFailure(t *testing.T) {
	e := newEmitter(t, "src")
	require.NoError(t, e.Start())
	require.True(t, e.Wait(2*time.Second))
	assert.NoError(t, e.Err())
	assert.Equal(t, Stopped, e.State())

	require.NoError(t, e.Check(true))
	require.NoError(t, e.Start(), "a finished source can run again")
	require.True(t, e.Wait(2*time.Second))
}

func TestBase_Idle(t *testing.T) {
	src := socket.NewOutput("src")
	sink := newRecorder(t, "sink")
	require.NoError(t, src.Connect(sink.in))
	assert.True(t, sink.Idle(), "stopped operation is idle")

	require.NoError(t, src.Emit(variant.Int(1)))
	require.NoError(t, sink.Check(false))
	require.NoError(t, sink.Start())
	require.Eventually(t, func() bool { return len(sink.ints()) == 1 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, sink.Idle, 2*time.Second, time.Millisecond)
	assert.Equal(t, Running, sink.State())

	stopAll(t, sink)
	assert.True(t, sink.Idle())
}
