package flowcontrol

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/operation"
	"github.com/c360/visionflow/socket"
	"github.com/c360/visionflow/variant"
)

func feed(t *testing.T, in socket.Input) *socket.OutputSocket {
	t.Helper()
	out := socket.NewOutput("feed-" + in.Name())
	require.NoError(t, out.Connect(in))
	return out
}

func sinkFor(t *testing.T, out socket.Output) *socket.InputSocket {
	t.Helper()
	in, err := socket.NewInput("sink-"+out.Name(), socket.WithCapacity(64))
	require.NoError(t, err)
	require.NoError(t, out.Connect(in))
	return in
}

func drain(in *socket.InputSocket) []variant.Variant {
	var out []variant.Variant
	for in.Fetch() {
		out = append(out, in.Value())
		in.Release()
	}
	return out
}

func ints(t *testing.T, v variant.Variant) []int64 {
	t.Helper()
	var out []int64
	for _, item := range v.Items() {
		n, ok := item.AsInt()
		require.True(t, ok, "expected int, got %s", item)
		out = append(out, n)
	}
	return out
}

func nested(t *testing.T, v variant.Variant) [][]int64 {
	t.Helper()
	var out [][]int64
	for _, item := range v.Items() {
		out = append(out, ints(t, item))
	}
	return out
}

// assertCaptures compares captures by variant value rather than identity.
func assertCaptures(t *testing.T, want, got []Capture) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmp.Comparer(variant.Equal)); diff != "" {
		t.Errorf("captures mismatch (-want +got):\n%s", diff)
	}
}

func list(values ...int64) variant.Variant {
	items := make([]variant.Variant, len(values))
	for i, v := range values {
		items[i] = variant.Int(v)
	}
	return variant.List(items...)
}

func stop(t *testing.T, op operation.Operation) {
	t.Helper()
	require.NoError(t, op.Stop())
	require.True(t, op.Wait(2*time.Second))
	require.NoError(t, op.Err())
}

type captures struct {
	mu   sync.Mutex
	list []Capture
}

func (c *captures) add(cp Capture) {
	c.mu.Lock()
	c.list = append(c.list, cp)
	c.mu.Unlock()
}

func (c *captures) all() []Capture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Capture(nil), c.list...)
}

func TestGroupCapturer_DefaultsAndIndependentGroups(t *testing.T) {
	gc, err := NewGroupCapturer("rows", GroupCapturerConfig{
		Inputs:    5,
		GroupSize: 3,
		Defaults:  map[string]any{"2": 5},
	}, operation.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, 2, gc.Groups())

	feeds := make([]*socket.OutputSocket, 5)
	for i, name := range gc.InputNames() {
		feeds[i] = feed(t, gc.Input(name))
	}
	rows := sinkFor(t, gc.Output("row"))

	for _, idx := range []int{0, 3, 2, 4, 1} {
		require.NoError(t, feeds[idx].Emit(variant.Int(int64(idx))))
	}

	require.NoError(t, gc.Check(false))
	require.NoError(t, gc.Start())
	require.Eventually(t, func() bool { return gc.Cycles() == 5 }, 2*time.Second, time.Millisecond)
	stop(t, gc)

	got := drain(rows)
	require.Len(t, got, 2)

	first, ok := AsRow(got[0])
	require.True(t, ok)
	assert.Equal(t, "(1,3,4,5)", first.String())

	second, ok := AsRow(got[1])
	require.True(t, ok)
	assert.Equal(t, "(0,0,1,2)", second.String())
}

func TestGroupCapturer_MissingSlotNeverCompletes(t *testing.T) {
	gc, err := NewGroupCapturer("rows", GroupCapturerConfig{Inputs: 2, GroupSize: 2}, operation.Dependencies{})
	require.NoError(t, err)

	f0 := feed(t, gc.Input("input0"))
	feed(t, gc.Input("input1"))
	rows := sinkFor(t, gc.Output("row"))
	require.NoError(t, f0.Emit(variant.Int(1)))
	require.NoError(t, f0.Emit(variant.Int(2)))

	require.NoError(t, gc.Check(false))
	require.NoError(t, gc.Start())
	require.Eventually(t, func() bool { return gc.Cycles() == 2 }, 2*time.Second, time.Millisecond)
	stop(t, gc)

	assert.Empty(t, drain(rows))
}

func TestGroupCapturer_RepeatedSlotQueues(t *testing.T) {
	gc, err := NewGroupCapturer("rows", GroupCapturerConfig{Inputs: 2, GroupSize: 2}, operation.Dependencies{})
	require.NoError(t, err)

	f0 := feed(t, gc.Input("input0"))
	f1 := feed(t, gc.Input("input1"))
	rows := sinkFor(t, gc.Output("row"))

	var emitted []Row
	var mu sync.Mutex
	gc.OnRow(func(r Row) {
		mu.Lock()
		emitted = append(emitted, r)
		mu.Unlock()
	})

	require.NoError(t, f0.Emit(variant.Int(1)))
	require.NoError(t, f0.Emit(variant.Int(2)))
	require.NoError(t, f1.Emit(variant.Int(10)))
	require.NoError(t, f1.Emit(variant.Int(20)))

	require.NoError(t, gc.Start())
	require.Eventually(t, func() bool { return gc.Cycles() == 4 }, 2*time.Second, time.Millisecond)
	stop(t, gc)

	got := drain(rows)
	require.Len(t, got, 2)
	r0, _ := AsRow(got[0])
	r1, _ := AsRow(got[1])
	assert.Equal(t, "(0,1,10)", r0.String())
	assert.Equal(t, "(0,2,20)", r1.String())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, emitted, 2)
}

func TestGroupCapturerConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  GroupCapturerConfig
		ok   bool
	}{
		{"valid", GroupCapturerConfig{Inputs: 4, GroupSize: 2, Defaults: map[string]any{"1": 0}}, true},
		{"no inputs", GroupCapturerConfig{Inputs: 0, GroupSize: 2}, false},
		{"no group size", GroupCapturerConfig{Inputs: 2}, false},
		{"slot out of range", GroupCapturerConfig{Inputs: 2, GroupSize: 2, Defaults: map[string]any{"2": 0}}, false},
		{"slot not a number", GroupCapturerConfig{Inputs: 2, GroupSize: 2, Defaults: map[string]any{"x": 0}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
		})
	}
}

func TestObjectCapturer_SyncUnconnectedForwardsInOrder(t *testing.T) {
	oc, err := NewObjectCapturer("objects", ObjectCapturerConfig{Inputs: 1}, operation.Dependencies{})
	require.NoError(t, err)

	f := feed(t, oc.Input("input0"))
	objects := sinkFor(t, oc.Output("objects"))
	syncOut := sinkFor(t, oc.Output("sync"))

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, f.Emit(variant.Int(i)))
	}

	require.NoError(t, oc.Check(false))
	require.NoError(t, oc.Start())
	require.Eventually(t, func() bool { return oc.Cycles() == 5 }, 2*time.Second, time.Millisecond)
	stop(t, oc)

	var got []int64
	for _, v := range drain(objects) {
		n, ok := v.AsInt()
		require.True(t, ok)
		got = append(got, n)
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, got)
	assert.Empty(t, drain(syncOut), "sync output is untouched")
}

func TestObjectCapturer_SyncUnconnectedMultipleInputs(t *testing.T) {
	oc, err := NewObjectCapturer("objects", ObjectCapturerConfig{Inputs: 2}, operation.Dependencies{})
	require.NoError(t, err)

	f0 := feed(t, oc.Input("input0"))
	f1 := feed(t, oc.Input("input1"))
	objects := sinkFor(t, oc.Output("objects"))

	require.NoError(t, f0.Emit(variant.Int(1)))
	require.NoError(t, f1.Emit(variant.Int(2)))

	require.NoError(t, oc.Start())
	require.Eventually(t, func() bool { return oc.Cycles() == 1 }, 2*time.Second, time.Millisecond)
	stop(t, oc)

	got := drain(objects)
	require.Len(t, got, 1)
	assert.Equal(t, []int64{1, 2}, ints(t, got[0]))
}

func newSynced(t *testing.T, cfg ObjectCapturerConfig) (*ObjectCapturer, []*socket.OutputSocket, *socket.OutputSocket, *captures) {
	t.Helper()
	oc, err := NewObjectCapturer("objects", cfg, operation.Dependencies{})
	require.NoError(t, err)

	var data []*socket.OutputSocket
	for i := 0; i < cfg.Inputs; i++ {
		data = append(data, feed(t, oc.Data(i)))
	}
	syncFeed := feed(t, oc.Input("sync"))

	caps := &captures{}
	oc.OnCapture(caps.add)
	return oc, data, syncFeed, caps
}

func TestObjectCapturer_NextSyncPerInput(t *testing.T) {
	oc, data, syncFeed, caps := newSynced(t, ObjectCapturerConfig{Inputs: 2, ListMode: ListPerInput})
	syncOut := sinkFor(t, oc.Output("sync"))
	objects := sinkFor(t, oc.Output("objects"))

	require.NoError(t, syncFeed.Emit(variant.String("A")))
	require.NoError(t, data[0].Emit(variant.Int(1)))
	require.NoError(t, data[1].Emit(variant.Int(10)))
	require.NoError(t, data[0].Emit(variant.Int(2)))
	require.NoError(t, data[1].Emit(variant.Int(20)))
	require.NoError(t, syncFeed.Emit(variant.String("B")))
	require.NoError(t, data[0].Emit(variant.Int(3)))
	require.NoError(t, data[1].Emit(variant.Int(30)))
	require.NoError(t, syncFeed.Emit(variant.String("C")))

	require.NoError(t, oc.Check(false))
	require.NoError(t, oc.Start())
	require.Eventually(t, func() bool { return oc.Cycles() == 6 }, 2*time.Second, time.Millisecond)
	stop(t, oc)

	got := caps.all()
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Sync.String())
	assert.Equal(t, [][]int64{{1, 2}, {10, 20}}, nested(t, got[0].Objects))
	assert.Equal(t, "B", got[1].Sync.String())
	assert.Equal(t, [][]int64{{3}, {30}}, nested(t, got[1].Objects))

	tags := drain(syncOut)
	require.Len(t, tags, 2)
	assert.Equal(t, "A", tags[0].String())
	assert.Len(t, drain(objects), 2)
}

func TestObjectCapturer_NextSyncPerCycle(t *testing.T) {
	oc, data, syncFeed, caps := newSynced(t, ObjectCapturerConfig{Inputs: 2, ListMode: ListPerCycle})

	require.NoError(t, syncFeed.Emit(variant.String("A")))
	require.NoError(t, data[0].Emit(variant.Int(1)))
	require.NoError(t, data[1].Emit(variant.Int(10)))
	require.NoError(t, data[0].Emit(variant.Int(2)))
	require.NoError(t, data[1].Emit(variant.Int(20)))
	require.NoError(t, syncFeed.Emit(variant.String("B")))

	require.NoError(t, oc.Start())
	require.Eventually(t, func() bool { return oc.Cycles() == 4 }, 2*time.Second, time.Millisecond)
	stop(t, oc)

	got := caps.all()
	require.Len(t, got, 1)
	assert.Equal(t, [][]int64{{1, 10}, {2, 20}}, nested(t, got[0].Objects))
}

func TestObjectCapturer_DataBeforeFirstSyncIsOrphaned(t *testing.T) {
	oc, data, syncFeed, caps := newSynced(t, ObjectCapturerConfig{Inputs: 1})

	require.NoError(t, data[0].Emit(variant.Int(1)))
	require.NoError(t, syncFeed.Emit(variant.String("A")))
	require.NoError(t, data[0].Emit(variant.Int(2)))
	require.NoError(t, syncFeed.Emit(variant.String("B")))

	require.NoError(t, oc.Start())
	require.Eventually(t, func() bool { return oc.Cycles() == 4 }, 2*time.Second, time.Millisecond)
	stop(t, oc)

	got := caps.all()
	require.Len(t, got, 1)
	assert.Equal(t, [][]int64{{2}}, nested(t, got[0].Objects))
	assert.Equal(t, uint64(1), oc.Orphaned())
}

func TestObjectCapturer_EndMarkerPairsRoundsInOrder(t *testing.T) {
	oc, data, syncFeed, caps := newSynced(t, ObjectCapturerConfig{
		Inputs: 2, Completion: CompleteOnEndMarker, Capacity: 16,
	})

	round := func(values ...[2]int64) {
		for _, d := range data {
			require.NoError(t, d.StartMany())
		}
		for _, pair := range values {
			require.NoError(t, data[0].Emit(variant.Int(pair[0])))
			require.NoError(t, data[1].Emit(variant.Int(pair[1])))
		}
		for _, d := range data {
			require.NoError(t, d.EndMany())
		}
	}
	round([2]int64{1, 10}, [2]int64{2, 20})
	round([2]int64{3, 30})

	require.NoError(t, syncFeed.Emit(variant.String("A")))
	require.NoError(t, syncFeed.Emit(variant.String("B")))

	require.NoError(t, oc.Start())
	require.Eventually(t, func() bool { return len(caps.all()) == 2 }, 2*time.Second, time.Millisecond)
	stop(t, oc)

	assertCaptures(t, []Capture{
		{Sync: variant.String("A"), Objects: variant.List(list(1, 2), list(10, 20))},
		{Sync: variant.String("B"), Objects: variant.List(list(3), list(30))},
	}, caps.all())
}

func TestObjectCapturer_MixedMarkersFail(t *testing.T) {
	oc, data, _, _ := newSynced(t, ObjectCapturerConfig{Inputs: 2, Completion: CompleteOnEndMarker})

	require.NoError(t, data[0].StartMany())
	require.NoError(t, data[1].Emit(variant.Int(1)))

	require.NoError(t, oc.Start())
	require.True(t, oc.Wait(2*time.Second))
	assert.True(t, errors.Is(oc.Err(), errors.ErrProtocolViolation))
	assert.True(t, errors.IsFatal(oc.Err()))
}

func TestObjectCapturer_ModesAreProtected(t *testing.T) {
	oc, err := NewObjectCapturer("objects", ObjectCapturerConfig{Inputs: 1}, operation.Dependencies{})
	require.NoError(t, err)

	require.NoError(t, oc.SetProperty("list_mode", ListPerCycle))
	assert.True(t, errors.Is(oc.SetProperty("completion", "whenever"), errors.ErrInvalidProperty))

	feed(t, oc.Input("input0"))
	require.NoError(t, oc.Start())
	defer stop(t, oc)
	assert.True(t, errors.Is(oc.SetProperty("list_mode", ListPerInput), errors.ErrProtectedProperty))
}

func TestRegister(t *testing.T) {
	reg := operation.NewRegistry()
	require.NoError(t, Register(reg))
	assert.Equal(t, []string{"group-capturer", "object-capturer"}, reg.Names())

	op, err := reg.Create("group-capturer", "rows",
		json.RawMessage(`{"inputs":3,"group_size":3,"defaults":{"2":{"type":"float","value":0.5}}}`),
		operation.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, []string{"input0", "input1", "input2"}, op.InputNames())
	assert.Equal(t, []string{"row"}, op.OutputNames())

	op, err = reg.Create("object-capturer", "objects", json.RawMessage(`{"inputs":2,"list_mode":"per-cycle"}`),
		operation.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, []string{"input0", "input1", "sync"}, op.InputNames())
	assert.Equal(t, []string{"sync", "objects"}, op.OutputNames())

	_, err = reg.Create("object-capturer", "objects", json.RawMessage(`{"inputs":2,"list_mode":"sideways"}`),
		operation.Dependencies{})
	assert.True(t, errors.IsInvalid(err))
}
