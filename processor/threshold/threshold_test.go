package threshold

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/operation"
	"github.com/c360/visionflow/socket"
	"github.com/c360/visionflow/variant"
)

type harness struct {
	op   *Processor
	feed *socket.OutputSocket
	sink *socket.InputSocket
}

func start(t *testing.T, config Config) *harness {
	t.Helper()
	p, err := New("binarize", config, operation.Dependencies{})
	require.NoError(t, err)

	feed := socket.NewOutput("feed")
	require.NoError(t, feed.Connect(p.Input("image")))
	sink, err := socket.NewInput("sink", socket.WithCapacity(16))
	require.NoError(t, err)
	require.NoError(t, p.Output("image").Connect(sink))

	require.NoError(t, p.Check(true))
	require.NoError(t, p.Start())
	t.Cleanup(func() { _ = p.StopAndWait(2 * time.Second) })
	return &harness{op: p, feed: feed, sink: sink}
}

func row(pix ...byte) variant.Variant {
	img, _ := variant.NewImage(len(pix), 1, 1)
	copy(img.Pix, pix)
	return variant.FromImage(img)
}

func (h *harness) next(t *testing.T) []byte {
	t.Helper()
	require.Eventually(t, func() bool { return h.sink.Pending() > 0 }, 2*time.Second, time.Millisecond)
	require.True(t, h.sink.Fetch())
	defer h.sink.Release()
	img, ok := variant.As[*variant.Image](h.sink.Value())
	require.True(t, ok)
	return img.Pix
}

func TestProcessor_Binarizes(t *testing.T) {
	h := start(t, Config{Level: 128})

	require.NoError(t, h.feed.Emit(row(0, 128, 129, 255)))
	assert.Equal(t, []byte{0, 0, 255, 255}, h.next(t))
}

func TestProcessor_Invert(t *testing.T) {
	h := start(t, Config{Level: 10, Invert: true})

	require.NoError(t, h.feed.Emit(row(5, 50)))
	assert.Equal(t, []byte{255, 0}, h.next(t))
}

func TestProcessor_LevelChangesWhileRunning(t *testing.T) {
	h := start(t, Config{Level: 128})

	require.NoError(t, h.feed.Emit(row(100)))
	assert.Equal(t, []byte{0}, h.next(t))

	require.NoError(t, h.op.SetProperty("level", 50))
	require.NoError(t, h.feed.Emit(row(100)))
	assert.Equal(t, []byte{255}, h.next(t))
}

func TestProcessor_RejectsNonImage(t *testing.T) {
	h := start(t, Config{Level: 128})

	require.NoError(t, h.feed.Emit(variant.Int(7)))
	require.True(t, h.op.Wait(2*time.Second))

	err := h.op.Err()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
	assert.Equal(t, operation.Stopped, h.op.State())
	assert.Zero(t, h.sink.Pending())
}

func TestProcessor_LevelRange(t *testing.T) {
	_, err := New("binarize", Config{Level: 256}, operation.Dependencies{})
	assert.True(t, errors.IsInvalid(err))

	p, err := New("binarize", Config{Level: 1}, operation.Dependencies{})
	require.NoError(t, err)
	assert.ErrorIs(t, p.SetProperty("level", -1), errors.ErrInvalidProperty)
}

func TestNewOperation_DefaultLevel(t *testing.T) {
	registry := operation.NewRegistry()
	require.NoError(t, Register(registry))

	op, err := registry.Create("threshold", "binarize", nil, operation.Dependencies{})
	require.NoError(t, err)
	level, err := op.(*Processor).Property("level")
	require.NoError(t, err)
	assert.Equal(t, 128, level)
}
