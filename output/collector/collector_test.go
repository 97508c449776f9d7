package collector

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/operation"
	"github.com/c360/visionflow/socket"
	"github.com/c360/visionflow/variant"
)

func start(t *testing.T, config Config) (*Collector, *socket.OutputSocket) {
	t.Helper()
	c, err := New("sink", config, operation.Dependencies{})
	require.NoError(t, err)

	feed := socket.NewOutput("feed")
	require.NoError(t, feed.Connect(c.Input("in")))
	require.NoError(t, c.Check(true))
	require.NoError(t, c.Start())
	t.Cleanup(func() { _ = c.StopAndWait(2 * time.Second) })
	return c, feed
}

func strs(values []variant.Variant) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out
}

func TestCollector_RecordsInOrder(t *testing.T) {
	c, feed := start(t, Config{})

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, feed.Emit(variant.Int(i)))
	}
	require.True(t, c.WaitFor(3, 2*time.Second))
	assert.Equal(t, []string{"1", "2", "3"}, strs(c.Values()))
	assert.Equal(t, 3, c.Received())
}

func TestCollector_WaitForTimesOut(t *testing.T) {
	c, feed := start(t, Config{})

	require.NoError(t, feed.Emit(variant.Int(1)))
	assert.False(t, c.WaitFor(2, 20*time.Millisecond))
	assert.True(t, c.WaitFor(1, time.Second))
}

func TestCollector_Limit(t *testing.T) {
	c, feed := start(t, Config{Limit: 2})

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, feed.Emit(variant.Int(i)))
	}
	require.True(t, c.WaitFor(5, 2*time.Second))
	assert.Equal(t, []string{"4", "5"}, strs(c.Values()))
}

func TestCollector_Markers(t *testing.T) {
	t.Run("dropped by default", func(t *testing.T) {
		c, feed := start(t, Config{})
		require.NoError(t, feed.StartMany())
		require.NoError(t, feed.Emit(variant.Int(1)))
		require.NoError(t, feed.EndMany())
		require.NoError(t, feed.Emit(variant.Int(2)))

		require.True(t, c.WaitFor(2, 2*time.Second))
		assert.Equal(t, []string{"1", "2"}, strs(c.Values()))
	})

	t.Run("recorded when enabled", func(t *testing.T) {
		c, feed := start(t, Config{Markers: true})
		require.NoError(t, feed.StartMany())
		require.NoError(t, feed.Emit(variant.Int(1)))
		require.NoError(t, feed.EndMany())

		require.True(t, c.WaitFor(3, 2*time.Second))
		assert.Equal(t, []string{"<sync.start>", "1", "<sync.end>"}, strs(c.Values()))
	})
}

func TestCollector_ResetOnCheck(t *testing.T) {
	c, feed := start(t, Config{})
	require.NoError(t, feed.Emit(variant.Int(1)))
	require.True(t, c.WaitFor(1, 2*time.Second))

	require.NoError(t, c.StopAndWait(2*time.Second))
	require.NoError(t, c.Check(true))
	assert.Empty(t, c.Values())
	assert.Zero(t, c.Received())
}

func TestCollector_RequiredInput(t *testing.T) {
	c, err := New("sink", Config{}, operation.Dependencies{})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Check(false), errors.ErrUnconnectedInput)

	optional, err := New("sink", Config{Optional: true}, operation.Dependencies{})
	require.NoError(t, err)
	assert.NoError(t, optional.Check(false))
}

func TestNewOperation(t *testing.T) {
	registry := operation.NewRegistry()
	require.NoError(t, Register(registry))

	op, err := registry.Create("collector", "sink", json.RawMessage(`{"limit": 10}`), operation.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, []string{"in"}, op.InputNames())

	_, err = registry.Create("collector", "sink", json.RawMessage(`{"limit": -1}`), operation.Dependencies{})
	assert.True(t, errors.IsInvalid(err))
}
